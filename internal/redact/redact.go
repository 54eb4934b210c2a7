// Package redact provides utilities for removing credentials from strings
// before they are logged or returned in error responses. Provider error
// bodies and transport errors routinely echo request headers or query
// strings, so anything that may carry a caller's API key passes through here.
package redact

import (
	"regexp"
)

// Constants for redaction placeholders
const (
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// Rules are applied in order; JWTs go first so a signed bearer token keeps
// its more specific placeholder.
var rules = []rule{
	{
		regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
		RedactedJWTPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{8,}`),
		"Bearer " + RedactedCredentialPlaceholder,
	},
	{
		regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`),
		RedactedKeyPlaceholder,
	},
	{
		regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{30,}`),
		RedactedKeyPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)(api[_-]?key|token|secret|key|auth)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`),
		RedactedKeyPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`),
		RedactedCredentialPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)(https?://)[^/\s:@]+:[^/\s@]+@`),
		"${1}" + RedactedCredentialPlaceholder + "@",
	},
}

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}

	return result
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}

// Bytes redacts a provider body and truncates it to at most limit bytes so
// that a multi-megabyte base64 payload never ends up in a log line.
func Bytes(body []byte, limit int) string {
	if limit > 0 && len(body) > limit {
		return String(string(body[:limit])) + "...(truncated)"
	}
	return String(string(body))
}
