package provider

import (
	"strings"

	"github.com/phrazzld/imagerelay/internal/domain"
	"github.com/tidwall/gjson"
)

// Markers the chat gateway writes into an otherwise successful answer when
// the generation was refused or failed on its side.
var failureMarkers = []string{"生成失败", "失败原因"}

// Failure messages for answers without an image.
const (
	msgMalformedResponse = "malformed provider response"
	msgNoImageURL        = "no image URL found in response"
	msgNoImageData       = "no image data found in response"
)

// HasFailureMarker reports whether text carries a provider-side failure notice.
func HasFailureMarker(text string) bool {
	for _, marker := range failureMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// parseBody validates body as JSON. A false result means the caller should
// stop and return the failure outcome.
func parseBody(body []byte) (gjson.Result, domain.Outcome, bool) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return gjson.Result{}, domain.NewFailure(domain.FailureExtraction, msgMalformedResponse, body), false
	}
	return gjson.ParseBytes(body), domain.Outcome{}, true
}

// providerErrorMessage returns a top-level error message some gateways put
// into 2xx bodies, in either {"error":{"message":...}} or {"error":"..."} form.
func providerErrorMessage(doc gjson.Result) string {
	errField := doc.Get("error")
	if !errField.Exists() {
		return ""
	}
	if errField.Type == gjson.String {
		return errField.String()
	}
	return errField.Get("message").String()
}

// fallbackImageURL returns a top-level image_url (or imageUrl) value, the
// last shape tried before giving up.
func fallbackImageURL(doc gjson.Result) string {
	for _, path := range []string{"image_url", "imageUrl", "data.0.url"} {
		if v := doc.Get(path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// firstString returns the first non-empty string among paths evaluated on r.
func firstString(r gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := r.Get(path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
