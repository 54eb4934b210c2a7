package provider

import (
	"regexp"
	"strings"
)

// urlToken matches an http(s) URL up to the first whitespace, quote,
// bracket, angle bracket or common full-width punctuation mark.
var urlToken = regexp.MustCompile(`https?://[^\s"'()\[\]{}<>，。！？、（）【】「」“”‘’]+`)

var imageExtension = regexp.MustCompile(`(?i)\.(?:jpe?g|png|webp|gif)$`)

// FindImageURL returns the first URL in text whose path ends in a known
// image extension. Trailing sentence punctuation is not part of the URL.
func FindImageURL(text string) (string, bool) {
	for _, token := range urlToken.FindAllString(text, -1) {
		token = strings.TrimRight(token, ".,;:!?")
		if IsImageURL(token) {
			return token, true
		}
	}
	return "", false
}

// IsImageURL reports whether raw's path, ignoring query and fragment, ends in
// .jpg, .jpeg, .png, .webp or .gif.
func IsImageURL(raw string) bool {
	path := raw
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return imageExtension.MatchString(path)
}
