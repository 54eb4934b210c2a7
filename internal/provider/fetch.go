package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Fetch errors
var (
	ErrUnsupportedReference = errors.New("unsupported image reference")
	ErrImageTooLarge        = errors.New("image exceeds size limit")
	ErrNotAnImage           = errors.New("content is not an image")
	ErrFetchStatus          = errors.New("unexpected status fetching image")
)

// ImageFetcher loads the bytes of a reference image.
type ImageFetcher interface {
	// Fetch returns the image data and its MIME type. ref is an http(s) URL
	// or a data: URI.
	Fetch(ctx context.Context, ref string) ([]byte, string, error)
}

// HTTPImageFetcher downloads reference images over HTTP and decodes data URIs
// in place. It is safe for concurrent use.
type HTTPImageFetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// NewHTTPImageFetcher creates a fetcher using client. timeout bounds each
// download independently of the caller's context; maxBytes caps the body.
func NewHTTPImageFetcher(client *http.Client, timeout time.Duration, maxBytes int64) (*HTTPImageFetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: http client is nil", ErrInvalidConfig)
	}
	if timeout <= 0 || maxBytes <= 0 {
		return nil, fmt.Errorf("%w: fetch timeout and size limit must be positive", ErrInvalidConfig)
	}
	return &HTTPImageFetcher{client: client, timeout: timeout, maxBytes: maxBytes}, nil
}

// Fetch implements ImageFetcher.
func (f *HTTPImageFetcher) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	if strings.HasPrefix(ref, "data:") {
		return DecodeDataURI(ref)
	}

	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedReference, truncate(ref, 64))
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: %d", ErrFetchStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, f.maxBytes)
	}

	mimeType := imageMIMEType(resp.Header.Get("Content-Type"), data)
	if mimeType == "" {
		return nil, "", ErrNotAnImage
	}

	return data, mimeType, nil
}

// imageMIMEType prefers a declared image/* content type and falls back to
// sniffing. It returns "" when neither identifies an image.
func imageMIMEType(declared string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	sniffed := http.DetectContentType(data)
	if mediaType, _, err := mime.ParseMediaType(sniffed); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	return ""
}

// DecodeDataURI decodes a base64 data: URI into its bytes and MIME type.
func DecodeDataURI(ref string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return nil, "", fmt.Errorf("%w: not a data URI", ErrUnsupportedReference)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("%w: data URI is not base64", ErrUnsupportedReference)
	}
	mimeType := strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedReference, err)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		if sniffed := imageMIMEType("", data); sniffed != "" {
			mimeType = sniffed
		} else {
			return nil, "", ErrNotAnImage
		}
	}
	return data, mimeType, nil
}

// guessMIMEType guesses an image type from a reference's file extension,
// defaulting to JPEG.
func guessMIMEType(ref string) string {
	if u, err := url.Parse(ref); err == nil {
		if t := mime.TypeByExtension(strings.ToLower(path.Ext(u.Path))); strings.HasPrefix(t, "image/") {
			return t
		}
	}
	return "image/jpeg"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
