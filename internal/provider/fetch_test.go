package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gifBytes = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")

func newTestFetcher(t *testing.T, maxBytes int64) *HTTPImageFetcher {
	t.Helper()
	f, err := NewHTTPImageFetcher(&http.Client{}, 5*time.Second, maxBytes)
	require.NoError(t, err)
	return f
}

func TestNewHTTPImageFetcherValidation(t *testing.T) {
	_, err := NewHTTPImageFetcher(nil, time.Second, 10)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewHTTPImageFetcher(&http.Client{}, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHTTPImageFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/declared.png":
			w.Header().Set("Content-Type", "image/png; charset=binary")
			_, _ = w.Write([]byte("not really png"))
		case "/sniffed":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(gifBytes)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		case "/big.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, 32)
	ctx := context.Background()

	t.Run("declared image type", func(t *testing.T) {
		data, mimeType, err := f.Fetch(ctx, srv.URL+"/declared.png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", mimeType)
		assert.Equal(t, []byte("not really png"), data)
	})

	t.Run("sniffed image type", func(t *testing.T) {
		_, mimeType, err := f.Fetch(ctx, srv.URL+"/sniffed")
		require.NoError(t, err)
		assert.Equal(t, "image/gif", mimeType)
	})

	t.Run("non image rejected", func(t *testing.T) {
		_, _, err := f.Fetch(ctx, srv.URL+"/page")
		assert.ErrorIs(t, err, ErrNotAnImage)
	})

	t.Run("size limit", func(t *testing.T) {
		_, _, err := f.Fetch(ctx, srv.URL+"/big.png")
		assert.ErrorIs(t, err, ErrImageTooLarge)
	})

	t.Run("status error", func(t *testing.T) {
		_, _, err := f.Fetch(ctx, srv.URL+"/missing.png")
		assert.ErrorIs(t, err, ErrFetchStatus)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, _, err := f.Fetch(ctx, "ftp://example.com/a.png")
		assert.ErrorIs(t, err, ErrUnsupportedReference)
	})

	t.Run("data URI decoded without network", func(t *testing.T) {
		ref := "data:image/gif;base64," + base64.StdEncoding.EncodeToString(gifBytes)
		data, mimeType, err := f.Fetch(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "image/gif", mimeType)
		assert.Equal(t, gifBytes, data)
	})
}

func TestDecodeDataURI(t *testing.T) {
	_, _, err := DecodeDataURI("data:image/png,plain")
	assert.ErrorIs(t, err, ErrUnsupportedReference)

	_, _, err = DecodeDataURI("data:image/png;base64,!!!")
	assert.ErrorIs(t, err, ErrUnsupportedReference)

	_, _, err = DecodeDataURI("https://example.com/a.png")
	assert.ErrorIs(t, err, ErrUnsupportedReference)

	data, mimeType, err := DecodeDataURI("data:;base64," + base64.StdEncoding.EncodeToString(gifBytes))
	require.NoError(t, err)
	assert.Equal(t, "image/gif", mimeType, "missing type is sniffed")
	assert.Equal(t, gifBytes, data)
}

func TestGuessMIMEType(t *testing.T) {
	assert.Equal(t, "image/png", guessMIMEType("https://a.test/x.PNG?sig=1"))
	assert.Equal(t, "image/webp", guessMIMEType("https://a.test/x.webp"))
	assert.Equal(t, "image/jpeg", guessMIMEType("https://a.test/x"))
}
