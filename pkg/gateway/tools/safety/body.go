// Package safety bounds what the gateway and its clients read from upstream
// HTTP services.
package safety

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// MaxResponseBytes caps any decoded provider response.
const MaxResponseBytes int64 = 5 << 20

// MaxErrorBodyBytes caps the provider body quoted in error messages.
const MaxErrorBodyBytes int64 = 8 << 10

// DecodeJSON decodes exactly one JSON value of at most limit bytes from resp
// into out. A limit <= 0 means MaxResponseBytes.
func DecodeJSON(resp *http.Response, limit int64, out any) error {
	if resp == nil || resp.Body == nil {
		return errors.New("response body is empty")
	}
	if limit <= 0 {
		limit = MaxResponseBytes
	}
	if ct := resp.Header.Get("Content-Type"); !isJSON(ct) {
		return fmt.Errorf("unexpected content type %q", ct)
	}

	lr := &io.LimitedReader{R: resp.Body, N: limit + 1}
	dec := json.NewDecoder(lr)
	err := dec.Decode(out)
	if err == nil {
		var trailing json.RawMessage
		if dec.Decode(&trailing) != io.EOF {
			err = errors.New("invalid json payload: trailing data")
		}
	}
	if lr.N <= 0 {
		return fmt.Errorf("response exceeds maximum size %d bytes", limit)
	}
	return err
}

// isJSON accepts an absent content type, application/json and +json types.
func isJSON(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasSuffix(mt, "json")
}

// ErrorSnippet returns a trimmed, truncated body for inclusion in an error.
func ErrorSnippet(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodyBytes))
	return strings.TrimSpace(string(b))
}

// ErrTooLarge reports a body that ran past its LimitBody cap.
var ErrTooLarge = errors.New("response exceeds maximum size")

// LimitBody caps rc at limit bytes for readers that do not bound what they
// decode. Reading past the cap fails with ErrTooLarge.
func LimitBody(rc io.ReadCloser, limit int64) io.ReadCloser {
	if limit <= 0 {
		limit = MaxResponseBytes
	}
	return &limitedBody{ReadCloser: rc, limit: limit, left: limit}
}

type limitedBody struct {
	io.ReadCloser
	limit, left int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.left < 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, b.limit)
	}
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.ReadCloser.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		return int(b.left) + n, fmt.Errorf("%w: %d bytes", ErrTooLarge, b.limit)
	}
	return n, err
}
