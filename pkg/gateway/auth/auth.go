// Package auth carries the API key a request authenticated with.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Principal is a caller that presented a configured gateway key.
type Principal struct {
	APIKey string
}

// Fingerprint is a stable label for the key that is safe to log and to use
// as a map key.
func (p *Principal) Fingerprint() string {
	sum := sha256.Sum256([]byte(p.APIKey))
	return "k_" + hex.EncodeToString(sum[:16])
}

type ctxKey struct{}

func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// BearerToken returns the credential of an "Authorization: Bearer" header.
// The scheme matches case-insensitively.
func BearerToken(h http.Header) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
