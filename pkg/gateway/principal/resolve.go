// Package principal decides who a request is charged to for rate limits.
package principal

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/vango-go/vai-places/pkg/gateway/auth"
)

type Kind string

const (
	KindAPIKey Kind = "api_key"
	KindIP     Kind = "ip"
	KindAnon   Kind = "anonymous"
)

// Identity is the resolved caller. Raw holds the API key or client address
// and never reaches logs; Key is the hashed form used for limiter buckets.
type Identity struct {
	Kind Kind
	Raw  string
	Key  string
}

func (id Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(id.Kind)),
		slog.String("key", id.Key),
	)
}

var anonymous = Identity{Kind: KindAnon, Key: "anonymous"}

// Resolve prefers an authenticated key and falls back to the client address.
func Resolve(r *http.Request, trustProxyHeaders bool) Identity {
	if r == nil {
		return anonymous
	}
	if p, ok := auth.FromContext(r.Context()); ok && strings.TrimSpace(p.APIKey) != "" {
		return Identity{Kind: KindAPIKey, Raw: p.APIKey, Key: p.Fingerprint()}
	}
	ip := ClientIP(r, trustProxyHeaders)
	if ip == "" {
		return anonymous
	}
	sum := sha256.Sum256([]byte(ip))
	return Identity{Kind: KindIP, Raw: ip, Key: "ip_" + hex.EncodeToString(sum[:16])}
}

// proxyHeaders are consulted in order behind a trusted proxy.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"}

// ClientIP returns the caller address, or "" when none parses.
func ClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		for _, name := range proxyHeaders {
			// X-Forwarded-For lists the original client first.
			first, _, _ := strings.Cut(r.Header.Get(name), ",")
			if ip := normalizeIP(first); ip != "" {
				return ip
			}
		}
	}
	return normalizeIP(r.RemoteAddr)
}

func normalizeIP(s string) string {
	s = strings.TrimSpace(s)
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}
