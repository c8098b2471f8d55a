package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/vai-places/pkg/gateway/config"
)

func corsConfig(origins ...string) config.Config {
	cfg := config.Config{CORSAllowedOrigins: map[string]struct{}{}}
	for _, o := range origins {
		cfg.CORSAllowedOrigins[o] = struct{}{}
	}
	return cfg
}

func TestCORS(t *testing.T) {
	const app = "https://app.example.com"
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		preflight  bool
		wantOrigin string
		wantNext   bool
	}{
		{"no origins configured", nil, http.MethodGet, app, false, "", true},
		{"allowed simple request", []string{app}, http.MethodGet, app, false, app, true},
		{"unlisted simple request", []string{app}, http.MethodGet, "https://evil.example.com", false, "", true},
		{"allowed preflight", []string{app}, http.MethodOptions, app, true, app, false},
		{"unlisted preflight", []string{app}, http.MethodOptions, "https://evil.example.com", true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := CORS(corsConfig(tt.origins...), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(tt.method, "/token", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
				req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if called != tt.wantNext {
				t.Fatalf("next called=%v, want %v", called, tt.wantNext)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("Access-Control-Allow-Origin=%q, want %q", got, tt.wantOrigin)
			}
			if tt.wantOrigin == "" {
				return
			}
			if tt.preflight {
				if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Methods") == "" {
					t.Fatalf("preflight status=%d headers=%v", rr.Code, rr.Header())
				}
				return
			}
			if !strings.Contains(rr.Header().Get("Access-Control-Expose-Headers"), "X-Request-Id") &&
				!strings.Contains(rr.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID") {
				t.Fatalf("expose=%q", rr.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}
