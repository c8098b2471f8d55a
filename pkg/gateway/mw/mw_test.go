package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID(t *testing.T) {
	long := strings.Repeat("a", maxRequestIDLen+1)
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"minted when absent", "", false},
		{"caller id echoed", "trace-42", true},
		{"spaces rejected", "two words", false},
		{"oversized rejected", long, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = RequestIDFrom(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			got := rr.Header().Get("X-Request-ID")
			if got != seen {
				t.Fatalf("header=%q context=%q", got, seen)
			}
			if tt.keep {
				if got != tt.incoming {
					t.Fatalf("got %q, want %q", got, tt.incoming)
				}
				return
			}
			if !strings.HasPrefix(got, "req_") || len(got) != 36 {
				t.Fatalf("minted id=%q", got)
			}
		})
	}
}
