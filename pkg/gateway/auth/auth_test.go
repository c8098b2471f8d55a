package auth

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer places_sk_1", "places_sk_1", true},
		{"bearer   places_sk_1  ", "places_sk_1", true},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer", "", false},
		{"Bearer    ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.header != "" {
			h.Set("Authorization", tt.header)
		}
		got, ok := BearerToken(h)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("BearerToken(%q)=(%q,%v), want (%q,%v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPrincipalContextAndFingerprint(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context should carry no principal")
	}
	p := &Principal{APIKey: "places_sk_secret"}
	got, ok := FromContext(NewContext(context.Background(), p))
	if !ok || got != p {
		t.Fatalf("FromContext=%v,%v", got, ok)
	}

	fp := p.Fingerprint()
	if !strings.HasPrefix(fp, "k_") || len(fp) != 34 || strings.Contains(fp, "secret") {
		t.Fatalf("fingerprint=%q", fp)
	}
	if fp != (&Principal{APIKey: "places_sk_secret"}).Fingerprint() {
		t.Fatal("fingerprint is not stable")
	}
}
