package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/vai-places/pkg/gateway/auth"
	"github.com/vango-go/vai-places/pkg/gateway/config"
)

func authConfig(mode config.AuthMode) config.Config {
	return config.Config{AuthMode: mode, APIKeys: map[string]struct{}{"places_sk_test": {}}}
}

func TestAuth_RequiredRejectsMissingBearer(t *testing.T) {
	h := Auth(authConfig(config.AuthModeRequired), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/token", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_RequiredAcceptsKnownKeyAndAttachesPrincipal(t *testing.T) {
	h := Auth(authConfig(config.AuthModeRequired), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if !ok || p.APIKey != "places_sk_test" {
			t.Errorf("principal=%+v ok=%v", p, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/token", nil)
	req.Header.Set("Authorization", "Bearer places_sk_test")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestAuth_OptionalRejectsUnknownKey(t *testing.T) {
	h := Auth(authConfig(config.AuthModeOptional), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/places/search", nil)
	req.Header.Set("Authorization", "Bearer nope")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/places/search", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("anonymous status=%d", rr.Code)
	}
}

func TestAuth_OperationalEndpointsBypass(t *testing.T) {
	h := Auth(authConfig(config.AuthModeRequired), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for _, path := range []string{"/health", "/ready", "/metrics"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestAuth_InvalidModeIsConfigurationError(t *testing.T) {
	h := RequestID(Auth(authConfig("sometimes"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next should not run")
	})))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/places/search", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"type":"configuration_error"`) || !strings.Contains(rr.Body.String(), `"request_id":"req_`) {
		t.Fatalf("body=%s", rr.Body.String())
	}
}
