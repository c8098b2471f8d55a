package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/gateway/config"
	"github.com/vango-go/vai-places/pkg/gateway/issuer"
	"github.com/vango-go/vai-places/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-places/pkg/gateway/upstream"
)

type fakeIssuer struct {
	got   []*geo.Coordinates
	grant *issuer.Grant
	err   error
}

func (f *fakeIssuer) Issue(_ context.Context, loc *geo.Coordinates) (*issuer.Grant, error) {
	f.got = append(f.got, loc)
	return f.grant, f.err
}

func tokenConfig() config.Config {
	return config.Config{MaxBodyBytes: 1 << 20}
}

func TestTokenHandler_IssuesWithLocation(t *testing.T) {
	iss := &fakeIssuer{grant: &issuer.Grant{
		ClientSecret: upstream.ClientSecret{Value: "ek_1", ExpiresAt: 99},
		LocationInfo: &issuer.LocationInfo{City: "Ottawa", FullAddress: "Ottawa, ON", Coordinates: geo.Coordinates{Latitude: 45.42, Longitude: -75.69}},
		Fields:       map[string]any{"id": "sess_1"},
	}}
	h := TokenHandler{Config: tokenConfig(), Issuer: iss}

	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"userLocation":{"latitude":45.42,"longitude":-75.69}}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if len(iss.got) != 1 || iss.got[0] == nil || iss.got[0].Latitude != 45.42 {
		t.Fatalf("issuer got=%v", iss.got)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["id"] != "sess_1" {
		t.Fatalf("resp=%v", resp)
	}
	if cs, _ := resp["client_secret"].(map[string]any); cs["value"] != "ek_1" {
		t.Fatalf("client_secret=%v", resp["client_secret"])
	}
	if li, _ := resp["locationInfo"].(map[string]any); li["city"] != "Ottawa" {
		t.Fatalf("locationInfo=%v", resp["locationInfo"])
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("cache-control=%q", got)
	}
}

func TestTokenHandler_EmptyBodyIssuesWithoutLocation(t *testing.T) {
	iss := &fakeIssuer{grant: &issuer.Grant{ClientSecret: upstream.ClientSecret{Value: "ek"}}}
	h := TokenHandler{Config: tokenConfig(), Issuer: iss}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/token", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if len(iss.got) != 1 || iss.got[0] != nil {
		t.Fatalf("issuer got=%v", iss.got)
	}
}

func TestTokenHandler_CredentialErrorIs502(t *testing.T) {
	iss := &fakeIssuer{err: core.NewCredentialError(errors.New("401 from upstream"))}
	h := TokenHandler{Config: tokenConfig(), Issuer: iss}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{}`)))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"type":"credential_error"`) {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestTokenHandler_RejectsBadInput(t *testing.T) {
	h := TokenHandler{Config: tokenConfig(), Issuer: &fakeIssuer{}}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/token", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"userLocation":`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json status=%d", rr.Code)
	}
}

func TestTokenHandler_DrainingIs503(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	iss := &fakeIssuer{}
	h := TokenHandler{Config: tokenConfig(), Issuer: iss, Lifecycle: lc}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/token", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	if len(iss.got) != 0 {
		t.Fatalf("issuer called while draining")
	}
}
