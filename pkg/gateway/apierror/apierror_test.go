package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/vai-places/pkg/core"
)

func TestFromError_Statuses(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		want     int
		wantType core.ErrorType
		wantCode string
	}{
		{"invalid argument", core.NewInvalidArgument("query", "query is required"), 400, core.ErrInvalidArgument, ""},
		{"malformed", core.NewMalformedArguments(errors.New("eof")), 400, core.ErrMalformedArguments, ""},
		{"unknown tool", core.NewUnknownTool("nope"), 404, core.ErrUnknownTool, ""},
		{"configuration", core.NewConfigurationError("GOOGLE_MAPS_API_KEY is not set"), 500, core.ErrConfiguration, ""},
		{"upstream", core.NewUpstreamError("googlemaps", errors.New("REQUEST_DENIED")), 500, core.ErrUpstream, ""},
		{"credential", core.NewCredentialError(errors.New("401")), 502, core.ErrCredential, ""},
		{"transport", core.NewTransportError("closed", nil), 502, core.ErrTransport, ""},
		{"authentication", core.NewAuthenticationError("missing key"), 401, core.ErrAuthentication, ""},
		{"rate limit", core.NewRateLimitError("slow down", 1), 429, core.ErrRateLimit, ""},
		{"wrapped deadline", fmt.Errorf("search: %w", context.DeadlineExceeded), 504, core.ErrUpstream, "timeout"},
		{"cancelled", context.Canceled, 408, core.ErrAPI, "cancelled"},
		{"upstream wrapping deadline", core.NewUpstreamError("tavily", context.DeadlineExceeded), 500, core.ErrUpstream, ""},
		{"opaque", errors.New("secret internals"), 500, core.ErrAPI, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ce, status := FromError(tc.err, "req_x")
			if status != tc.want {
				t.Fatalf("status=%d want=%d", status, tc.want)
			}
			if ce.Type != tc.wantType || ce.Code != tc.wantCode || ce.RequestID != "req_x" {
				t.Fatalf("error=%+v", ce)
			}
		})
	}
}

func TestFromError_OpaqueHidesMessage(t *testing.T) {
	ce, _ := FromError(errors.New("secret internals"), "")
	if ce.Message != "internal error" {
		t.Fatalf("message=%q", ce.Message)
	}
}

func TestFromError_DoesNotMutateInput(t *testing.T) {
	orig := core.NewNotFoundError("no such place")
	FromError(orig, "req_y")
	if orig.RequestID != "" {
		t.Fatalf("input mutated: %+v", orig)
	}
}

func TestWriteError_RateLimitSetsRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, "req_z", core.NewRateLimitError("slow down", 3))

	if rr.Code != 429 || rr.Header().Get("Retry-After") != "3" {
		t.Fatalf("status=%d retry-after=%q", rr.Code, rr.Header().Get("Retry-After"))
	}
	var env Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Error == nil || env.Error.RequestID != "req_z" || env.Error.Type != core.ErrRateLimit {
		t.Fatalf("envelope=%+v", env.Error)
	}
}
