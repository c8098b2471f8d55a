package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/gateway/config"
	"github.com/vango-go/vai-places/pkg/gateway/issuer"
	"github.com/vango-go/vai-places/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-places/pkg/gateway/metrics"
	"github.com/vango-go/vai-places/pkg/gateway/mw"
	"github.com/vango-go/vai-places/pkg/gateway/principal"
	"github.com/vango-go/vai-places/pkg/gateway/ratelimit"
)

type TokenIssuer interface {
	Issue(ctx context.Context, loc *geo.Coordinates) (*issuer.Grant, error)
}

// TokenRequest is the optional body of POST /token.
type TokenRequest struct {
	UserLocation *geo.Coordinates `json:"userLocation,omitempty"`
}

// TokenHandler mints a realtime credential for one voice session.
type TokenHandler struct {
	Config    config.Config
	Issuer    TokenIssuer
	Limiter   *ratelimit.Limiter
	Lifecycle *lifecycle.Lifecycle
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func (h TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		methodNotAllowed(w, reqID)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrAPI, Message: "gateway is draining", Code: "draining"}, http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidArgument("body", "failed to read request body"), http.StatusBadRequest)
		return
	}
	var req TokenRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeCoreErrorJSON(w, reqID, core.NewInvalidArgument("body", "request body must be a JSON object"), http.StatusBadRequest)
			return
		}
	}

	id := principal.Resolve(r, h.Config.TrustProxyHeaders)
	if h.Limiter != nil {
		dec := h.Limiter.Mint(id.Key, time.Now())
		if !dec.Allowed {
			h.Metrics.RecordRateLimitHit("issue")
			mw.WriteRateLimited(w, r, "too many concurrent session requests", dec.RetryAfter)
			return
		}
		defer dec.Permit.Release()
	}

	done := h.Lifecycle.Begin()
	defer done()

	grant, err := h.Issuer.Issue(r.Context(), req.UserLocation)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("token issue failed", "request_id", reqID, "principal", id, "error", err)
		}
		writeErr(w, reqID, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, grant)
}
