package mw

import (
	"net/http"
	"time"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/gateway/config"
	"github.com/vango-go/vai-places/pkg/gateway/metrics"
	"github.com/vango-go/vai-places/pkg/gateway/principal"
	"github.com/vango-go/vai-places/pkg/gateway/ratelimit"
)

// RateLimit charges each API request to its resolved principal.
func RateLimit(cfg config.Config, limiter *ratelimit.Limiter, m *metrics.Metrics, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isOperational(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		id := principal.Resolve(r, cfg.TrustProxyHeaders)
		dec := limiter.Request(id.Key, time.Now())
		if !dec.Allowed {
			m.RecordRateLimitHit("request")
			WriteRateLimited(w, r, "rate limit exceeded", dec.RetryAfter)
			return
		}
		defer dec.Permit.Release()

		next.ServeHTTP(w, r)
	})
}

// WriteRateLimited writes a 429 envelope with a Retry-After header.
func WriteRateLimited(w http.ResponseWriter, r *http.Request, message string, retryAfter int) {
	writeRequestError(w, r, http.StatusTooManyRequests, core.NewRateLimitError(message, retryAfter))
}
