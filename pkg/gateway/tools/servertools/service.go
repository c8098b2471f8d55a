package servertools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/gateway/metrics"
	"github.com/vango-go/vai-places/pkg/gateway/tools/adapters/googlemaps"
	"github.com/vango-go/vai-places/pkg/gateway/tools/adapters/tavily"
)

const (
	ProviderGoogleMaps = "googlemaps"
	ProviderTavily     = "tavily"

	DefaultTimeout = 15 * time.Second
)

type Options struct {
	Maps    *googlemaps.Client
	Web     *tavily.Client
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Service implements tools.Provider against the Google Maps and Tavily APIs.
type Service struct {
	maps    *googlemaps.Client
	web     *tavily.Client
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ tools.Provider = (*Service)(nil)

func New(opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		maps:    opts.Maps,
		web:     opts.Web,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

func (s *Service) mapsReady() error {
	if s.maps == nil || !s.maps.Configured() {
		return core.NewConfigurationError("GOOGLE_MAPS_API_KEY is not set")
	}
	return nil
}

func (s *Service) webReady() error {
	if s.web == nil || !s.web.Configured() {
		return core.NewConfigurationError("TAVILY_API_KEY is not set")
	}
	return nil
}

// call bounds fn by the per-call timeout, records the outcome and classifies
// any failure as an upstream error.
func (s *Service) call(ctx context.Context, provider, operation string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	s.metrics.RecordUpstream(provider, operation, outcome, elapsed)
	if err == nil {
		return nil
	}

	s.logger.Warn("upstream call failed",
		"provider", provider,
		"operation", operation,
		"outcome", outcome,
		"duration_ms", elapsed.Milliseconds(),
		"error", err,
	)
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	if outcome == "timeout" {
		return core.NewUpstreamError(provider, fmt.Errorf("%s timed out after %s: %w", operation, s.timeout, err))
	}
	ue := core.NewUpstreamError(provider, err)
	var se *tavily.StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		secs := int(se.RetryAfter / time.Second)
		ue.RetryAfter = &secs
	}
	return ue
}
