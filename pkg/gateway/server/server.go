package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/gateway/config"
	"github.com/vango-go/vai-places/pkg/gateway/handlers"
	"github.com/vango-go/vai-places/pkg/gateway/issuer"
	"github.com/vango-go/vai-places/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-places/pkg/gateway/metrics"
	"github.com/vango-go/vai-places/pkg/gateway/mw"
	"github.com/vango-go/vai-places/pkg/gateway/ratelimit"
	"github.com/vango-go/vai-places/pkg/gateway/tools/adapters/googlemaps"
	"github.com/vango-go/vai-places/pkg/gateway/tools/adapters/tavily"
	"github.com/vango-go/vai-places/pkg/gateway/tools/servertools"
	"github.com/vango-go/vai-places/pkg/gateway/upstream"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	router *mux.Router

	httpClient *http.Client
	limiter    *ratelimit.Limiter
	lifecycle  *lifecycle.Lifecycle
	metrics    *metrics.Metrics
	places     *servertools.Service
	issuer     *issuer.Issuer
}

func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.UpstreamConnectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}

	m := metrics.New(cfg.MetricsNamespace)
	places := servertools.New(servertools.Options{
		Maps:    googlemaps.NewClient(cfg.GoogleMapsAPIKey, cfg.GoogleMapsBaseURL, httpClient),
		Web:     tavily.NewClient(cfg.TavilyAPIKey, cfg.TavilyBaseURL, httpClient),
		Timeout: cfg.UpstreamTimeout,
		Metrics: m,
		Logger:  logger,
	})
	if err := servertools.ForProvider(places).Validate(tools.Definitions()); err != nil {
		return nil, err
	}

	persona, err := issuer.LoadPersona(cfg.PersonaFile)
	if err != nil {
		return nil, fmt.Errorf("load persona: %w", err)
	}
	iss, err := issuer.New(issuer.Options{
		Minter:   upstream.NewMinter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, httpClient),
		Geocoder: places,
		Persona:  persona,
		Model:    cfg.RealtimeModel,
		Voice:    cfg.RealtimeVoice,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		router:     mux.NewRouter(),
		httpClient: httpClient,
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.LimitRPS,
			Burst:                 cfg.LimitBurst,
			MaxConcurrentRequests: cfg.LimitMaxConcurrentRequests,
			MaxConcurrentMints:    cfg.LimitMaxConcurrentIssues,
		}),
		lifecycle: &lifecycle.Lifecycle{},
		metrics:   m,
		places:    places,
		issuer:    iss,
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.NotFoundHandler = handlers.NotFoundHandler{}
	r.MethodNotAllowedHandler = handlers.MethodNotAllowedHandler{}
	r.Use(mw.Metrics(s.metrics))

	r.Handle("/health", handlers.HealthHandler{}).Methods(http.MethodGet)
	r.Handle("/ready", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle}).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	token := handlers.TokenHandler{
		Config:    s.cfg,
		Issuer:    s.issuer,
		Limiter:   s.limiter,
		Lifecycle: s.lifecycle,
		Metrics:   s.metrics,
		Logger:    s.logger,
	}
	r.Handle("/token", token).Methods(http.MethodPost)
	r.Handle("/v1/realtime/session", token).Methods(http.MethodPost)

	places := handlers.PlacesHandler{Service: s.places}
	api := r.PathPrefix("/api/places").Subrouter()
	api.HandleFunc("/search", places.Search).Methods(http.MethodGet)
	api.HandleFunc("/details/{placeId}", places.Details).Methods(http.MethodGet)
	api.HandleFunc("/directions", places.Directions).Methods(http.MethodGet)
	api.HandleFunc("/geocode", places.Geocode).Methods(http.MethodGet)
	api.HandleFunc("/nearby", places.Nearby).Methods(http.MethodGet)
	api.HandleFunc("/photo", places.Photo).Methods(http.MethodGet)

	web := handlers.WebHandler{Config: s.cfg, Provider: s.places}
	r.HandleFunc("/api/web/search", web.Search).Methods(http.MethodPost)
	r.HandleFunc("/api/web/extract", web.Extract).Methods(http.MethodPost)
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = mw.RateLimit(s.cfg, s.limiter, s.metrics, h)
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

func (s *Server) Lifecycle() *lifecycle.Lifecycle {
	return s.lifecycle
}

func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}
