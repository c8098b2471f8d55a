package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	Addr      string
	LogFormat LogFormat

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// Rate-limit identity may come from CF-Connecting-IP, X-Real-IP or
	// X-Forwarded-For. Set only behind a proxy that overwrites them.
	TrustProxyHeaders bool

	MaxBodyBytes int64

	CORSAllowedOrigins map[string]struct{} // no entries disables CORS

	// Per-principal limits, 0 disables each one.
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int
	LimitMaxConcurrentIssues   int

	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults.
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration
	// Per-call budget for provider requests (places, web, credential minting).
	UpstreamTimeout time.Duration

	// Speech model credential minting.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	RealtimeModel string
	RealtimeVoice string // empty => persona voice
	PersonaFile   string

	// Tool backends. An empty key disables the backend.
	GoogleMapsAPIKey  string
	GoogleMapsBaseURL string
	TavilyAPIKey      string
	TavilyBaseURL     string

	MetricsNamespace string
}

// LoadFromEnv reads the gateway configuration. Malformed values are errors,
// never silently replaced by their defaults; all problems are reported at once.
func LoadFromEnv() (Config, error) {
	var e env
	cfg := Config{
		Addr:                          e.str("PLACES_ADDR", ":8080"),
		LogFormat:                     LogFormat(strings.ToLower(e.str("PLACES_LOG_FORMAT", string(LogFormatText)))),
		AuthMode:                      AuthMode(strings.ToLower(e.str("PLACES_AUTH_MODE", string(AuthModeDisabled)))),
		APIKeys:                       e.set("PLACES_API_KEYS"),
		TrustProxyHeaders:             e.boolean("PLACES_TRUST_PROXY_HEADERS", false),
		MaxBodyBytes:                  e.int64("PLACES_MAX_BODY_BYTES", 1<<20),
		CORSAllowedOrigins:            e.set("PLACES_CORS_ORIGINS"),
		LimitRPS:                      e.float("PLACES_RATE_LIMIT_RPS", 0),
		LimitBurst:                    int(e.int64("PLACES_RATE_LIMIT_BURST", 20)),
		LimitMaxConcurrentRequests:    int(e.int64("PLACES_MAX_CONCURRENT_REQUESTS", 32)),
		LimitMaxConcurrentIssues:      int(e.int64("PLACES_MAX_CONCURRENT_ISSUES", 2)),
		ReadHeaderTimeout:             e.duration("PLACES_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                   e.duration("PLACES_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:                e.duration("PLACES_HANDLER_TIMEOUT", 60*time.Second),
		ShutdownGracePeriod:           e.duration("PLACES_SHUTDOWN_GRACE", 15*time.Second),
		UpstreamConnectTimeout:        e.duration("PLACES_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: e.duration("PLACES_RESPONSE_HEADER_TIMEOUT", 30*time.Second),
		UpstreamTimeout:               e.duration("PLACES_UPSTREAM_TIMEOUT", 15*time.Second),
		OpenAIAPIKey:                  e.str("OPENAI_API_KEY", ""),
		OpenAIBaseURL:                 e.str("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		RealtimeModel:                 e.str("PLACES_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
		RealtimeVoice:                 e.str("PLACES_REALTIME_VOICE", ""),
		PersonaFile:                   e.str("PLACES_PERSONA_FILE", ""),
		GoogleMapsAPIKey:              e.str("GOOGLE_MAPS_API_KEY", ""),
		GoogleMapsBaseURL:             e.str("GOOGLE_MAPS_BASE_URL", "https://maps.googleapis.com"),
		TavilyAPIKey:                  e.str("TAVILY_API_KEY", ""),
		TavilyBaseURL:                 e.str("TAVILY_BASE_URL", "https://api.tavily.com"),
		MetricsNamespace:              e.str("PLACES_METRICS_NAMESPACE", "places"),
	}
	if err := errors.Join(append(e.errs, cfg.validate()...)...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error
	check := func(ok bool, key, want string) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s must be %s", key, want))
		}
	}
	switch c.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		check(false, "PLACES_AUTH_MODE", "one of required|optional|disabled")
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		check(false, "PLACES_LOG_FORMAT", "one of text|json")
	}
	check(c.MaxBodyBytes > 0, "PLACES_MAX_BODY_BYTES", "> 0")
	for key, d := range map[string]time.Duration{
		"PLACES_READ_HEADER_TIMEOUT":     c.ReadHeaderTimeout,
		"PLACES_READ_TIMEOUT":            c.ReadTimeout,
		"PLACES_HANDLER_TIMEOUT":         c.HandlerTimeout,
		"PLACES_SHUTDOWN_GRACE":          c.ShutdownGracePeriod,
		"PLACES_CONNECT_TIMEOUT":         c.UpstreamConnectTimeout,
		"PLACES_RESPONSE_HEADER_TIMEOUT": c.UpstreamResponseHeaderTimeout,
		"PLACES_UPSTREAM_TIMEOUT":        c.UpstreamTimeout,
	} {
		check(d > 0, key, "> 0")
	}
	check(c.RealtimeModel != "", "PLACES_REALTIME_MODEL", "non-empty")
	check(c.LimitRPS >= 0, "PLACES_RATE_LIMIT_RPS", ">= 0")
	check(c.LimitBurst >= 0, "PLACES_RATE_LIMIT_BURST", ">= 0")
	check(c.LimitMaxConcurrentRequests >= 0, "PLACES_MAX_CONCURRENT_REQUESTS", ">= 0")
	check(c.LimitMaxConcurrentIssues >= 0, "PLACES_MAX_CONCURRENT_ISSUES", ">= 0")
	check(c.AuthMode != AuthModeRequired || len(c.APIKeys) > 0, "PLACES_API_KEYS", "set when PLACES_AUTH_MODE=required")
	return errs
}

// Missing reports the provider credentials that are not configured. The
// gateway still starts; the affected operations fail with a configuration error.
func (c Config) Missing() []string {
	var out []string
	if c.OpenAIAPIKey == "" {
		out = append(out, "OPENAI_API_KEY")
	}
	if c.GoogleMapsAPIKey == "" {
		out = append(out, "GOOGLE_MAPS_API_KEY")
	}
	if c.TavilyAPIKey == "" {
		out = append(out, "TAVILY_API_KEY")
	}
	return out
}

// env reads trimmed variables and collects parse failures.
type env struct {
	errs []error
}

func (e *env) raw(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func (e *env) str(key, def string) string {
	if v := e.raw(key); v != "" {
		return v
	}
	return def
}

func (e *env) parse(key string, fn func(string) error) {
	v := e.raw(key)
	if v == "" {
		return
	}
	if err := fn(v); err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, v, err))
	}
}

func (e *env) int64(key string, def int64) int64 {
	e.parse(key, func(v string) (err error) {
		def, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	return def
}

func (e *env) float(key string, def float64) float64 {
	e.parse(key, func(v string) (err error) {
		def, err = strconv.ParseFloat(v, 64)
		return err
	})
	return def
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	e.parse(key, func(v string) (err error) {
		def, err = time.ParseDuration(v)
		return err
	})
	return def
}

func (e *env) boolean(key string, def bool) bool {
	e.parse(key, func(v string) error {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			def = true
		case "0", "false", "no", "off":
			def = false
		default:
			return errors.New("not a boolean")
		}
		return nil
	})
	return def
}

// set splits a comma-separated list, dropping blanks.
func (e *env) set(key string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, item := range strings.Split(e.raw(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out[item] = struct{}{}
		}
	}
	return out
}
