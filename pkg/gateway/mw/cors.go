package mw

import (
	"net/http"
	"sort"

	"github.com/rs/cors"

	"github.com/vango-go/vai-places/pkg/gateway/config"
)

// CORS allows browser callers from the configured origins only. With no
// origins configured it adds nothing.
func CORS(cfg config.Config, next http.Handler) http.Handler {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return next
	}
	origins := make([]string, 0, len(cfg.CORSAllowedOrigins))
	for o := range cfg.CORSAllowedOrigins {
		origins = append(origins, o)
	}
	sort.Strings(origins)

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         600,
	})
	return c.Handler(next)
}
