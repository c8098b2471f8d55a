package mw

import (
	"net/http"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/gateway/auth"
	"github.com/vango-go/vai-places/pkg/gateway/config"
)

// Auth checks bearer keys against cfg.APIKeys. Optional mode lets anonymous
// callers through but still rejects unknown keys.
func Auth(cfg config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch cfg.AuthMode {
		case config.AuthModeDisabled:
			next.ServeHTTP(w, r)
			return
		case config.AuthModeOptional, config.AuthModeRequired:
		default:
			writeRequestError(w, r, http.StatusInternalServerError, core.NewConfigurationError("invalid auth_mode"))
			return
		}
		if isOperational(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := auth.BearerToken(r.Header)
		switch {
		case !ok && cfg.AuthMode == config.AuthModeOptional:
			next.ServeHTTP(w, r)
		case !ok:
			e := core.NewAuthenticationError("missing bearer token")
			e.Param = "Authorization"
			writeRequestError(w, r, http.StatusUnauthorized, e)
		case !knownKey(cfg, token):
			writeRequestError(w, r, http.StatusUnauthorized, core.NewAuthenticationError("invalid api key"))
		default:
			p := &auth.Principal{APIKey: token}
			next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), p)))
		}
	})
}

func knownKey(cfg config.Config, token string) bool {
	_, ok := cfg.APIKeys[token]
	return ok
}
