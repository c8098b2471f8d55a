package handlers

import (
	"net/http"

	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/gateway/config"
	"github.com/vango-go/vai-places/pkg/gateway/lifecycle"
)

// HealthHandler answers liveness probes.
type HealthHandler struct{}

func (HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports 500 for a broken configuration and 503 while
// draining. Missing provider keys are listed but do not fail readiness.
type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

type readiness struct {
	OK            bool     `json:"ok"`
	Draining      bool     `json:"draining,omitempty"`
	AuthMode      string   `json:"auth_mode"`
	LimitsEnabled bool     `json:"limits_enabled"`
	ToolSchema    string   `json:"tool_schema"`
	Tools         []string `json:"tools"`
	Unconfigured  []string `json:"unconfigured,omitempty"`
	Issues        []string `json:"issues,omitempty"`
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	issues := h.issues()
	draining := h.Lifecycle.IsDraining()

	status := http.StatusOK
	switch {
	case len(issues) > 0:
		status = http.StatusInternalServerError
	case draining:
		status = http.StatusServiceUnavailable
	}

	defs := tools.Definitions()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}

	writeJSON(w, status, readiness{
		OK:            status == http.StatusOK,
		Draining:      draining,
		AuthMode:      string(h.Config.AuthMode),
		LimitsEnabled: h.limitsEnabled(),
		ToolSchema:    tools.SchemaVersion,
		Tools:         names,
		Unconfigured:  h.Config.Missing(),
		Issues:        issues,
	})
}

func (h ReadyHandler) issues() []string {
	c := h.Config
	var issues []string
	require := func(ok bool, issue string) {
		if !ok {
			issues = append(issues, issue)
		}
	}

	switch c.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	require(c.AuthMode != config.AuthModeRequired || len(c.APIKeys) > 0, "auth_mode=required but no api keys configured")
	require(c.MaxBodyBytes > 0, "max_body_bytes must be > 0")
	require(c.ReadHeaderTimeout > 0 && c.ReadTimeout > 0 && c.HandlerTimeout > 0, "timeouts must be > 0")
	require(c.UpstreamConnectTimeout > 0 && c.UpstreamResponseHeaderTimeout > 0 && c.UpstreamTimeout > 0, "upstream timeouts must be > 0")
	return issues
}

func (h ReadyHandler) limitsEnabled() bool {
	c := h.Config
	return (c.LimitRPS > 0 && c.LimitBurst > 0) ||
		c.LimitMaxConcurrentRequests > 0 ||
		c.LimitMaxConcurrentIssues > 0
}
