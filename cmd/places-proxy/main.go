// Command places-proxy serves the places gateway: realtime credential minting
// plus the maps and web lookups the voice client calls as tools.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vango-go/vai-places/internal/dotenv"
	"github.com/vango-go/vai-places/pkg/gateway/config"
	gatewayserver "github.com/vango-go/vai-places/pkg/gateway/server"
)

const timeoutBody = `{"error":{"type":"api_error","message":"request timed out"}}`

type proxyDeps struct {
	loadConfig func() (config.Config, error)
	newGateway func(config.Config, *slog.Logger) (*gatewayserver.Server, error)
	listen     func(addr string) (net.Listener, error)
	// signals returns the shutdown channel and a func that stops delivery.
	signals func() (<-chan os.Signal, func())
}

func defaultProxyDeps() proxyDeps {
	return proxyDeps{
		loadConfig: config.LoadFromEnv,
		newGateway: gatewayserver.New,
		listen: func(addr string) (net.Listener, error) {
			return net.Listen("tcp", addr)
		},
		signals: func() (<-chan os.Signal, func()) {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
			return ch, func() { signal.Stop(ch) }
		},
	}
}

func (d proxyDeps) validate() error {
	switch {
	case d.loadConfig == nil:
		return errors.New("missing loadConfig dependency")
	case d.newGateway == nil:
		return errors.New("missing newGateway dependency")
	case d.listen == nil:
		return errors.New("missing listen dependency")
	case d.signals == nil:
		return errors.New("missing signals dependency")
	}
	return nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	if cfg.HandlerTimeout > 0 {
		handler = http.TimeoutHandler(handler, cfg.HandlerTimeout, timeoutBody)
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func newLogger(format config.LogFormat, w io.Writer) *slog.Logger {
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, nil))
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

func runProxy(ctx context.Context, stderr io.Writer, deps proxyDeps) error {
	if err := deps.validate(); err != nil {
		return err
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogFormat, stderr)

	gw, err := deps.newGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}
	ln, err := deps.listen(cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting places gateway",
		"addr", ln.Addr().String(),
		"auth_mode", cfg.AuthMode,
		"realtime_model", cfg.RealtimeModel,
		"unconfigured", cfg.Missing(),
	)

	served := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			served <- err
			return
		}
		served <- nil
	}()

	sigs, stopSignals := deps.signals()
	defer stopSignals()

	select {
	case err := <-served:
		return serveError(err)
	case <-ctx.Done():
		logger.Info("context done, shutting down")
	case sig := <-sigs:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	if err := drain(gw, httpSrv, cfg, logger); err != nil {
		return err
	}
	if err := serveError(<-served); err != nil {
		return err
	}
	logger.Info("gateway stopped")
	return nil
}

// drain refuses new credential mints, stops accepting connections and waits
// for in-flight mints within the grace period.
func drain(gw *gatewayserver.Server, httpSrv *http.Server, cfg config.Config, logger *slog.Logger) error {
	gw.Lifecycle().SetDraining(true)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if !gw.Lifecycle().Wait(ctx) {
		logger.Warn("credential mints still in flight at shutdown", "in_flight", gw.Lifecycle().InFlight())
	}
	return nil
}

func serveError(err error) error {
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps proxyDeps) int {
	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "places-proxy: %v\n", err)
		return 1
	}
	if err := runProxy(ctx, stderr, deps); err != nil {
		fmt.Fprintf(stderr, "places-proxy: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultProxyDeps()))
}
