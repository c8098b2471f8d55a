package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-go/vai-places/internal/dotenv"
)

const defaultRealtimeModel = "gpt-4o-realtime-preview-2024-12-17"

type rootOptions struct {
	gatewayURL  string
	gatewayKey  string
	realtimeURL string
	model       string
	logFormat   string
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dotenv.LoadFile(".env"); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "places-voice: %v\n", err)
		os.Exit(1)
	}
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "places-voice: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "places-voice",
		Short:         "Headless realtime client for the places assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.gatewayURL, "gateway", envOr("PLACES_GATEWAY_URL", "http://localhost:8080"), "places gateway base URL")
	pf.StringVar(&opts.gatewayKey, "gateway-key", os.Getenv("PLACES_GATEWAY_KEY"), "bearer key for the gateway")
	pf.StringVar(&opts.realtimeURL, "realtime-url", envOr("PLACES_REALTIME_URL", "wss://api.openai.com/v1/realtime"), "realtime WebSocket endpoint")
	pf.StringVar(&opts.model, "model", envOr("PLACES_REALTIME_MODEL", defaultRealtimeModel), "realtime model")
	pf.StringVar(&opts.logFormat, "log-format", envOr("PLACES_LOG_FORMAT", "text"), "log format: text or json")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newChatCmd(opts))
	root.AddCommand(newEventsCmd())
	return root
}

func (o *rootOptions) logger(w io.Writer) (*slog.Logger, error) {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(o.logFormat) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("log format must be text or json, got %q", o.logFormat)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
