package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/voice"
	"github.com/vango-go/vai-places/pkg/voice/dispatch"
	"github.com/vango-go/vai-places/pkg/voice/eventlog"
	"github.com/vango-go/vai-places/pkg/voice/eventlog/sqlitesink"
	"github.com/vango-go/vai-places/pkg/voice/proxyclient"
	"github.com/vango-go/vai-places/pkg/voice/realtime"
	"github.com/vango-go/vai-places/pkg/voice/session"
	"github.com/vango-go/vai-places/pkg/voice/transport"
)

type chatOptions struct {
	root        *rootOptions
	lat, lng    float64
	eventDB     string
	toolTimeout time.Duration
	stopTimeout time.Duration
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{root: root}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a session and send text turns from stdin",
		Long: `Start a realtime session through the places gateway. Each stdin line is
sent as a user turn; transcripts and tool activity are printed as they arrive.

Commands typed on stdin:
  /stats   print session statistics
  /quit    end the session`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := root.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			var loc *geo.Coordinates
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				loc = &geo.Coordinates{Latitude: opts.lat, Longitude: opts.lng}
				if !loc.Valid() {
					return fmt.Errorf("--lat/--lng out of range")
				}
			}
			return runChat(cmd.Context(), opts, loc, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&opts.lat, "lat", 0, "user latitude")
	f.Float64Var(&opts.lng, "lng", 0, "user longitude")
	f.StringVar(&opts.eventDB, "event-db", "", "persist the session event log to this SQLite file")
	f.DurationVar(&opts.toolTimeout, "tool-timeout", dispatch.DefaultToolTimeout, "per tool call timeout")
	f.DurationVar(&opts.stopTimeout, "stop-timeout", 5*time.Second, "how long to wait for the session to close")
	return cmd
}

func runChat(ctx context.Context, opts *chatOptions, loc *geo.Coordinates, in io.Reader, out io.Writer, logger *slog.Logger) error {
	client := proxyclient.NewClient(opts.root.gatewayKey, opts.root.gatewayURL, nil)

	var sink eventlog.Sink
	if opts.eventDB != "" {
		db, err := sqlitesink.Open(ctx, opts.eventDB)
		if err != nil {
			return err
		}
		// The session closes the sink with its log; closing again is a no-op.
		defer db.Close()
		sink = db
	}

	var locator voice.Locator
	if loc != nil {
		locator = voice.StaticLocation(*loc)
	}

	p := &printer{w: out}
	active := make(chan struct{})
	var activeOnce sync.Once
	failures := make(chan error, 1)

	ctrl := voice.NewController(voice.ControllerConfig{
		Session: session.Config{
			Credentials: client,
			Transport: transport.NewWebSocket(transport.WebSocketConfig{
				URL:    opts.root.realtimeURL,
				Model:  opts.root.model,
				Logger: logger,
			}),
			Tools:       client,
			ToolTimeout: opts.toolTimeout,
			LogSink:     sink,
			OnStateChange: func(_, to session.State) {
				if to == session.StateActive {
					activeOnce.Do(func() { close(active) })
				}
			},
			OnError: func(err error) {
				select {
				case failures <- err:
				default:
				}
			},
			OnEvent:      p.event,
			OnToolResult: p.tool,
			Logger:       logger,
		},
		Locator: locator,
		Logger:  logger,
	})

	s, err := ctrl.Start(ctx)
	if err != nil {
		return err
	}

	select {
	case <-active:
	case err := <-failures:
		return err
	case <-s.Done():
		return sessionEnded(s)
	case <-ctx.Done():
		return stopSession(ctrl, s, opts.stopTimeout)
	}

	if place := s.Place(); place != "" {
		p.printf("session %s active near %s\n", s.ID(), place)
	} else {
		p.printf("session %s active\n", s.ID())
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-s.Done():
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return stopSession(ctrl, s, opts.stopTimeout)
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
			case "/quit":
				return stopSession(ctrl, s, opts.stopTimeout)
			case "/stats":
				if st, ok := s.Stats(); ok {
					p.stats(st)
				}
			default:
				if err := s.SendText(line); err != nil {
					logger.Warn("send text failed", "error", err)
				}
			}
		case err := <-failures:
			return err
		case <-s.Done():
			return sessionEnded(s)
		case <-ctx.Done():
			return stopSession(ctrl, s, opts.stopTimeout)
		}
	}
}

func stopSession(ctrl *voice.Controller, s *session.Session, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ctrl.Stop(ctx); err != nil {
		return err
	}
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session %s did not close: %w", s.ID(), ctx.Err())
	}
}

// sessionEnded reports why a session finished without being stopped.
func sessionEnded(s *session.Session) error {
	return s.Err()
}

// printer serializes output from the session loop and the tool workers.
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	midLine bool
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLine()
	_, _ = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) breakLine() {
	if p.midLine {
		_, _ = io.WriteString(p.w, "\n")
		p.midLine = false
	}
}

func (p *printer) event(ev realtime.ServerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Type {
	case realtime.EventAudioTranscriptDelta, realtime.EventTextDelta:
		if ev.Delta == "" {
			return
		}
		if !p.midLine {
			_, _ = io.WriteString(p.w, "assistant: ")
		}
		_, _ = io.WriteString(p.w, ev.Delta)
		p.midLine = true
	case realtime.EventAudioTranscriptDone, realtime.EventResponseDone:
		p.breakLine()
	case realtime.EventInputTranscriptCompleted:
		if t := strings.TrimSpace(ev.Transcript); t != "" {
			p.breakLine()
			_, _ = fmt.Fprintf(p.w, "you: %s\n", t)
		}
	case realtime.EventError:
		p.breakLine()
		msg := "unknown error"
		if ev.Error != nil && ev.Error.Message != "" {
			msg = ev.Error.Message
		}
		_, _ = fmt.Fprintf(p.w, "error: %s\n", msg)
	}
}

func (p *printer) tool(res dispatch.Result) {
	took := res.Duration.Round(time.Millisecond)
	if res.Err != nil {
		p.printf("[tool] %s failed after %s: %s\n", res.Call.Name, took, core.TypeOf(res.Err))
		return
	}
	p.printf("[tool] %s ok in %s\n", res.Call.Name, took)
}

func (p *printer) stats(st session.Stats) {
	types := make([]string, 0, len(st.EventCounts))
	for t := range st.EventCounts {
		types = append(types, t)
	}
	sort.Strings(types)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLine()
	_, _ = fmt.Fprintf(p.w, "session %s %s for %s, %d events\n", st.SessionID, st.State, st.Duration.Round(time.Second), st.TotalEvents)
	for _, t := range types {
		_, _ = fmt.Fprintf(p.w, "  %-48s %d\n", t, st.EventCounts[t])
	}
}
