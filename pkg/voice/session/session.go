// Package session runs one realtime voice conversation: it obtains a
// credential, opens the event channel, answers function calls and keeps the
// event log.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/voice/dispatch"
	"github.com/vango-go/vai-places/pkg/voice/eventlog"
	"github.com/vango-go/vai-places/pkg/voice/realtime"
	"github.com/vango-go/vai-places/pkg/voice/transport"
)

var (
	// ErrNotActive is returned by the send primitives outside StateActive.
	ErrNotActive = errors.New("session: not active")
	// ErrFinished is returned by Start on a session that already ended.
	ErrFinished = errors.New("session: already finished")
)

const (
	DefaultGreetingDelay = time.Second
	DefaultGreeting      = "Hi! Introduce yourself in a sentence and ask what kind of place I'm looking for."

	// EventTextMessageSent is logged for every user text turn.
	EventTextMessageSent = "text_message_sent"
)

// Credential is an ephemeral realtime credential plus what the issuer
// resolved for this session.
type Credential struct {
	Value     string
	ExpiresAt time.Time
	// Greeting is the opening text turn; DefaultGreeting is used when empty.
	Greeting string
	// Place is the resolved description of the user's location, if any.
	Place string
}

type CredentialSource interface {
	Issue(ctx context.Context, loc *geo.Coordinates) (Credential, error)
}

// Microphone produces PCM chunks that are appended to the model's input
// buffer.
type Microphone interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop() error
}

type Config struct {
	Credentials CredentialSource
	Transport   transport.Opener
	Tools       tools.Provider
	// Microphone is optional; text-only sessions leave it nil.
	Microphone Microphone
	// Location is the user's position, resolved before Start.
	Location *geo.Coordinates

	GreetingDelay time.Duration
	ToolTimeout   time.Duration
	ToolPoolSize  int
	Apology       string

	LogCapacity int
	LogSink     eventlog.Sink

	OnStateChange func(from, to State)
	OnError       func(error)
	// OnEvent observes every decoded inbound event.
	OnEvent      func(realtime.ServerEvent)
	OnToolResult func(dispatch.Result)

	Registerer prometheus.Registerer
	Logger     *slog.Logger
	Tracer     trace.Tracer
}

type Stats struct {
	SessionID   string
	State       State
	StartTime   time.Time
	Duration    time.Duration
	TotalEvents int
	EventCounts map[string]int
	LastEvent   *eventlog.Record
}

type Session struct {
	id     string
	cfg    Config
	log    *eventlog.Log
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	credential Credential
	conn       transport.Conn
	dispatcher *dispatch.Dispatcher
	greeted    bool
	failure    error

	sendMu   sync.Mutex
	finalize sync.Once
	loopDone chan struct{}
	done     chan struct{}
}

func New(cfg Config) (*Session, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("session: credential source is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("session: transport is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("session: tool provider is required")
	}
	if cfg.GreetingDelay <= 0 {
		cfg.GreetingDelay = DefaultGreetingDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Location != nil {
		loc := *cfg.Location
		cfg.Location = &loc
	}

	id := uuid.NewString()
	logger := cfg.Logger.With("session_id", id)
	return &Session{
		id:     id,
		cfg:    cfg,
		logger: logger,
		log: eventlog.New(eventlog.Options{
			SessionID: id,
			Capacity:  cfg.LogCapacity,
			Sink:      cfg.LogSink,
			Logger:    logger,
		}),
		loopDone: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that failed the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Location returns the session's cached coordinates.
func (s *Session) Location() *geo.Coordinates {
	if s.cfg.Location == nil {
		return nil
	}
	loc := *s.cfg.Location
	return &loc
}

// Place returns the issuer's description of the user's location.
func (s *Session) Place() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential.Place
}

func (s *Session) EventLog() *eventlog.Log { return s.log }

// Done is closed once the session has ended and its log is flushed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start obtains a credential and begins opening the channel. It returns once
// the session is Negotiating; Active follows when the channel opens. Start on
// a session that is already starting or running is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state.Terminal():
		s.mu.Unlock()
		return ErrFinished
	case s.state != StateIdle:
		s.mu.Unlock()
		s.logger.Debug("start ignored", "state", s.state)
		return nil
	}
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.transition(StateIdle, StateConnecting)

	cred, err := s.cfg.Credentials.Issue(ctx, s.Location())
	if err != nil {
		if !core.IsType(err, core.ErrCredential) {
			err = core.NewCredentialError(err)
		}
		s.fail(err)
		return err
	}
	s.mu.Lock()
	s.credential = cred
	s.mu.Unlock()

	var audio <-chan []byte
	if s.cfg.Microphone != nil {
		audio, err = s.cfg.Microphone.Start(ctx)
		if err != nil {
			err = core.NewTransportError("microphone unavailable", err)
			s.fail(err)
			return err
		}
	}

	d, err := dispatch.New(dispatch.Options{
		Provider:    s.cfg.Tools,
		Sender:      s,
		Location:    s.Location,
		ToolTimeout: s.cfg.ToolTimeout,
		PoolSize:    s.cfg.ToolPoolSize,
		Apology:     s.cfg.Apology,
		OnResult:    s.cfg.OnToolResult,
		Registerer:  s.cfg.Registerer,
		Logger:      s.logger,
		Tracer:      s.cfg.Tracer,
	})
	if err != nil {
		s.fail(err)
		return err
	}

	conn, err := s.cfg.Transport.Open(ctx, cred.Value)
	if err != nil {
		d.Close()
		if !core.IsType(err, core.ErrTransport) {
			err = core.NewTransportError("could not open realtime channel", err)
		}
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.dispatcher = d
	s.mu.Unlock()
	if !s.transition(StateConnecting, StateNegotiating) {
		_ = conn.Close()
		return s.Err()
	}

	go s.loop(conn, audio)
	return nil
}

// Stop closes an Active session and waits for the channel to be released.
// Stop in any other state is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if !s.transition(StateActive, StateClosing) {
		return nil
	}
	_ = conn.Close()

	select {
	case <-s.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send transmits one event.
func (s *Session) Send(ev realtime.ClientEvent) error {
	return s.SendAtomic(ev)
}

// SendAtomic transmits events back to back. event_id is assigned where
// missing, and each event is logged after it is handed to the transport.
func (s *Session) SendAtomic(events ...realtime.ClientEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	state, conn := s.state, s.conn
	s.mu.Unlock()
	if state != StateActive {
		s.logger.Warn("send skipped, session not active", "state", state, "type", events[0].Type())
		return ErrNotActive
	}

	frames := make([][]byte, 0, len(events))
	for _, ev := range events {
		if ev.EventID() == "" {
			ev["event_id"] = uuid.NewString()
		}
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("session: encode %s: %w", ev.Type(), err)
		}
		frames = append(frames, b)
	}
	if err := conn.Write(frames...); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return ErrNotActive
		}
		return core.NewTransportError("realtime send failed", err)
	}
	for _, ev := range events {
		s.log.Record(ev.Type(), eventlog.Outgoing, ev.Clone())
	}
	return nil
}

// SendText sends a user text turn and asks the model to respond.
func (s *Session) SendText(text string) error {
	if s.State() != StateActive {
		s.logger.Warn("text message skipped, session not active")
		return ErrNotActive
	}
	s.log.Record(EventTextMessageSent, eventlog.Outgoing, map[string]any{"message": text})
	return s.SendAtomic(realtime.UserText(text), realtime.ResponseCreate())
}

// Stats summarizes the session. It reports false before Start.
func (s *Session) Stats() (Stats, bool) {
	s.mu.Lock()
	state, started := s.state, s.startedAt
	s.mu.Unlock()
	if started.IsZero() {
		return Stats{}, false
	}
	counts := s.log.Counts()
	st := Stats{
		SessionID:   s.id,
		State:       state,
		StartTime:   started,
		Duration:    time.Since(started),
		TotalEvents: counts.Total,
		EventCounts: counts.ByType,
	}
	if last, ok := s.log.Last(); ok {
		st.LastEvent = &last
	}
	return st, true
}

func (s *Session) loop(conn transport.Conn, audio <-chan []byte) {
	defer close(s.loopDone)

	var greetAfter <-chan time.Time
	events := conn.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				s.closed(conn.Err())
				return
			}
			switch ev.Kind {
			case transport.KindOpen:
				if s.transition(StateNegotiating, StateActive) {
					s.logger.Info("realtime channel open")
					greetAfter = time.After(s.cfg.GreetingDelay)
				}
			case transport.KindMessage:
				if s.handleMessage(ev.Data) {
					greetAfter = nil
				}
			}
		case <-greetAfter:
			greetAfter = nil
			s.greet()
		case chunk, ok := <-audio:
			if !ok {
				audio = nil
				continue
			}
			s.appendAudio(conn, chunk)
		}
	}
}

// handleMessage logs and routes one inbound frame. It reports whether the
// greeting was sent because the model signalled readiness.
func (s *Session) handleMessage(data []byte) bool {
	ev, err := realtime.DecodeServerEvent(data)
	if err != nil {
		s.logger.Warn("undecodable realtime frame", "error", err)
		s.log.Record("invalid", eventlog.Incoming, map[string]any{"raw": string(data)})
		return false
	}
	s.log.Record(ev.Type, eventlog.Incoming, ev.Payload())

	greeted := false
	switch ev.Type {
	case realtime.EventSessionCreated:
		greeted = s.greet()
	case realtime.EventError:
		if ev.Error != nil {
			s.logger.Warn("realtime error event", "type", ev.Error.Type, "code", ev.Error.Code, "message", ev.Error.Message)
		}
	}

	s.mu.Lock()
	d := s.dispatcher
	s.mu.Unlock()
	if d != nil {
		d.HandleEvent(ev)
	}
	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(ev)
	}
	return greeted
}

func (s *Session) greet() bool {
	s.mu.Lock()
	if s.greeted || s.state != StateActive {
		s.mu.Unlock()
		return false
	}
	s.greeted = true
	text := s.credential.Greeting
	s.mu.Unlock()

	if text == "" {
		text = DefaultGreeting
	}
	if err := s.SendText(text); err != nil {
		s.logger.Warn("greeting not sent", "error", err)
	}
	return true
}

func (s *Session) appendAudio(conn transport.Conn, chunk []byte) {
	if s.State() != StateActive || len(chunk) == 0 {
		return
	}
	ev := realtime.AudioAppend(base64.StdEncoding.EncodeToString(chunk))
	ev["event_id"] = uuid.NewString()
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	// Audio is not recorded in the event log.
	s.sendMu.Lock()
	err = conn.Write(b)
	s.sendMu.Unlock()
	if err != nil && !errors.Is(err, transport.ErrClosed) {
		s.logger.Warn("audio append failed", "error", err)
	}
}

// closed handles the end of the channel: expected after Stop, a failure
// otherwise.
func (s *Session) closed(cause error) {
	if s.transition(StateClosing, StateClosed) {
		s.logger.Info("session closed")
		s.release()
		return
	}
	if s.State().Terminal() {
		return
	}
	if cause == nil || !core.IsType(cause, core.ErrTransport) {
		cause = core.NewTransportError("realtime channel closed unexpectedly", cause)
	}
	s.fail(cause)
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.state = StateFailed
	s.failure = err
	conn := s.conn
	s.mu.Unlock()

	s.logger.Error("session failed", "from", from, "error", err)
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(from, StateFailed)
	}
	if conn != nil {
		_ = conn.Close()
	}
	s.release()
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}

// release stops the microphone, then closes the dispatcher and the event log
// in the background so in-flight tool calls can finish.
func (s *Session) release() {
	s.finalize.Do(func() {
		if s.cfg.Microphone != nil {
			if err := s.cfg.Microphone.Stop(); err != nil {
				s.logger.Warn("microphone stop failed", "error", err)
			}
		}
		s.mu.Lock()
		d := s.dispatcher
		s.mu.Unlock()
		go func() {
			defer close(s.done)
			if d != nil {
				d.Close()
			}
			if err := s.log.Close(); err != nil {
				s.logger.Warn("event log close failed", "error", err)
			}
		}()
	})
}

func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	if s.state != from || !canTransition(from, to) {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	s.logger.Debug("session state", "from", from, "to", to)
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(from, to)
	}
	return true
}
