package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-places/pkg/core"
)

const (
	DefaultRealtimeURL = "wss://api.openai.com/v1/realtime"

	defaultPingInterval     = 20 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultQueueSize        = 64
	defaultMaxMessageBytes  = 4 << 20
)

type WebSocketConfig struct {
	// URL is the realtime endpoint; Model is added as the model query
	// parameter when set.
	URL   string
	Model string

	Header http.Header
	Dialer *websocket.Dialer

	PingInterval     time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	QueueSize        int
	MaxMessageBytes  int64

	Logger *slog.Logger
}

type WebSocket struct {
	cfg WebSocketConfig
}

var _ Opener = (*WebSocket)(nil)

func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultRealtimeURL
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebSocket{cfg: cfg}
}

func (w *WebSocket) endpoint() (string, error) {
	u, err := url.Parse(w.cfg.URL)
	if err != nil {
		return "", core.NewTransportError("invalid realtime url", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", core.NewTransportError(fmt.Sprintf("unsupported realtime url scheme %q", u.Scheme), nil)
	}
	if w.cfg.Model != "" {
		q := u.Query()
		q.Set("model", w.cfg.Model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Open dials in the background. The returned Conn delivers KindOpen once the
// handshake succeeds, or closes Events with a TransportError if it fails.
func (w *WebSocket) Open(ctx context.Context, credential string) (Conn, error) {
	endpoint, err := w.endpoint()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(credential) == "" {
		return nil, core.NewTransportError("realtime credential is empty", nil)
	}

	header := http.Header{}
	for k, v := range w.cfg.Header {
		header[k] = append([]string(nil), v...)
	}
	header.Set("Authorization", "Bearer "+credential)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := w.cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: w.cfg.HandshakeTimeout,
		}
	}

	// The channel outlives the caller's request context; Close ends it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &wsConn{
		cfg:    w.cfg,
		events: make(chan Event, w.cfg.QueueSize),
		out:    make(chan [][]byte, w.cfg.QueueSize),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go c.run(runCtx, dialer, endpoint, header)
	return c, nil
}

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type wsConn struct {
	cfg    WebSocketConfig
	events chan Event
	out    chan [][]byte
	done   chan struct{}
	cancel context.CancelFunc

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (c *wsConn) Events() <-chan Event { return c.events }

func (c *wsConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *wsConn) Write(frames ...[]byte) error {
	if len(frames) == 0 {
		return nil
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- frames:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *wsConn) Close() error {
	c.shutdown(nil)
	return nil
}

// shutdown records the first cause and stops both loops.
func (c *wsConn) shutdown(cause error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.mu.Unlock()
		close(c.done)
		c.cancel()
	})
}

func (c *wsConn) run(ctx context.Context, dialer *websocket.Dialer, endpoint string, header http.Header) {
	defer close(c.events)

	ws, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		msg := "realtime handshake failed"
		if resp != nil {
			msg = fmt.Sprintf("realtime handshake failed (%d)", resp.StatusCode)
		}
		c.shutdown(core.NewTransportError(msg, err))
		return
	}
	ws.SetReadLimit(c.cfg.MaxMessageBytes)

	select {
	case c.events <- Event{Kind: KindOpen}:
	case <-c.done:
		_ = ws.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := c.writeLoop(ws); err != nil {
			c.shutdown(core.NewTransportError("realtime write failed", err))
			_ = ws.Close()
		}
	}()

	c.readLoop(ws)
	<-writerDone
}

func (c *wsConn) readLoop(ws *websocket.Conn) {
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			c.shutdown(core.NewTransportError("realtime channel closed", err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		select {
		case c.events <- Event{Kind: KindMessage, Data: data}:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) writeLoop(ws wsWriter) error {
	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = ws.Close()
			return nil
		case <-pingTicker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return err
			}
		case group := <-c.out:
			for _, frame := range group {
				if err := ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
					return err
				}
				if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
					return err
				}
			}
		}
	}
}
