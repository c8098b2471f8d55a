package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-places/pkg/core"
)

type realtimeStub struct {
	mu       sync.Mutex
	auth     string
	model    string
	received []string
	conns    chan *websocket.Conn
}

func newRealtimeStub(t *testing.T) (*realtimeStub, *httptest.Server) {
	t.Helper()
	stub := &realtimeStub{conns: make(chan *websocket.Conn, 1)}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.auth = r.Header.Get("Authorization")
		stub.model = r.URL.Query().Get("model")
		stub.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer ek_good" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		stub.conns <- ws
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.created"}`))
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			stub.mu.Lock()
			stub.received = append(stub.received, string(data))
			stub.mu.Unlock()
		}
	}))
	t.Cleanup(srv.Close)
	return stub, srv
}

func (s *realtimeStub) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func next(t *testing.T, c Conn) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return Event{}, false
	}
}

func TestWebSocket_OpenMessageWriteClose(t *testing.T) {
	stub, srv := newRealtimeStub(t)
	ws := NewWebSocket(WebSocketConfig{URL: srv.URL, Model: "gpt-realtime-test"})

	conn, err := ws.Open(context.Background(), "ek_good")
	require.NoError(t, err)

	ev, ok := next(t, conn)
	require.True(t, ok)
	assert.Equal(t, KindOpen, ev.Kind)

	ev, ok = next(t, conn)
	require.True(t, ok)
	assert.Equal(t, KindMessage, ev.Kind)
	assert.JSONEq(t, `{"type":"session.created"}`, string(ev.Data))

	require.NoError(t, conn.Write([]byte(`{"n":1}`), []byte(`{"n":2}`)))
	require.Eventually(t, func() bool { return len(stub.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`}, stub.snapshot())

	stub.mu.Lock()
	assert.Equal(t, "gpt-realtime-test", stub.model)
	stub.mu.Unlock()

	require.NoError(t, conn.Close())
	for {
		if _, ok := next(t, conn); !ok {
			break
		}
	}
	assert.NoError(t, conn.Err())
	assert.ErrorIs(t, conn.Write([]byte(`{}`)), ErrClosed)
}

func TestWebSocket_HandshakeRejected(t *testing.T) {
	_, srv := newRealtimeStub(t)
	ws := NewWebSocket(WebSocketConfig{URL: srv.URL})

	conn, err := ws.Open(context.Background(), "ek_bad")
	require.NoError(t, err)

	_, ok := next(t, conn)
	assert.False(t, ok)
	require.Error(t, conn.Err())
	assert.True(t, core.IsType(conn.Err(), core.ErrTransport))
	assert.Contains(t, conn.Err().Error(), "401")
}

func TestWebSocket_RemoteCloseIsTransportError(t *testing.T) {
	stub, srv := newRealtimeStub(t)
	ws := NewWebSocket(WebSocketConfig{URL: srv.URL})

	conn, err := ws.Open(context.Background(), "ek_good")
	require.NoError(t, err)
	ev, _ := next(t, conn)
	require.Equal(t, KindOpen, ev.Kind)

	server := <-stub.conns
	_ = server.Close()

	for {
		if _, ok := next(t, conn); !ok {
			break
		}
	}
	assert.True(t, core.IsType(conn.Err(), core.ErrTransport))
}

func TestWebSocket_Endpoint(t *testing.T) {
	ws := NewWebSocket(WebSocketConfig{URL: "https://api.example.com/v1/realtime", Model: "m"})
	u, err := ws.endpoint()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "wss://api.example.com/v1/realtime"))
	assert.Contains(t, u, "model=m")

	_, err = NewWebSocket(WebSocketConfig{URL: "ftp://nope"}).Open(context.Background(), "k")
	assert.True(t, core.IsType(err, core.ErrTransport))

	_, err = NewWebSocket(WebSocketConfig{}).Open(context.Background(), " ")
	assert.True(t, core.IsType(err, core.ErrTransport))
}

type fakeWSWriter struct {
	mu     sync.Mutex
	writes []string
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, string(data))
	return nil
}

func (f *fakeWSWriter) WriteControl(messageType int, _ []byte, _ time.Time) error {
	if messageType == websocket.CloseMessage {
		return f.WriteMessage(messageType, []byte("close"))
	}
	return nil
}

func (f *fakeWSWriter) Close() error { return nil }

func TestWriteLoop_GroupsStayContiguous(t *testing.T) {
	c := &wsConn{
		cfg:    WebSocketConfig{PingInterval: time.Hour, WriteTimeout: time.Second},
		out:    make(chan [][]byte, 8),
		done:   make(chan struct{}),
		cancel: func() {},
	}
	c.out <- [][]byte{[]byte("a1"), []byte("a2")}
	c.out <- [][]byte{[]byte("b1"), []byte("b2")}

	w := &fakeWSWriter{}
	errCh := make(chan error, 1)
	go func() { errCh <- c.writeLoop(w) }()

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.writes) == 4
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, <-errCh)

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, []string{"a1", "a2", "b1", "b2", "close"}, w.writes)
}
