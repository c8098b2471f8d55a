package voice

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/voice/internal/voicetest"
	"github.com/vango-go/vai-places/pkg/voice/session"
)

type countingCredentials struct {
	calls atomic.Int32
	last  atomic.Pointer[geo.Coordinates]
}

func (c *countingCredentials) Issue(_ context.Context, loc *geo.Coordinates) (session.Credential, error) {
	c.calls.Add(1)
	c.last.Store(loc)
	return session.Credential{Value: "ek"}, nil
}

func newController(locator Locator, timeout time.Duration) (*Controller, *countingCredentials, *voicetest.Opener) {
	creds := &countingCredentials{}
	opener := &voicetest.Opener{AutoOpen: true}
	c := NewController(ControllerConfig{
		Session: session.Config{
			Credentials:   creds,
			Transport:     opener,
			Tools:         &voicetest.Provider{},
			GreetingDelay: time.Hour,
			Registerer:    prometheus.NewRegistry(),
		},
		Locator:         locator,
		LocationTimeout: timeout,
	})
	return c, creds, opener
}

func TestController_StartWhileActiveIsNoop(t *testing.T) {
	c, creds, opener := newController(nil, 0)

	s1, err := c.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s1.State() == session.StateActive }, 2*time.Second, 5*time.Millisecond)

	s2, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, int32(1), creds.calls.Load())
	assert.Len(t, opener.Conns, 1)

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, session.StateClosed, s1.State())

	s3, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, s1, s3)
	assert.Equal(t, int32(2), creds.calls.Load())
}

func TestController_PassesLocation(t *testing.T) {
	home := geo.Coordinates{Latitude: 49.2827, Longitude: -123.1207}
	c, creds, _ := newController(StaticLocation(home), time.Second)

	s, err := c.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, creds.last.Load())
	assert.Equal(t, home, *creds.last.Load())
	assert.Equal(t, home, *s.Location())
}

func TestController_LocationFailureDegrades(t *testing.T) {
	failing := LocatorFunc(func(context.Context) (geo.Coordinates, error) {
		return geo.Coordinates{}, errors.New("denied")
	})
	c, creds, _ := newController(failing, time.Second)

	s, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Nil(t, creds.last.Load())
	require.Eventually(t, func() bool { return s.State() == session.StateActive }, 2*time.Second, 5*time.Millisecond)
}

func TestController_LocationTimeoutDegrades(t *testing.T) {
	slow := LocatorFunc(func(ctx context.Context) (geo.Coordinates, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return geo.Coordinates{Latitude: 1, Longitude: 1}, nil
	})
	c, creds, _ := newController(slow, 20*time.Millisecond)

	start := time.Now()
	_, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Nil(t, creds.last.Load())
}

func TestController_StopWithoutSession(t *testing.T) {
	c, _, _ := newController(nil, 0)
	assert.NoError(t, c.Stop(context.Background()))
	assert.Nil(t, c.Current())
}

func TestController_CallbacksMayUseController(t *testing.T) {
	var c *Controller
	seen := make(chan *session.Session, 8)
	c = NewController(ControllerConfig{
		Session: session.Config{
			Credentials:   failingCredentials{},
			Transport:     &voicetest.Opener{AutoOpen: true},
			Tools:         &voicetest.Provider{},
			GreetingDelay: time.Hour,
			Registerer:    prometheus.NewRegistry(),
			OnStateChange: func(_, _ session.State) { seen <- c.Current() },
			OnError:       func(error) { seen <- c.Current() },
		},
	})

	done := make(chan error, 1)
	var started *session.Session
	go func() {
		s, err := c.Start(context.Background())
		started = s
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start deadlocked on a re-entrant callback")
	}
	require.NotNil(t, started)
	assert.Equal(t, session.StateFailed, started.State())
	require.NotEmpty(t, seen)
	for len(seen) > 0 {
		assert.Same(t, started, <-seen)
	}
}

func TestController_ConcurrentStartsShareOneSession(t *testing.T) {
	release := make(chan struct{})
	slow := LocatorFunc(func(context.Context) (geo.Coordinates, error) {
		<-release
		return geo.Coordinates{Latitude: 45.5, Longitude: -73.56}, nil
	})
	c, creds, _ := newController(slow, 2*time.Second)

	results := make(chan *session.Session, 3)
	for i := 0; i < 3; i++ {
		go func() {
			s, err := c.Start(context.Background())
			assert.NoError(t, err)
			results <- s
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)

	first := <-results
	assert.Same(t, first, <-results)
	assert.Same(t, first, <-results)
	assert.Equal(t, int32(1), creds.calls.Load())
}

type failingCredentials struct{}

func (failingCredentials) Issue(context.Context, *geo.Coordinates) (session.Credential, error) {
	return session.Credential{}, errors.New("gateway unreachable")
}
