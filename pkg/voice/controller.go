// Package voice owns the client side of a voice conversation: one Session at
// a time, started with the user's location when it can be found.
package voice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/voice/session"
)

const DefaultLocationTimeout = 10 * time.Second

// Locator reports the user's current position.
type Locator interface {
	Locate(ctx context.Context) (geo.Coordinates, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (geo.Coordinates, error)

func (f LocatorFunc) Locate(ctx context.Context) (geo.Coordinates, error) { return f(ctx) }

// StaticLocation always reports the same position.
func StaticLocation(c geo.Coordinates) Locator {
	return LocatorFunc(func(context.Context) (geo.Coordinates, error) { return c, nil })
}

type ControllerConfig struct {
	// Session is the template for every session; Location is filled in by
	// the controller.
	Session session.Config
	// Locator is optional. Sessions start without a location when it is nil,
	// fails or exceeds LocationTimeout.
	Locator         Locator
	LocationTimeout time.Duration
	Logger          *slog.Logger
}

// Controller never holds its lock while locating, starting a session or
// running session callbacks, so callbacks may call back into it.
type Controller struct {
	cfg    ControllerConfig
	logger *slog.Logger

	mu      sync.Mutex
	current *session.Session
	// starting is closed when an in-flight Start has published its session.
	starting chan struct{}
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.LocationTimeout <= 0 {
		cfg.LocationTimeout = DefaultLocationTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{cfg: cfg, logger: cfg.Logger}
}

// Start begins a new session unless one is already in progress, in which
// case it returns that session and does nothing else. A Start that overlaps
// another waits for it and then returns its session.
func (c *Controller) Start(ctx context.Context) (*session.Session, error) {
	for {
		c.mu.Lock()
		if c.current != nil && !c.current.State().Terminal() {
			s := c.current
			c.mu.Unlock()
			c.logger.Debug("session already in progress", "session_id", s.ID(), "state", s.State())
			return s, nil
		}
		if c.starting == nil {
			c.starting = make(chan struct{})
			c.mu.Unlock()
			break
		}
		wait := c.starting
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	cfg := c.cfg.Session
	cfg.Location = c.locate(ctx)
	s, err := session.New(cfg)

	c.mu.Lock()
	if err == nil {
		c.current = s
	}
	close(c.starting)
	c.starting = nil
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return s, s.Start(ctx)
}

// Stop stops the current session if it is Active.
func (c *Controller) Stop(ctx context.Context) error {
	s := c.Current()
	if s == nil {
		return nil
	}
	return s.Stop(ctx)
}

func (c *Controller) Current() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) locate(ctx context.Context) *geo.Coordinates {
	if c.cfg.Locator == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LocationTimeout)
	defer cancel()

	type result struct {
		loc geo.Coordinates
		err error
	}
	ch := make(chan result, 1)
	go func() {
		loc, err := c.cfg.Locator.Locate(ctx)
		ch <- result{loc, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			c.logger.Warn("location unavailable, continuing without it", "error", r.err)
			return nil
		}
		if !r.loc.Valid() {
			c.logger.Warn("location out of range, continuing without it", "location", r.loc.String())
			return nil
		}
		return &r.loc
	case <-ctx.Done():
		c.logger.Warn("location lookup timed out, continuing without it", "timeout", c.cfg.LocationTimeout)
		return nil
	}
}
