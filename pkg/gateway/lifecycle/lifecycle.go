package lifecycle

import (
	"context"
	"sync/atomic"
	"time"
)

// Lifecycle holds process state shared across handlers. Readiness flips to
// draining during graceful shutdown; in-flight credential issues are counted
// so shutdown can wait for them.
type Lifecycle struct {
	draining atomic.Bool
	inflight atomic.Int64
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// Begin marks one in-flight operation; the returned func ends it.
func (l *Lifecycle) Begin() func() {
	if l == nil {
		return func() {}
	}
	l.inflight.Add(1)
	var done atomic.Bool
	return func() {
		if done.CompareAndSwap(false, true) {
			l.inflight.Add(-1)
		}
	}
}

func (l *Lifecycle) InFlight() int64 {
	if l == nil {
		return 0
	}
	return l.inflight.Load()
}

// Wait blocks until nothing is in flight. It reports false if ctx ends first.
func (l *Lifecycle) Wait(ctx context.Context) bool {
	if l.InFlight() == 0 {
		return true
	}
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return l.InFlight() == 0
		case <-ticker.C:
			if l.InFlight() == 0 {
				return true
			}
		}
	}
}
