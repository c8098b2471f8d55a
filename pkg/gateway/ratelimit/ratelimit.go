// Package ratelimit keeps per-principal budgets for one gateway process.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

const (
	DefaultMaxEntries = 10_000
	DefaultEntryTTL   = 30 * time.Minute
)

type Config struct {
	// RPS and Burst size a token bucket; either at zero disables it.
	RPS   float64
	Burst int

	MaxConcurrentRequests int
	// MaxConcurrentMints bounds realtime credential mints in flight.
	MaxConcurrentMints int

	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	tokens   float64
	refilled time.Time

	requests chan struct{}
	mints    chan struct{}

	// lastSeen is guarded by Limiter.mu.
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = DefaultEntryTTL
	}
	return &Limiter{cfg: cfg, entries: make(map[string]*entry)}
}

// Permit holds a concurrency slot until released. Release is idempotent.
type Permit struct {
	once    sync.Once
	release func()
}

func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.release != nil {
			p.release()
		}
	})
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

func deny(retryAfter int) Decision {
	return Decision{RetryAfter: max(1, retryAfter)}
}

// Request spends one token from key's bucket and takes a request slot.
func (l *Limiter) Request(key string, now time.Time) Decision {
	e := l.entry(key, now)
	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		if wait, ok := e.take(now, l.cfg.RPS, float64(l.cfg.Burst)); !ok {
			return deny(wait)
		}
	}
	return acquire(e.requests, l.cfg.MaxConcurrentRequests)
}

// Mint takes one of key's credential mint slots.
func (l *Limiter) Mint(key string, now time.Time) Decision {
	return acquire(l.entry(key, now).mints, l.cfg.MaxConcurrentMints)
}

// Len reports how many principals are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func acquire(slots chan struct{}, limit int) Decision {
	if limit <= 0 {
		return Decision{Allowed: true, Permit: &Permit{}}
	}
	select {
	case slots <- struct{}{}:
		return Decision{Allowed: true, Permit: &Permit{release: func() { <-slots }}}
	default:
		return deny(1)
	}
}

func (l *Limiter) entry(key string, now time.Time) *entry {
	if key == "" {
		key = "anonymous"
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[key]; ok {
		e.lastSeen = now
		return e
	}
	if len(l.entries) >= l.cfg.MaxEntries {
		l.evictLocked(now)
	}
	e := &entry{
		tokens:   float64(l.cfg.Burst),
		refilled: now,
		requests: make(chan struct{}, max(1, l.cfg.MaxConcurrentRequests)),
		mints:    make(chan struct{}, max(1, l.cfg.MaxConcurrentMints)),
		lastSeen: now,
	}
	l.entries[key] = e
	return e
}

// evictLocked drops idle entries, and the least recently seen one if that
// freed nothing.
func (l *Limiter) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > l.cfg.EntryTTL {
			delete(l.entries, k)
			continue
		}
		if oldestKey == "" || e.lastSeen.Before(oldest) {
			oldestKey, oldest = k, e.lastSeen
		}
	}
	if len(l.entries) >= l.cfg.MaxEntries && oldestKey != "" {
		delete(l.entries, oldestKey)
	}
}

// take refills the bucket for the elapsed time and spends a token. When empty
// it returns the whole seconds until one is available.
func (e *entry) take(now time.Time, rps, burst float64) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dt := now.Sub(e.refilled).Seconds(); dt > 0 {
		e.tokens = math.Min(burst, e.tokens+dt*rps)
		e.refilled = now
	}
	if e.tokens >= 1 {
		e.tokens--
		return 0, true
	}
	return int(math.Ceil((1 - e.tokens) / rps)), false
}
