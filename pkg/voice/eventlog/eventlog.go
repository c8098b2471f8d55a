// Package eventlog keeps an append-only, bounded record of the protocol
// events a voice session sends and receives.
package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultCapacity  = 1000
	DefaultQueueSize = 256
)

type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Record is one logged event. Payload is shared with the caller and must be
// treated as read-only.
type Record struct {
	Seq       int64
	SessionID string
	Timestamp time.Time
	Type      string
	Direction Direction
	Payload   map[string]any
}

// Sink persists records. Append is called from a single goroutine.
type Sink interface {
	Append(ctx context.Context, r Record) error
	Close() error
}

type Options struct {
	SessionID string
	// Capacity is the number of most recent records retained in memory.
	Capacity int
	Sink     Sink
	// QueueSize bounds the sink queue; records are dropped when it is full.
	QueueSize int
	Logger    *slog.Logger
	Now       func() time.Time
}

// Counts aggregates every record ever appended, including ones that have
// since been evicted from the retained window.
type Counts struct {
	Total       int
	ByType      map[string]int
	ByDirection map[Direction]int
}

type Log struct {
	sessionID string
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	buf      []Record
	start    int
	n        int
	seq      int64
	byType   map[string]int
	byDir    map[Direction]int
	dropped  int64
	closed   bool
	queue    chan Record
	sinkDone chan struct{}
	sink     Sink
}

func New(opts Options) *Log {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	l := &Log{
		sessionID: opts.SessionID,
		logger:    logger,
		now:       now,
		buf:       make([]Record, capacity),
		byType:    make(map[string]int),
		byDir:     make(map[Direction]int),
		sink:      opts.Sink,
	}
	if opts.Sink != nil {
		size := opts.QueueSize
		if size <= 0 {
			size = DefaultQueueSize
		}
		l.queue = make(chan Record, size)
		l.sinkDone = make(chan struct{})
		go l.drain()
	}
	return l
}

// Record appends an event and returns the stored record. It never blocks on
// the sink.
func (l *Log) Record(eventType string, dir Direction, payload map[string]any) Record {
	if l == nil {
		return Record{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	r := Record{
		Seq:       l.seq,
		SessionID: l.sessionID,
		Timestamp: l.now(),
		Type:      eventType,
		Direction: dir,
		Payload:   payload,
	}

	idx := (l.start + l.n) % len(l.buf)
	if l.n == len(l.buf) {
		l.start = (l.start + 1) % len(l.buf)
	} else {
		l.n++
	}
	l.buf[idx] = r
	l.byType[eventType]++
	l.byDir[dir]++

	if l.queue != nil && !l.closed {
		select {
		case l.queue <- r:
		default:
			l.dropped++
		}
	}
	return r
}

// Snapshot returns the retained records, oldest first.
func (l *Log) Snapshot() []Record {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, l.n)
	for i := 0; i < l.n; i++ {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}
	return out
}

// Last returns the most recent record.
func (l *Log) Last() (Record, bool) {
	if l == nil {
		return Record{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n == 0 {
		return Record{}, false
	}
	return l.buf[(l.start+l.n-1)%len(l.buf)], true
}

func (l *Log) Counts() Counts {
	if l == nil {
		return Counts{ByType: map[string]int{}, ByDirection: map[Direction]int{}}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c := Counts{
		Total:       int(l.seq),
		ByType:      make(map[string]int, len(l.byType)),
		ByDirection: make(map[Direction]int, len(l.byDir)),
	}
	for k, v := range l.byType {
		c.ByType[k] = v
	}
	for k, v := range l.byDir {
		c.ByDirection[k] = v
	}
	return c
}

// Dropped reports how many records the sink queue refused.
func (l *Log) Dropped() int64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close stops accepting sink writes, waits for queued records to be written
// and closes the sink. The in-memory log stays readable.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	if l.queue != nil {
		close(l.queue)
	}
	l.mu.Unlock()

	if l.sink == nil {
		return nil
	}
	<-l.sinkDone
	return l.sink.Close()
}

func (l *Log) drain() {
	defer close(l.sinkDone)
	for r := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.sink.Append(ctx, r); err != nil {
			l.logger.Warn("event sink append failed", "session_id", r.SessionID, "seq", r.Seq, "error", err)
		}
		cancel()
	}
}
