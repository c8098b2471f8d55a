// Package dispatch executes function calls requested by the speech model and
// answers each one with exactly one output item followed by response.create.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/gateway/tools/servertools"
	"github.com/vango-go/vai-places/pkg/voice/realtime"
)

const (
	DefaultToolTimeout = 30 * time.Second
	DefaultPoolSize    = 8
	DefaultDedupeSize  = 1024

	// DefaultApology is spoken back to the model when a tool fails.
	DefaultApology = "Sorry bud, I couldn't get that information right now. Maybe try again, eh?"
)

// Sender transmits a group of events without interleaving other groups.
type Sender interface {
	SendAtomic(events ...realtime.ClientEvent) error
}

type Options struct {
	Provider tools.Provider
	Sender   Sender
	// Location returns the session's cached coordinates, or nil.
	Location func() *geo.Coordinates

	ToolTimeout time.Duration
	PoolSize    int
	DedupeSize  int
	Apology     string

	// OnResult observes every finished invocation.
	OnResult func(Result)

	Registerer prometheus.Registerer
	Logger     *slog.Logger
	Tracer     trace.Tracer
}

// Result is the outcome of one invocation.
type Result struct {
	Call     realtime.FunctionCall
	Output   string
	Err      error
	Duration time.Duration
}

// Apology is the payload sent in place of a result when a tool fails.
type Apology struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Type    core.ErrorType `json:"type"`
}

type Dispatcher struct {
	registry *servertools.Registry
	sender   Sender
	location func() *geo.Coordinates
	timeout  time.Duration
	apology  string
	onResult func(Result)
	logger   *slog.Logger
	tracer   trace.Tracer
	pool     *ants.Pool
	metrics  *metrics

	seen *dedupe
	wg   sync.WaitGroup
}

func New(opts Options) (*Dispatcher, error) {
	if opts.Provider == nil {
		return nil, errors.New("dispatch: provider is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("dispatch: sender is required")
	}
	registry := servertools.ForProvider(opts.Provider)
	if err := registry.Validate(tools.Definitions()); err != nil {
		return nil, err
	}

	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.DedupeSize <= 0 {
		opts.DedupeSize = DefaultDedupeSize
	}
	if opts.Apology == "" {
		opts.Apology = DefaultApology
	}
	if opts.Location == nil {
		opts.Location = func() *geo.Coordinates { return nil }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/vango-go/vai-places/pkg/voice/dispatch")
	}

	m, err := newMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}
	pool, err := ants.NewPool(opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("dispatch: create worker pool: %w", err)
	}

	return &Dispatcher{
		registry: registry,
		sender:   opts.Sender,
		location: opts.Location,
		timeout:  opts.ToolTimeout,
		apology:  opts.Apology,
		onResult: opts.OnResult,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		pool:     pool,
		metrics:  m,
		seen:     newDedupe(opts.DedupeSize),
	}, nil
}

// HandleEvent dispatches ev if it is a function call request. It reports
// whether a new invocation was started.
func (d *Dispatcher) HandleEvent(ev realtime.ServerEvent) bool {
	call, ok := realtime.ParseFunctionCall(ev)
	if !ok {
		return false
	}
	return d.Dispatch(call)
}

// Dispatch runs call on the worker pool and sends its output. Calls whose id
// was already seen are skipped; calls without an id are always run.
func (d *Dispatcher) Dispatch(call realtime.FunctionCall) bool {
	if call.CallID != "" && !d.seen.add(call.CallID) {
		d.metrics.calls.WithLabelValues(d.toolLabel(call.Name), "duplicate").Inc()
		d.logger.Debug("duplicate function call ignored", "call_id", call.CallID, "tool", call.Name, "source", call.Source)
		return false
	}

	d.wg.Add(1)
	task := func() {
		defer d.wg.Done()
		d.complete(d.Invoke(context.Background(), call))
	}
	if err := d.pool.Submit(task); err != nil {
		// The pool is released; answer inline so the call is not left open.
		d.logger.Warn("tool pool rejected call", "call_id", call.CallID, "tool", call.Name, "error", err)
		task()
	}
	return true
}

// Invoke executes call synchronously and builds the output payload. It never
// returns without an Output.
func (d *Dispatcher) Invoke(ctx context.Context, call realtime.FunctionCall) (res Result) {
	start := time.Now()
	res.Call = call

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	ctx, span := d.tracer.Start(ctx, "dispatch.Invoke", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.CallID),
		attribute.String("tool.source", call.Source),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "call_id", call.CallID, "tool", call.Name, "panic", r)
			res.Err = core.NewAPIError(fmt.Sprintf("tool %s failed unexpectedly", call.Name))
		}
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, string(core.TypeOf(res.Err)))
			res.Output = d.apologyFor(res.Err)
		}
		res.Duration = time.Since(start)
		outcome := "ok"
		if res.Err != nil {
			outcome = string(core.TypeOf(res.Err))
		}
		d.metrics.calls.WithLabelValues(d.toolLabel(call.Name), outcome).Inc()
		d.metrics.duration.WithLabelValues(d.toolLabel(call.Name)).Observe(res.Duration.Seconds())
	}()

	raw := json.RawMessage(call.Arguments)
	if call.Name == tools.ToolSearchPlaces {
		raw = withDefaultLocation(raw, d.location())
	}

	out, err := d.registry.Execute(ctx, call.Name, raw)
	if err != nil {
		res.Err = err
		return res
	}
	b, err := json.Marshal(out)
	if err != nil {
		res.Err = core.NewAPIError(fmt.Sprintf("encode %s result: %v", call.Name, err))
		return res
	}
	res.Output = string(b)
	return res
}

func (d *Dispatcher) complete(res Result) {
	if res.Err != nil {
		d.logger.Warn("tool call failed",
			"call_id", res.Call.CallID,
			"tool", res.Call.Name,
			"type", core.TypeOf(res.Err),
			"error", res.Err,
		)
	} else {
		d.logger.Info("tool call completed", "call_id", res.Call.CallID, "tool", res.Call.Name, "duration_ms", res.Duration.Milliseconds())
	}

	if err := d.sender.SendAtomic(
		realtime.FunctionCallOutput(res.Call.CallID, res.Output),
		realtime.ResponseCreate(),
	); err != nil {
		d.logger.Warn("tool output not sent", "call_id", res.Call.CallID, "tool", res.Call.Name, "error", err)
	}
	if d.onResult != nil {
		d.onResult(res)
	}
}

func (d *Dispatcher) apologyFor(err error) string {
	msg := err.Error()
	var ce *core.Error
	if errors.As(err, &ce) {
		msg = ce.Message
	}
	b, mErr := json.Marshal(Apology{Error: msg, Message: d.apology, Type: core.TypeOf(err)})
	if mErr != nil {
		return `{"error":"tool failed","type":"api_error"}`
	}
	return string(b)
}

func (d *Dispatcher) toolLabel(name string) string {
	if d.registry.Has(name) {
		return name
	}
	return "unknown"
}

// Wait blocks until every dispatched call has sent its output.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close waits for in-flight calls and releases the pool.
func (d *Dispatcher) Close() {
	d.wg.Wait()
	d.pool.Release()
}

// withDefaultLocation fills in location when the model omitted it. Arguments
// that are not a JSON object are passed through for the decoder to reject.
func withDefaultLocation(raw json.RawMessage, loc *geo.Coordinates) json.RawMessage {
	if loc == nil {
		return raw
	}
	fields := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return raw
		}
	}
	if v, ok := fields["location"]; ok && string(v) != "null" {
		return raw
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return raw
	}
	fields["location"] = b
	patched, err := json.Marshal(fields)
	if err != nil {
		return raw
	}
	return patched
}
