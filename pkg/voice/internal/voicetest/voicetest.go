// Package voicetest provides in-memory fakes for session tests.
package voicetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/voice/transport"
)

// Conn is an in-memory transport.Conn. Inbound events are pushed with Open
// and Push; written frames are captured.
type Conn struct {
	events chan transport.Event

	mu     sync.Mutex
	writes [][]byte
	closed bool
	err    error
	once   sync.Once
}

func NewConn() *Conn {
	return &Conn{events: make(chan transport.Event, 64)}
}

func (c *Conn) Events() <-chan transport.Event { return c.events }

func (c *Conn) Write(frames ...[]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	for _, f := range frames {
		c.writes = append(c.writes, append([]byte(nil), f...))
	}
	return nil
}

func (c *Conn) Close() error {
	c.end(nil)
	return nil
}

// Drop ends the channel as if the remote side went away.
func (c *Conn) Drop(err error) {
	c.end(err)
}

func (c *Conn) end(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.err = err
		c.mu.Unlock()
		close(c.events)
	})
}

func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) Open() {
	c.events <- transport.Event{Kind: transport.KindOpen}
}

func (c *Conn) Push(raw string) {
	c.events <- transport.Event{Kind: transport.KindMessage, Data: []byte(raw)}
}

// Sent decodes every written frame.
func (c *Conn) Sent() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.writes))
	for _, w := range c.writes {
		var m map[string]any
		if err := json.Unmarshal(w, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// SentTypes lists the type of every written frame.
func (c *Conn) SentTypes() []string {
	var out []string
	for _, m := range c.Sent() {
		t, _ := m["type"].(string)
		out = append(out, t)
	}
	return out
}

// Opener hands out one Conn per Open call.
type Opener struct {
	mu    sync.Mutex
	Conns []*Conn
	Err   error
	// AutoOpen queues KindOpen on every new Conn.
	AutoOpen bool
}

func (o *Opener) Open(_ context.Context, _ string) (transport.Conn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	c := NewConn()
	if o.AutoOpen {
		c.Open()
	}
	o.Conns = append(o.Conns, c)
	return c, nil
}

func (o *Opener) Last() *Conn {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.Conns) == 0 {
		return nil
	}
	return o.Conns[len(o.Conns)-1]
}

// Provider answers every tool with a fixed result and records search args.
type Provider struct {
	mu       sync.Mutex
	Searches []tools.SearchPlacesArgs
}

func (p *Provider) SearchPlaces(_ context.Context, args tools.SearchPlacesArgs) (*tools.SearchPlacesResult, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.Searches = append(p.Searches, args)
	p.mu.Unlock()
	places := []tools.PlaceResult{{PlaceID: "p1", Name: "Corner Cafe", Location: &geo.LatLng{Lat: 45.42, Lng: -75.69}}}
	tools.AnnotateDistances(places, args.Location)
	return &tools.SearchPlacesResult{Places: places}, nil
}

func (p *Provider) SearchArgs() []tools.SearchPlacesArgs {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]tools.SearchPlacesArgs(nil), p.Searches...)
}

func (p *Provider) GetPlaceDetails(context.Context, tools.PlaceDetailsArgs) (*tools.PlaceDetails, error) {
	return &tools.PlaceDetails{}, nil
}

func (p *Provider) GetDirections(context.Context, tools.DirectionsArgs) (*tools.DirectionsResult, error) {
	return &tools.DirectionsResult{}, nil
}

func (p *Provider) GeocodeAddress(context.Context, tools.GeocodeArgs) (*tools.GeocodeResult, error) {
	return &tools.GeocodeResult{}, nil
}

func (p *Provider) WebSearch(context.Context, tools.WebSearchArgs) (*tools.WebSearchResult, error) {
	return &tools.WebSearchResult{}, nil
}

func (p *Provider) ExtractWebContent(context.Context, tools.ExtractArgs) (*tools.ExtractResult, error) {
	return &tools.ExtractResult{}, nil
}
