package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/voice/realtime"
)

type fakeProvider struct {
	mu       sync.Mutex
	searches []tools.SearchPlacesArgs
	search   func(ctx context.Context, args tools.SearchPlacesArgs) (*tools.SearchPlacesResult, error)
}

func (p *fakeProvider) SearchPlaces(ctx context.Context, args tools.SearchPlacesArgs) (*tools.SearchPlacesResult, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.searches = append(p.searches, args)
	p.mu.Unlock()
	if p.search != nil {
		return p.search(ctx, args)
	}
	return &tools.SearchPlacesResult{Places: []tools.PlaceResult{{PlaceID: "p1", Name: "Timmies"}}}, nil
}

func (p *fakeProvider) GetPlaceDetails(context.Context, tools.PlaceDetailsArgs) (*tools.PlaceDetails, error) {
	panic("details exploded")
}

func (p *fakeProvider) GetDirections(context.Context, tools.DirectionsArgs) (*tools.DirectionsResult, error) {
	return &tools.DirectionsResult{}, nil
}

func (p *fakeProvider) GeocodeAddress(context.Context, tools.GeocodeArgs) (*tools.GeocodeResult, error) {
	return nil, core.NewConfigurationError("GOOGLE_MAPS_API_KEY is not set")
}

func (p *fakeProvider) WebSearch(context.Context, tools.WebSearchArgs) (*tools.WebSearchResult, error) {
	return &tools.WebSearchResult{}, nil
}

func (p *fakeProvider) ExtractWebContent(context.Context, tools.ExtractArgs) (*tools.ExtractResult, error) {
	return &tools.ExtractResult{}, nil
}

type recordingSender struct {
	mu     sync.Mutex
	groups [][]realtime.ClientEvent
}

func (s *recordingSender) SendAtomic(events ...realtime.ClientEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, events)
	return nil
}

func (s *recordingSender) snapshot() [][]realtime.ClientEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]realtime.ClientEvent(nil), s.groups...)
}

func newDispatcher(t *testing.T, p tools.Provider, s Sender, mutate func(*Options)) *Dispatcher {
	t.Helper()
	opts := Options{Provider: p, Sender: s, Registerer: prometheus.NewRegistry()}
	if mutate != nil {
		mutate(&opts)
	}
	d, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func outputOf(t *testing.T, group []realtime.ClientEvent) (string, map[string]any) {
	t.Helper()
	require.Len(t, group, 2)
	assert.Equal(t, realtime.EventConversationItemCreate, group[0].Type())
	assert.Equal(t, realtime.EventResponseCreate, group[1].Type())
	item, ok := group[0]["item"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, realtime.ItemTypeFunctionCallOutput, item["type"])
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(item["output"].(string)), &payload))
	return item["call_id"].(string), payload
}

func TestDispatch_ExactlyOneOutputPerCallID(t *testing.T) {
	sender := &recordingSender{}
	d := newDispatcher(t, &fakeProvider{}, sender, nil)

	shapes := []string{
		`{"type":"response.output_item.added","item":{"type":"function_call","name":"search_places","call_id":"c1","arguments":"{\"query\":\"coffee\"}","status":"completed"}}`,
		`{"type":"conversation.item.created","item":{"type":"function_call","name":"search_places","call_id":"c1","arguments":"{\"query\":\"coffee\"}"}}`,
		`{"type":"response.function_call_arguments.done","name":"search_places","call_id":"c1","arguments":"{\"query\":\"coffee\"}"}`,
	}
	started := 0
	for _, raw := range shapes {
		ev, err := realtime.DecodeServerEvent([]byte(raw))
		require.NoError(t, err)
		if d.HandleEvent(ev) {
			started++
		}
	}
	d.Wait()

	assert.Equal(t, 1, started)
	groups := sender.snapshot()
	require.Len(t, groups, 1)
	callID, payload := outputOf(t, groups[0])
	assert.Equal(t, "c1", callID)
	assert.Contains(t, payload, "places")
}

func TestDispatch_ArgumentlessItemDoesNotShadowArgumentsDone(t *testing.T) {
	provider := &fakeProvider{}
	sender := &recordingSender{}
	d := newDispatcher(t, provider, sender, nil)

	for _, raw := range []string{
		`{"type":"response.output_item.added","item":{"type":"function_call","name":"search_places","call_id":"c1","arguments":""}}`,
		`{"type":"response.function_call_arguments.done","name":"search_places","call_id":"c1","arguments":"{\"query\":\"coffee\"}"}`,
	} {
		ev, err := realtime.DecodeServerEvent([]byte(raw))
		require.NoError(t, err)
		d.HandleEvent(ev)
	}
	d.Wait()

	provider.mu.Lock()
	searches := append([]tools.SearchPlacesArgs(nil), provider.searches...)
	provider.mu.Unlock()
	require.Len(t, searches, 1)
	assert.Equal(t, "coffee", searches[0].Query)

	groups := sender.snapshot()
	require.Len(t, groups, 1)
	callID, payload := outputOf(t, groups[0])
	assert.Equal(t, "c1", callID)
	assert.Contains(t, payload, "places")
	assert.NotContains(t, payload, "error")
}

func TestDispatch_EmptyCallIDIsNotDeduplicated(t *testing.T) {
	sender := &recordingSender{}
	d := newDispatcher(t, &fakeProvider{}, sender, nil)

	call := realtime.FunctionCall{Name: tools.ToolGetDirections, Arguments: `{"origin":"a","destination":"b"}`}
	assert.True(t, d.Dispatch(call))
	assert.True(t, d.Dispatch(call))
	d.Wait()
	assert.Len(t, sender.snapshot(), 2)
}

func TestDispatch_FailuresBecomeApologies(t *testing.T) {
	tests := []struct {
		name     string
		call     realtime.FunctionCall
		wantType core.ErrorType
	}{
		{"unknown tool", realtime.FunctionCall{CallID: "u", Name: "order_pizza", Arguments: "{}"}, core.ErrUnknownTool},
		{"malformed arguments", realtime.FunctionCall{CallID: "m", Name: tools.ToolSearchPlaces, Arguments: "{query:"}, core.ErrMalformedArguments},
		{"undefined query", realtime.FunctionCall{CallID: "q", Name: tools.ToolSearchPlaces, Arguments: `{"query":"undefined"}`}, core.ErrInvalidArgument},
		{"configuration", realtime.FunctionCall{CallID: "g", Name: tools.ToolGeocodeAddress, Arguments: `{"address":"Ottawa"}`}, core.ErrConfiguration},
		{"panic", realtime.FunctionCall{CallID: "p", Name: tools.ToolGetPlaceDetails, Arguments: `{"place_id":"x"}`}, core.ErrAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{}
			var results []Result
			d := newDispatcher(t, &fakeProvider{}, sender, func(o *Options) {
				o.OnResult = func(r Result) { results = append(results, r) }
			})

			require.True(t, d.Dispatch(tt.call))
			d.Wait()

			groups := sender.snapshot()
			require.Len(t, groups, 1)
			callID, payload := outputOf(t, groups[0])
			assert.Equal(t, tt.call.CallID, callID)
			assert.Equal(t, string(tt.wantType), payload["type"])
			assert.Equal(t, DefaultApology, payload["message"])
			assert.NotEmpty(t, payload["error"])

			require.Len(t, results, 1)
			assert.Equal(t, tt.wantType, core.TypeOf(results[0].Err))
		})
	}
}

func TestDispatch_DefaultsSearchLocation(t *testing.T) {
	provider := &fakeProvider{}
	sender := &recordingSender{}
	home := &geo.Coordinates{Latitude: 45.4215, Longitude: -75.6972}
	d := newDispatcher(t, provider, sender, func(o *Options) {
		o.Location = func() *geo.Coordinates { return home }
	})

	d.Dispatch(realtime.FunctionCall{CallID: "a", Name: tools.ToolSearchPlaces, Arguments: `{"query":"poutine"}`})
	d.Dispatch(realtime.FunctionCall{CallID: "b", Name: tools.ToolSearchPlaces, Arguments: `{"query":"bagels","location":{"latitude":45.5,"longitude":-73.6}}`})
	d.Dispatch(realtime.FunctionCall{CallID: "c", Name: tools.ToolSearchPlaces, Arguments: `{"query":"maple","location":null}`})
	d.Wait()

	provider.mu.Lock()
	defer provider.mu.Unlock()
	require.Len(t, provider.searches, 3)
	byQuery := map[string]*geo.Coordinates{}
	for _, s := range provider.searches {
		byQuery[s.Query] = s.Location
	}
	require.NotNil(t, byQuery["poutine"])
	assert.Equal(t, *home, *byQuery["poutine"])
	require.NotNil(t, byQuery["bagels"])
	assert.InDelta(t, 45.5, byQuery["bagels"].Latitude, 1e-9)
	require.NotNil(t, byQuery["maple"])
	assert.Equal(t, *home, *byQuery["maple"])
}

func TestDispatch_ToolTimeout(t *testing.T) {
	provider := &fakeProvider{search: func(ctx context.Context, _ tools.SearchPlacesArgs) (*tools.SearchPlacesResult, error) {
		<-ctx.Done()
		return nil, core.NewUpstreamError("googlemaps", ctx.Err())
	}}
	sender := &recordingSender{}
	d := newDispatcher(t, provider, sender, func(o *Options) { o.ToolTimeout = 20 * time.Millisecond })

	d.Dispatch(realtime.FunctionCall{CallID: "slow", Name: tools.ToolSearchPlaces, Arguments: `{"query":"late"}`})
	d.Wait()

	groups := sender.snapshot()
	require.Len(t, groups, 1)
	_, payload := outputOf(t, groups[0])
	assert.Equal(t, string(core.ErrUpstream), payload["type"])
}

func TestDispatch_ConcurrentPairsNeverInterleave(t *testing.T) {
	sender := &recordingSender{}
	d := newDispatcher(t, &fakeProvider{}, sender, func(o *Options) { o.PoolSize = 4 })

	const n = 40
	for i := 0; i < n; i++ {
		d.Dispatch(realtime.FunctionCall{
			CallID:    "call-" + string(rune('A'+i%26)) + string(rune('a'+i/26)),
			Name:      tools.ToolSearchPlaces,
			Arguments: `{"query":"coffee"}`,
		})
	}
	d.Wait()

	groups := sender.snapshot()
	require.Len(t, groups, n)
	seen := map[string]bool{}
	for _, g := range groups {
		id, _ := outputOf(t, g)
		assert.False(t, seen[id], "duplicate output for %s", id)
		seen[id] = true
	}
}

func TestDispatch_MetricsByToolAndOutcome(t *testing.T) {
	sender := &recordingSender{}
	d := newDispatcher(t, &fakeProvider{}, sender, nil)

	d.Dispatch(realtime.FunctionCall{CallID: "1", Name: tools.ToolSearchPlaces, Arguments: `{"query":"a"}`})
	d.Dispatch(realtime.FunctionCall{CallID: "1", Name: tools.ToolSearchPlaces, Arguments: `{"query":"a"}`})
	d.Dispatch(realtime.FunctionCall{CallID: "2", Name: "nope"})
	d.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.calls.WithLabelValues(tools.ToolSearchPlaces, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.calls.WithLabelValues(tools.ToolSearchPlaces, "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.calls.WithLabelValues("unknown", string(core.ErrUnknownTool))))
}

func TestNew_RequiresProviderAndSender(t *testing.T) {
	_, err := New(Options{Sender: &recordingSender{}})
	assert.Error(t, err)
	_, err = New(Options{Provider: &fakeProvider{}})
	assert.Error(t, err)
}

func TestDedupe_ForgetsOldest(t *testing.T) {
	s := newDedupe(2)
	assert.True(t, s.add("a"))
	assert.True(t, s.add("b"))
	assert.False(t, s.add("a"))
	assert.True(t, s.add("c"))
	assert.True(t, s.add("a"))
}

func TestWithDefaultLocation_PassesThroughNonObjects(t *testing.T) {
	loc := &geo.Coordinates{Latitude: 1, Longitude: 2}
	assert.Equal(t, `[1]`, string(withDefaultLocation(json.RawMessage(`[1]`), loc)))
	assert.JSONEq(t, `{"location":{"latitude":1,"longitude":2}}`, string(withDefaultLocation(nil, loc)))
	assert.Equal(t, `{"query":"x"}`, string(withDefaultLocation(json.RawMessage(`{"query":"x"}`), nil)))
}
