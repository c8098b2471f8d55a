package servertools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/tools"
)

// Executor runs one named tool from raw JSON arguments.
type Executor interface {
	Name() string
	Definition() tools.Definition
	Execute(ctx context.Context, raw json.RawMessage) (any, error)
}

type Registry struct {
	byName map[string]Executor
}

func NewRegistry(executors ...Executor) *Registry {
	registry := &Registry{byName: make(map[string]Executor, len(executors))}
	for _, ex := range executors {
		if ex == nil {
			continue
		}
		registry.byName[ex.Name()] = ex
	}
	return registry
}

// ForProvider binds every declared tool to the matching Provider method.
func ForProvider(p tools.Provider) *Registry {
	return NewRegistry(
		newExecutor(tools.ToolSearchPlaces, p.SearchPlaces),
		newExecutor(tools.ToolGetPlaceDetails, p.GetPlaceDetails),
		newExecutor(tools.ToolGetDirections, p.GetDirections),
		newExecutor(tools.ToolGeocodeAddress, p.GeocodeAddress),
		newExecutor(tools.ToolWebSearch, p.WebSearch),
		newExecutor(tools.ToolExtractWebContent, p.ExtractWebContent),
	)
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[strings.TrimSpace(name)]
	return ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Definition(name string) (tools.Definition, bool) {
	if r == nil {
		return tools.Definition{}, false
	}
	ex, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return tools.Definition{}, false
	}
	return ex.Definition(), true
}

// Validate fails when the registered tools differ from the declared schema.
// Both sides must name exactly the same tools.
func (r *Registry) Validate(declared []tools.Definition) error {
	want := make([]string, 0, len(declared))
	for _, d := range declared {
		want = append(want, d.Name)
	}
	sort.Strings(want)
	got := r.Names()
	if !slices.Equal(got, want) {
		return core.NewConfigurationError(fmt.Sprintf("tool registry %v does not match declared schema %s %v", got, tools.SchemaVersion, want))
	}
	return nil
}

func (r *Registry) Execute(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	if r == nil {
		return nil, core.NewConfigurationError("tool registry is not configured")
	}
	ex, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return nil, core.NewUnknownTool(name)
	}
	return ex.Execute(ctx, raw)
}

type executor[A, R any] struct {
	def tools.Definition
	run func(context.Context, A) (R, error)
}

func newExecutor[A, R any](name string, run func(context.Context, A) (R, error)) Executor {
	def := tools.Definition{Type: "function", Name: name}
	for _, d := range tools.Definitions() {
		if d.Name == name {
			def = d
			break
		}
	}
	return &executor[A, R]{def: def, run: run}
}

func (e *executor[A, R]) Name() string                 { return e.def.Name }
func (e *executor[A, R]) Definition() tools.Definition { return e.def }

func (e *executor[A, R]) Execute(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := tools.Decode[A](raw)
	if err != nil {
		return nil, err
	}
	res, err := e.run(ctx, args)
	if err != nil {
		return nil, err
	}
	return res, nil
}
