// Package tools declares the callable tool set shared by the session token
// issuer and the function-call dispatcher: names, JSON schemas, argument
// decoding and the normalized result shapes.
package tools

import "slices"

// SchemaVersion identifies the tool declaration set. Bump it whenever a name,
// parameter or enum below changes.
const SchemaVersion = "places-tools/v1"

const (
	ToolSearchPlaces      = "search_places"
	ToolGetPlaceDetails   = "get_place_details"
	ToolGetDirections     = "get_directions"
	ToolGeocodeAddress    = "geocode_address"
	ToolWebSearch         = "web_search"
	ToolExtractWebContent = "extract_web_content"
)

const (
	DefaultRadiusMeters = 5000
	MaxRadiusMeters     = 50000

	DefaultWebResults = 5
	MaxWebResults     = 20
	MaxExtractURLs    = 5
)

var travelModes = []string{"driving", "walking", "bicycling", "transit"}

var searchDepths = []string{"basic", "advanced"}

// JSONSchema is the subset of JSON Schema used in tool parameter declarations.
type JSONSchema struct {
	Type                 string                `json:"type"`
	Properties           map[string]JSONSchema `json:"properties,omitempty"`
	Required             []string              `json:"required,omitempty"`
	Description          string                `json:"description,omitempty"`
	Enum                 []string              `json:"enum,omitempty"`
	Items                *JSONSchema           `json:"items,omitempty"`
	Default              any                   `json:"default,omitempty"`
	Minimum              *float64              `json:"minimum,omitempty"`
	Maximum              *float64              `json:"maximum,omitempty"`
	MaxItems             *int                  `json:"maxItems,omitempty"`
	AdditionalProperties *bool                 `json:"additionalProperties,omitempty"`
}

// Definition is a realtime function tool declaration.
type Definition struct {
	Type        string      `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  *JSONSchema `json:"parameters"`
}

func ptr[T any](v T) *T { return &v }

func coordinateSchema(description string) JSONSchema {
	return JSONSchema{
		Type:        "object",
		Description: description,
		Properties: map[string]JSONSchema{
			"latitude":  {Type: "number", Description: "Latitude in decimal degrees"},
			"longitude": {Type: "number", Description: "Longitude in decimal degrees"},
		},
		Required: []string{"latitude", "longitude"},
	}
}

// Definitions returns a fresh copy of the declared tool set, in a stable order.
func Definitions() []Definition {
	return []Definition{
		{
			Type:        "function",
			Name:        ToolSearchPlaces,
			Description: "Search for places like restaurants, attractions or businesses near a location. Always provide a specific search query.",
			Parameters: &JSONSchema{
				Type: "object",
				Properties: map[string]JSONSchema{
					"query":    {Type: "string", Description: "A specific place name or category, e.g. 'coffee shops' or 'gas stations'."},
					"location": coordinateSchema("Optional center point for the search. Defaults to the user's current location."),
					"radius": {
						Type:        "number",
						Description: "Search radius in meters.",
						Default:     DefaultRadiusMeters,
						Minimum:     ptr(1.0),
						Maximum:     ptr(float64(MaxRadiusMeters)),
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Type:        "function",
			Name:        ToolGetPlaceDetails,
			Description: "Get detailed information about a place including reviews, opening hours and contact info.",
			Parameters: &JSONSchema{
				Type: "object",
				Properties: map[string]JSONSchema{
					"place_id": {Type: "string", Description: "The place identifier returned by search_places."},
				},
				Required: []string{"place_id"},
			},
		},
		{
			Type:        "function",
			Name:        ToolGetDirections,
			Description: "Get directions between two locations.",
			Parameters: &JSONSchema{
				Type: "object",
				Properties: map[string]JSONSchema{
					"origin":      {Type: "string", Description: "Starting location (address or 'lat,lng')."},
					"destination": {Type: "string", Description: "Destination (address or 'lat,lng')."},
					"mode":        {Type: "string", Description: "Travel mode.", Enum: slices.Clone(travelModes), Default: "driving"},
				},
				Required: []string{"origin", "destination"},
			},
		},
		{
			Type:        "function",
			Name:        ToolGeocodeAddress,
			Description: "Resolve an address to coordinates, or coordinates to an address. Provide either address, or both latitude and longitude.",
			Parameters: &JSONSchema{
				Type: "object",
				Properties: map[string]JSONSchema{
					"address":   {Type: "string", Description: "Address to geocode."},
					"latitude":  {Type: "number", Description: "Latitude for reverse geocoding."},
					"longitude": {Type: "number", Description: "Longitude for reverse geocoding."},
				},
			},
		},
		{
			Type:        "function",
			Name:        ToolWebSearch,
			Description: "Search the web for current information such as events, news, hours or menus.",
			Parameters: &JSONSchema{
				Type: "object",
				Properties: map[string]JSONSchema{
					"query":          {Type: "string", Description: "Search query."},
					"search_depth":   {Type: "string", Enum: slices.Clone(searchDepths), Default: "basic"},
					"include_images": {Type: "boolean", Default: false},
					"include_answer": {Type: "boolean", Default: true},
					"max_results": {
						Type:    "integer",
						Default: DefaultWebResults,
						Minimum: ptr(1.0),
						Maximum: ptr(float64(MaxWebResults)),
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Type:        "function",
			Name:        ToolExtractWebContent,
			Description: "Extract the readable content of up to five web pages.",
			Parameters: &JSONSchema{
				Type: "object",
				Properties: map[string]JSONSchema{
					"urls": {
						Type:     "array",
						Items:    &JSONSchema{Type: "string"},
						MaxItems: ptr(MaxExtractURLs),
					},
				},
				Required: []string{"urls"},
			},
		},
	}
}

// Names returns the declared tool names in declaration order.
func Names() []string {
	defs := Definitions()
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}

// IsKnown reports whether name is one of the declared tools.
func IsKnown(name string) bool {
	return slices.Contains(Names(), name)
}
