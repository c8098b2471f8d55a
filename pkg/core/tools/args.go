package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strings"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/geo"
)

// Decode parses raw tool arguments into T. Empty input decodes as {}.
// Invalid JSON yields a MalformedArguments error; well-formed JSON with a
// field of the wrong type yields InvalidArgument.
func Decode[T any](raw []byte) (T, error) {
	var out T
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if !json.Valid(raw) {
		return out, core.NewMalformedArguments(nil)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return out, core.NewInvalidArgument(typeErr.Field, fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type))
		}
		return out, core.NewInvalidArgument("", err.Error())
	}
	return out, nil
}

// SearchPlacesArgs are the arguments of search_places.
type SearchPlacesArgs struct {
	Query    string           `json:"query"`
	Location *geo.Coordinates `json:"location,omitempty"`
	Radius   float64          `json:"radius,omitempty"`
}

// Normalize trims and defaults a, then validates it.
func (a *SearchPlacesArgs) Normalize() error {
	a.Query = strings.TrimSpace(a.Query)
	if a.Query == "" || a.Query == "undefined" {
		return core.NewInvalidArgument("query", "query must be a specific place name or category")
	}
	if a.Radius == 0 {
		a.Radius = DefaultRadiusMeters
	}
	if a.Radius < 1 || a.Radius > MaxRadiusMeters || math.IsNaN(a.Radius) {
		return core.NewInvalidArgument("radius", fmt.Sprintf("radius must be between 1 and %d meters", MaxRadiusMeters))
	}
	if a.Location != nil && !a.Location.Valid() {
		return core.NewInvalidArgument("location", "location is out of range")
	}
	return nil
}

// RadiusMeters returns the radius rounded to whole meters.
func (a SearchPlacesArgs) RadiusMeters() int {
	return int(math.Round(a.Radius))
}

// PlaceDetailsArgs are the arguments of get_place_details.
type PlaceDetailsArgs struct {
	PlaceID string `json:"place_id"`
}

func (a *PlaceDetailsArgs) Normalize() error {
	a.PlaceID = strings.TrimSpace(a.PlaceID)
	if a.PlaceID == "" || a.PlaceID == "undefined" {
		return core.NewInvalidArgument("place_id", "place_id is required")
	}
	return nil
}

// DirectionsArgs are the arguments of get_directions.
type DirectionsArgs struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Mode        string `json:"mode,omitempty"`
}

func (a *DirectionsArgs) Normalize() error {
	a.Origin = strings.TrimSpace(a.Origin)
	a.Destination = strings.TrimSpace(a.Destination)
	a.Mode = strings.ToLower(strings.TrimSpace(a.Mode))
	if a.Origin == "" {
		return core.NewInvalidArgument("origin", "origin is required")
	}
	if a.Destination == "" {
		return core.NewInvalidArgument("destination", "destination is required")
	}
	if a.Mode == "" {
		a.Mode = "driving"
	}
	if !slices.Contains(travelModes, a.Mode) {
		return core.NewInvalidArgument("mode", "mode must be one of "+strings.Join(travelModes, ", "))
	}
	return nil
}

// GeocodeArgs are the arguments of geocode_address. Exactly one of Address or
// the Latitude/Longitude pair must be set.
type GeocodeArgs struct {
	Address   string   `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func (a *GeocodeArgs) Normalize() error {
	a.Address = strings.TrimSpace(a.Address)
	hasAddress := a.Address != ""
	hasLat, hasLon := a.Latitude != nil, a.Longitude != nil
	switch {
	case hasAddress && (hasLat || hasLon):
		return core.NewInvalidArgument("address", "provide either address or latitude/longitude, not both")
	case hasAddress:
		return nil
	case hasLat && hasLon:
		if !a.Coordinates().Valid() {
			return core.NewInvalidArgument("latitude", "coordinates are out of range")
		}
		return nil
	default:
		return core.NewInvalidArgument("address", "address or both latitude and longitude are required")
	}
}

// Coordinates returns the reverse-geocoding point. Only meaningful when both
// Latitude and Longitude are set.
func (a GeocodeArgs) Coordinates() geo.Coordinates {
	var c geo.Coordinates
	if a.Latitude != nil {
		c.Latitude = *a.Latitude
	}
	if a.Longitude != nil {
		c.Longitude = *a.Longitude
	}
	return c
}

// WebSearchArgs are the arguments of web_search.
type WebSearchArgs struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth,omitempty"`
	IncludeImages bool   `json:"include_images,omitempty"`
	IncludeAnswer *bool  `json:"include_answer,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
}

func (a *WebSearchArgs) Normalize() error {
	a.Query = strings.TrimSpace(a.Query)
	if a.Query == "" || a.Query == "undefined" {
		return core.NewInvalidArgument("query", "query is required")
	}
	a.SearchDepth = strings.ToLower(strings.TrimSpace(a.SearchDepth))
	if a.SearchDepth == "" {
		a.SearchDepth = "basic"
	}
	if !slices.Contains(searchDepths, a.SearchDepth) {
		return core.NewInvalidArgument("search_depth", "search_depth must be basic or advanced")
	}
	if a.MaxResults == 0 {
		a.MaxResults = DefaultWebResults
	}
	if a.MaxResults < 1 || a.MaxResults > MaxWebResults {
		return core.NewInvalidArgument("max_results", fmt.Sprintf("max_results must be between 1 and %d", MaxWebResults))
	}
	if a.IncludeAnswer == nil {
		a.IncludeAnswer = ptr(true)
	}
	return nil
}

// WantsAnswer reports whether a synthesized answer was requested.
func (a WebSearchArgs) WantsAnswer() bool {
	return a.IncludeAnswer == nil || *a.IncludeAnswer
}

// ExtractArgs are the arguments of extract_web_content.
type ExtractArgs struct {
	URLs []string `json:"urls"`
}

func (a *ExtractArgs) Normalize() error {
	if len(a.URLs) == 0 {
		return core.NewInvalidArgument("urls", "urls must contain at least one URL")
	}
	if len(a.URLs) > MaxExtractURLs {
		return core.NewInvalidArgument("urls", fmt.Sprintf("at most %d urls may be extracted at once", MaxExtractURLs))
	}
	for i := range a.URLs {
		a.URLs[i] = strings.TrimSpace(a.URLs[i])
	}
	return nil
}

// PartitionURLs splits urls into those worth sending to an extraction backend
// and per-URL failures for the rest.
func PartitionURLs(urls []string) (valid []string, failed []FailedExtraction) {
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		if err := checkHTTPURL(raw); err != nil {
			failed = append(failed, FailedExtraction{URL: raw, Error: err.Error()})
			continue
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		valid = append(valid, raw)
	}
	return valid, failed
}

func checkHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must use http or https")
	}
	if u.Hostname() == "" {
		return errors.New("url is missing a host")
	}
	if u.User != nil {
		return errors.New("url must not include credentials")
	}
	return nil
}
