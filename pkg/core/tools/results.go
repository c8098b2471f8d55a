package tools

import (
	"context"
	"sort"

	"github.com/vango-go/vai-places/pkg/core/geo"
)

// PlaceResult is a normalized place returned by search and details lookups.
// The distance fields are set only when the search had a reference point.
type PlaceResult struct {
	PlaceID             string      `json:"place_id"`
	Name                string      `json:"name"`
	FormattedAddress    string      `json:"formatted_address,omitempty"`
	Location            *geo.LatLng `json:"location,omitempty"`
	Rating              *float64    `json:"rating,omitempty"`
	Types               []string    `json:"types,omitempty"`
	DistanceKm          *float64    `json:"distance_km,omitempty"`
	DistanceText        string      `json:"distance_text,omitempty"`
	DistanceDescription string      `json:"distance_description,omitempty"`
}

// HasDistance reports whether p carries computed distance fields.
func (p PlaceResult) HasDistance() bool {
	return p.DistanceKm != nil
}

type SearchPlacesResult struct {
	Places []PlaceResult `json:"places"`
}

type Review struct {
	AuthorName              string  `json:"author_name,omitempty"`
	Rating                  float64 `json:"rating,omitempty"`
	Text                    string  `json:"text,omitempty"`
	RelativeTimeDescription string  `json:"relative_time_description,omitempty"`
	Time                    int64   `json:"time,omitempty"`
}

type OpeningHours struct {
	OpenNow     *bool    `json:"open_now,omitempty"`
	WeekdayText []string `json:"weekday_text,omitempty"`
}

// PlaceDetails extends PlaceResult with contact info, hours and reviews.
type PlaceDetails struct {
	PlaceResult
	FormattedPhoneNumber string        `json:"formatted_phone_number,omitempty"`
	Website              string        `json:"website,omitempty"`
	OpeningHours         *OpeningHours `json:"opening_hours,omitempty"`
	Reviews              []Review      `json:"reviews,omitempty"`
}

// TextValue pairs a display string with its numeric value (meters or seconds).
type TextValue struct {
	Text  string `json:"text"`
	Value int64  `json:"value"`
}

type RouteStep struct {
	Instructions string    `json:"instructions"`
	Distance     TextValue `json:"distance"`
	Duration     TextValue `json:"duration"`
	TravelMode   string    `json:"travel_mode,omitempty"`
}

type RouteSummary struct {
	Summary      string      `json:"summary"`
	StartAddress string      `json:"start_address,omitempty"`
	EndAddress   string      `json:"end_address,omitempty"`
	Distance     TextValue   `json:"distance"`
	Duration     TextValue   `json:"duration"`
	Steps        []RouteStep `json:"steps"`
}

type DirectionsResult struct {
	Routes []RouteSummary `json:"routes"`
}

// GeocodeResult is the best match of a forward or reverse geocode.
type GeocodeResult struct {
	FormattedAddress string     `json:"formatted_address"`
	Location         geo.LatLng `json:"location"`
	PlaceID          string     `json:"place_id"`
	City             string     `json:"city,omitempty"`
	Region           string     `json:"region,omitempty"`
	Country          string     `json:"country,omitempty"`
	Types            []string   `json:"types,omitempty"`
}

type WebHit struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Snippet       string  `json:"snippet"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

type WebSearchResult struct {
	Query        string   `json:"query"`
	Answer       string   `json:"answer,omitempty"`
	Results      []WebHit `json:"results"`
	Images       []string `json:"images"`
	ResponseTime float64  `json:"response_time"`
}

type ExtractedPage struct {
	URL        string   `json:"url"`
	RawContent string   `json:"raw_content"`
	Images     []string `json:"images,omitempty"`
}

type FailedExtraction struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type ExtractResult struct {
	Results       []ExtractedPage    `json:"results"`
	FailedResults []FailedExtraction `json:"failed_results"`
	ResponseTime  float64            `json:"response_time"`
}

// Provider executes the declared tools. Implementations must be safe for
// concurrent use.
type Provider interface {
	SearchPlaces(ctx context.Context, args SearchPlacesArgs) (*SearchPlacesResult, error)
	GetPlaceDetails(ctx context.Context, args PlaceDetailsArgs) (*PlaceDetails, error)
	GetDirections(ctx context.Context, args DirectionsArgs) (*DirectionsResult, error)
	GeocodeAddress(ctx context.Context, args GeocodeArgs) (*GeocodeResult, error)
	WebSearch(ctx context.Context, args WebSearchArgs) (*WebSearchResult, error)
	ExtractWebContent(ctx context.Context, args ExtractArgs) (*ExtractResult, error)
}

// AnnotateDistances sets the distance fields of every place that has a
// location, relative to origin, then stably sorts places nearest first with
// unannotated entries last. A nil origin leaves places untouched.
func AnnotateDistances(places []PlaceResult, origin *geo.Coordinates) {
	if origin == nil {
		return
	}
	for i := range places {
		p := &places[i]
		if p.Location == nil {
			continue
		}
		km := geo.Haversine(*origin, p.Location.Coordinates())
		p.DistanceKm = &km
		p.DistanceText = geo.FormatDistance(km)
		p.DistanceDescription = geo.DescribeDistance(km)
	}
	SortByDistance(places)
}

// SortByDistance orders places by ascending distance; entries without a
// distance keep their relative order at the end.
func SortByDistance(places []PlaceResult) {
	sort.SliceStable(places, func(i, j int) bool {
		a, b := places[i].DistanceKm, places[j].DistanceKm
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}
