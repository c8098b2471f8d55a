package googlemaps

import (
	"context"
	"fmt"
	"math"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/vango-go/vai-places/pkg/core/geo"
)

const defaultRadius = 5000

type Geometry struct {
	Location geo.LatLng `json:"location"`
}

type Photo struct {
	PhotoReference string `json:"photo_reference"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

// Place is the subset of a Places API result the gateway uses.
type Place struct {
	PlaceID          string    `json:"place_id"`
	Name             string    `json:"name"`
	FormattedAddress string    `json:"formatted_address"`
	Vicinity         string    `json:"vicinity"`
	Geometry         *Geometry `json:"geometry"`
	Rating           *float64  `json:"rating"`
	Types            []string  `json:"types"`
	Photos           []Photo   `json:"photos"`
}

type Review struct {
	AuthorName              string  `json:"author_name"`
	Rating                  float64 `json:"rating"`
	Text                    string  `json:"text"`
	RelativeTimeDescription string  `json:"relative_time_description"`
	Time                    int64   `json:"time"`
}

type OpeningHours struct {
	OpenNow     *bool    `json:"open_now"`
	WeekdayText []string `json:"weekday_text"`
}

type PlaceDetails struct {
	Place
	FormattedPhoneNumber string        `json:"formatted_phone_number"`
	Website              string        `json:"website"`
	OpeningHours         *OpeningHours `json:"opening_hours"`
	Reviews              []Review      `json:"reviews"`
}

var detailsFields = []maps.PlaceDetailsFieldMask{
	maps.PlaceDetailsFieldMaskPlaceID,
	maps.PlaceDetailsFieldMaskName,
	maps.PlaceDetailsFieldMaskFormattedAddress,
	maps.PlaceDetailsFieldMaskVicinity,
	maps.PlaceDetailsFieldMaskGeometry,
	maps.PlaceDetailsFieldMaskRatings,
	maps.PlaceDetailsFieldMaskTypes,
	maps.PlaceDetailsFieldMaskPhotos,
	maps.PlaceDetailsFieldMaskFormattedPhoneNumber,
	maps.PlaceDetailsFieldMaskWebsite,
	maps.PlaceDetailsFieldMaskOpeningHours,
	maps.PlaceDetailsFieldMaskReviews,
}

type TextSearchRequest struct {
	Query    string
	Location *geo.Coordinates
	Radius   int
}

// TextSearch runs a Places text search. ZERO_RESULTS yields an empty slice.
func (c *Client) TextSearch(ctx context.Context, in TextSearchRequest) ([]Place, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if err := c.ready(); err != nil {
		return nil, err
	}
	req := &maps.TextSearchRequest{Query: in.Query}
	if in.Location != nil {
		req.Location = latLng(*in.Location)
		req.Radius = radius(in.Radius)
	}
	resp, err := c.maps.TextSearch(ctx, req)
	if err != nil {
		return nil, c.wrap("Places search", err)
	}
	return places(resp.Results), nil
}

type NearbySearchRequest struct {
	Location geo.Coordinates
	Radius   int
	Type     string
	Keyword  string
}

// NearbySearch runs a Places nearby search around a point.
func (c *Client) NearbySearch(ctx context.Context, in NearbySearchRequest) ([]Place, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	resp, err := c.maps.NearbySearch(ctx, &maps.NearbySearchRequest{
		Location: latLng(in.Location),
		Radius:   radius(in.Radius),
		Type:     maps.PlaceType(in.Type),
		Keyword:  in.Keyword,
	})
	if err != nil {
		return nil, c.wrap("Nearby search", err)
	}
	return places(resp.Results), nil
}

// Details fetches one place by id. NOT_FOUND and friends are errors.
func (c *Client) Details(ctx context.Context, placeID string) (*PlaceDetails, error) {
	if strings.TrimSpace(placeID) == "" {
		return nil, fmt.Errorf("place id is required")
	}
	if err := c.ready(); err != nil {
		return nil, err
	}
	r, err := c.maps.PlaceDetails(ctx, &maps.PlaceDetailsRequest{PlaceID: placeID, Fields: detailsFields})
	if err != nil {
		return nil, c.wrap("Place details", err)
	}
	out := &PlaceDetails{
		Place: Place{
			PlaceID:          r.PlaceID,
			Name:             r.Name,
			FormattedAddress: r.FormattedAddress,
			Vicinity:         r.Vicinity,
			Geometry:         geometry(r.Geometry),
			Rating:           rating(r.Rating),
			Types:            r.Types,
			Photos:           photos(r.Photos),
		},
		FormattedPhoneNumber: r.FormattedPhoneNumber,
		Website:              r.Website,
	}
	if r.OpeningHours != nil {
		out.OpeningHours = &OpeningHours{OpenNow: r.OpeningHours.OpenNow, WeekdayText: r.OpeningHours.WeekdayText}
	}
	for _, rv := range r.Reviews {
		out.Reviews = append(out.Reviews, Review{
			AuthorName:              rv.AuthorName,
			Rating:                  float64(rv.Rating),
			Text:                    rv.Text,
			RelativeTimeDescription: rv.RelativeTimeDescription,
			Time:                    int64(rv.Time),
		})
	}
	return out, nil
}

func latLng(c geo.Coordinates) *maps.LatLng {
	return &maps.LatLng{Lat: c.Latitude, Lng: c.Longitude}
}

func radius(meters int) uint {
	if meters <= 0 {
		return defaultRadius
	}
	return uint(meters)
}

// geometry treats the zero point as absent: the maps types decode a missing
// geometry object to 0,0.
func geometry(g maps.AddressGeometry) *Geometry {
	if g.Location == (maps.LatLng{}) {
		return nil
	}
	return &Geometry{Location: geo.LatLng{Lat: g.Location.Lat, Lng: g.Location.Lng}}
}

// rating undoes the float32 decode (4.3 arrives as 4.300000190734863) and
// maps an absent rating to nil.
func rating(r float32) *float64 {
	if r <= 0 {
		return nil
	}
	v := math.Round(float64(r)*10) / 10
	return &v
}

func photos(in []maps.Photo) []Photo {
	if len(in) == 0 {
		return nil
	}
	out := make([]Photo, 0, len(in))
	for _, p := range in {
		out = append(out, Photo{PhotoReference: p.PhotoReference, Width: p.Width, Height: p.Height})
	}
	return out
}

func places(in []maps.PlacesSearchResult) []Place {
	out := make([]Place, 0, len(in))
	for _, r := range in {
		out = append(out, Place{
			PlaceID:          r.PlaceID,
			Name:             r.Name,
			FormattedAddress: r.FormattedAddress,
			Vicinity:         r.Vicinity,
			Geometry:         geometry(r.Geometry),
			Rating:           rating(r.Rating),
			Types:            r.Types,
			Photos:           photos(r.Photos),
		})
	}
	return out
}
