package googlemaps

import (
	"context"
	"fmt"
	"slices"

	"googlemaps.github.io/maps"

	"github.com/vango-go/vai-places/pkg/core/geo"
)

type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type GeocodeResult struct {
	FormattedAddress  string             `json:"formatted_address"`
	PlaceID           string             `json:"place_id"`
	Geometry          Geometry           `json:"geometry"`
	Types             []string           `json:"types"`
	AddressComponents []AddressComponent `json:"address_components"`
}

// Component returns the long name of the first address component tagged typ.
func (r GeocodeResult) Component(typ string) string {
	for _, c := range r.AddressComponents {
		if slices.Contains(c.Types, typ) {
			return c.LongName
		}
	}
	return ""
}

// City is the locality, falling back to the postal town.
func (r GeocodeResult) City() string {
	if v := r.Component("locality"); v != "" {
		return v
	}
	return r.Component("postal_town")
}

func (r GeocodeResult) Region() string {
	return r.Component("administrative_area_level_1")
}

func (r GeocodeResult) Country() string {
	return r.Component("country")
}

// GeocodeRequest sets exactly one of Address or LatLng.
type GeocodeRequest struct {
	Address string
	LatLng  *geo.Coordinates
}

// Geocode forward- or reverse-geocodes. ZERO_RESULTS yields an empty slice.
func (c *Client) Geocode(ctx context.Context, in GeocodeRequest) ([]GeocodeResult, error) {
	if in.Address == "" && in.LatLng == nil {
		return nil, fmt.Errorf("address or latlng is required")
	}
	if err := c.ready(); err != nil {
		return nil, err
	}
	var (
		results []maps.GeocodingResult
		err     error
	)
	if in.Address != "" {
		results, err = c.maps.Geocode(ctx, &maps.GeocodingRequest{Address: in.Address})
	} else {
		results, err = c.maps.ReverseGeocode(ctx, &maps.GeocodingRequest{LatLng: latLng(*in.LatLng)})
	}
	if err != nil {
		return nil, c.wrap("Geocoding", err)
	}

	out := make([]GeocodeResult, 0, len(results))
	for _, r := range results {
		g := GeocodeResult{
			FormattedAddress: r.FormattedAddress,
			PlaceID:          r.PlaceID,
			Geometry:         Geometry{Location: geo.LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}},
			Types:            r.Types,
		}
		for _, ac := range r.AddressComponents {
			g.AddressComponents = append(g.AddressComponents, AddressComponent{
				LongName:  ac.LongName,
				ShortName: ac.ShortName,
				Types:     ac.Types,
			})
		}
		out = append(out, g)
	}
	return out, nil
}
