package servertools

import (
	"context"
	"strings"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/gateway/tools/adapters/googlemaps"
)

func (s *Service) SearchPlaces(ctx context.Context, args tools.SearchPlacesArgs) (*tools.SearchPlacesResult, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	if err := s.mapsReady(); err != nil {
		return nil, err
	}
	var raw []googlemaps.Place
	err := s.call(ctx, ProviderGoogleMaps, "text_search", func(ctx context.Context) error {
		var err error
		raw, err = s.maps.TextSearch(ctx, googlemaps.TextSearchRequest{
			Query:    args.Query,
			Location: args.Location,
			Radius:   args.RadiusMeters(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	places := placeResults(raw)
	tools.AnnotateDistances(places, args.Location)
	return &tools.SearchPlacesResult{Places: places}, nil
}

func (s *Service) GetPlaceDetails(ctx context.Context, args tools.PlaceDetailsArgs) (*tools.PlaceDetails, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	if err := s.mapsReady(); err != nil {
		return nil, err
	}
	var raw *googlemaps.PlaceDetails
	err := s.call(ctx, ProviderGoogleMaps, "details", func(ctx context.Context) error {
		var err error
		raw, err = s.maps.Details(ctx, args.PlaceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return placeDetails(raw), nil
}

func (s *Service) GetDirections(ctx context.Context, args tools.DirectionsArgs) (*tools.DirectionsResult, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	if err := s.mapsReady(); err != nil {
		return nil, err
	}
	var raw []googlemaps.Route
	err := s.call(ctx, ProviderGoogleMaps, "directions", func(ctx context.Context) error {
		var err error
		raw, err = s.maps.Directions(ctx, args.Origin, args.Destination, args.Mode)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &tools.DirectionsResult{Routes: routeSummaries(raw)}, nil
}

// GeocodeAddress returns the best match. An empty result set is a not-found error.
func (s *Service) GeocodeAddress(ctx context.Context, args tools.GeocodeArgs) (*tools.GeocodeResult, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	if err := s.mapsReady(); err != nil {
		return nil, err
	}
	req := googlemaps.GeocodeRequest{Address: args.Address}
	if req.Address == "" {
		c := args.Coordinates()
		req.LatLng = &c
	}
	var raw []googlemaps.GeocodeResult
	err := s.call(ctx, ProviderGoogleMaps, "geocode", func(ctx context.Context) error {
		var err error
		raw, err = s.maps.Geocode(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, core.NewNotFoundError("no geocoding results")
	}
	out := geocodeResult(raw[0])
	return &out, nil
}

// NearbyArgs describes a nearby search around a fixed point.
type NearbyArgs struct {
	Location geo.Coordinates
	Radius   int
	Type     string
	Keyword  string
}

// NearbySearch lists places around a point, nearest first.
func (s *Service) NearbySearch(ctx context.Context, args NearbyArgs) (*tools.SearchPlacesResult, error) {
	if !args.Location.Valid() {
		return nil, core.NewInvalidArgument("location", "a valid lat and lng are required")
	}
	if args.Radius == 0 {
		args.Radius = tools.DefaultRadiusMeters
	}
	if args.Radius < 1 || args.Radius > tools.MaxRadiusMeters {
		return nil, core.NewInvalidArgument("radius", "radius must be between 1 and 50000 meters")
	}
	args.Type = strings.TrimSpace(args.Type)
	if err := s.mapsReady(); err != nil {
		return nil, err
	}
	var raw []googlemaps.Place
	err := s.call(ctx, ProviderGoogleMaps, "nearby_search", func(ctx context.Context) error {
		var err error
		raw, err = s.maps.NearbySearch(ctx, googlemaps.NearbySearchRequest{
			Location: args.Location,
			Radius:   args.Radius,
			Type:     args.Type,
			Keyword:  strings.TrimSpace(args.Keyword),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	places := placeResults(raw)
	origin := args.Location
	tools.AnnotateDistances(places, &origin)
	return &tools.SearchPlacesResult{Places: places}, nil
}

// PhotoURL resolves a photo reference to the provider URL without fetching it.
func (s *Service) PhotoURL(reference string, maxWidth int) (string, error) {
	if strings.TrimSpace(reference) == "" {
		return "", core.NewInvalidArgument("ref", "photo reference is required")
	}
	if maxWidth < 0 || maxWidth > 1600 {
		return "", core.NewInvalidArgument("maxwidth", "maxwidth must be between 1 and 1600")
	}
	if err := s.mapsReady(); err != nil {
		return "", err
	}
	return s.maps.PhotoURL(reference, maxWidth)
}
