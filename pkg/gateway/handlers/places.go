package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/gateway/mw"
	"github.com/vango-go/vai-places/pkg/gateway/tools/servertools"
)

// PlacesService is the server-side tool provider plus the map-only extras.
type PlacesService interface {
	tools.Provider
	NearbySearch(ctx context.Context, args servertools.NearbyArgs) (*tools.SearchPlacesResult, error)
	PhotoURL(reference string, maxWidth int) (string, error)
}

// PlacesHandler serves /api/places/*. Query parameters map onto the same
// argument types the voice tools use.
type PlacesHandler struct {
	Service PlacesService
}

func (h PlacesHandler) Search(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	q := r.URL.Query()
	args := tools.SearchPlacesArgs{Query: q.Get("query")}
	if raw := strings.TrimSpace(q.Get("location")); raw != "" {
		loc, err := parseLatLng(raw)
		if err != nil {
			writeErr(w, reqID, err)
			return
		}
		args.Location = &loc
	}
	if raw := strings.TrimSpace(q.Get("radius")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeErr(w, reqID, core.NewInvalidArgument("radius", "radius must be a number"))
			return
		}
		args.Radius = v
	}
	res, err := h.Service.SearchPlaces(r.Context(), args)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h PlacesHandler) Details(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	res, err := h.Service.GetPlaceDetails(r.Context(), tools.PlaceDetailsArgs{PlaceID: mux.Vars(r)["placeId"]})
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h PlacesHandler) Directions(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	q := r.URL.Query()
	res, err := h.Service.GetDirections(r.Context(), tools.DirectionsArgs{
		Origin:      q.Get("origin"),
		Destination: q.Get("destination"),
		Mode:        q.Get("mode"),
	})
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h PlacesHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	q := r.URL.Query()
	args := tools.GeocodeArgs{Address: q.Get("address")}
	var err error
	if args.Latitude, err = optionalFloat(q, "lat"); err != nil {
		writeErr(w, reqID, err)
		return
	}
	if args.Longitude, err = optionalFloat(q, "lng"); err != nil {
		writeErr(w, reqID, err)
		return
	}
	res, err := h.Service.GeocodeAddress(r.Context(), args)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h PlacesHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	q := r.URL.Query()
	lat, err := optionalFloat(q, "lat")
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	lng, err := optionalFloat(q, "lng")
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	if lat == nil || lng == nil {
		writeErr(w, reqID, core.NewInvalidArgument("lat", "lat and lng are required"))
		return
	}
	args := servertools.NearbyArgs{
		Location: geo.Coordinates{Latitude: *lat, Longitude: *lng},
		Type:     q.Get("type"),
		Keyword:  q.Get("keyword"),
	}
	if raw := strings.TrimSpace(q.Get("radius")); raw != "" {
		if args.Radius, err = strconv.Atoi(raw); err != nil {
			writeErr(w, reqID, core.NewInvalidArgument("radius", "radius must be an integer"))
			return
		}
	}
	res, err := h.Service.NearbySearch(r.Context(), args)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Photo redirects to the provider photo URL; clients only ever hold the reference.
func (h PlacesHandler) Photo(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	q := r.URL.Query()
	maxWidth := 400
	if raw := strings.TrimSpace(q.Get("maxwidth")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeErr(w, reqID, core.NewInvalidArgument("maxwidth", "maxwidth must be an integer"))
			return
		}
		maxWidth = v
	}
	target, err := h.Service.PhotoURL(q.Get("ref"), maxWidth)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func parseLatLng(raw string) (geo.Coordinates, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return geo.Coordinates{}, core.NewInvalidArgument("location", "location must be lat,lng")
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return geo.Coordinates{}, core.NewInvalidArgument("location", "location must be lat,lng")
	}
	return geo.Coordinates{Latitude: lat, Longitude: lng}, nil
}

func optionalFloat(q url.Values, key string) (*float64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, core.NewInvalidArgument(key, key+" must be a number")
	}
	return &v, nil
}
