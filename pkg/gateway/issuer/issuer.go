// Package issuer mints realtime session credentials with persona and
// location-aware instructions.
package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/gateway/metrics"
	"github.com/vango-go/vai-places/pkg/gateway/upstream"
)

type Minter interface {
	Mint(ctx context.Context, req upstream.SessionRequest) (*upstream.Session, error)
}

type Geocoder interface {
	GeocodeAddress(ctx context.Context, args tools.GeocodeArgs) (*tools.GeocodeResult, error)
}

// LocationInfo is the reverse-geocoded description of the user's position.
type LocationInfo struct {
	City        string          `json:"city,omitempty"`
	Province    string          `json:"province,omitempty"`
	Country     string          `json:"country,omitempty"`
	FullAddress string          `json:"fullAddress"`
	Coordinates geo.Coordinates `json:"coordinates"`
}

// Description is "City, Province, Country" when the parts are known, else the
// full address.
func (l LocationInfo) Description() string {
	if l.City == "" || l.Province == "" {
		return l.FullAddress
	}
	parts := []string{l.City, l.Province}
	if l.Country != "" {
		parts = append(parts, l.Country)
	}
	return strings.Join(parts, ", ")
}

// Grant is an issued session. It serializes as the upstream fields plus
// client_secret and locationInfo.
type Grant struct {
	ClientSecret upstream.ClientSecret
	LocationInfo *LocationInfo
	Fields       map[string]any
	// Greeting is the opening text turn the client sends once the channel
	// is ready.
	Greeting string

	Instructions string
}

func (g *Grant) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(g.Fields)+2)
	for k, v := range g.Fields {
		out[k] = v
	}
	out["client_secret"] = g.ClientSecret
	if g.LocationInfo != nil {
		out["locationInfo"] = g.LocationInfo
	}
	if g.Greeting != "" {
		out["greeting"] = g.Greeting
	}
	return json.Marshal(out)
}

type Options struct {
	Minter   Minter
	Geocoder Geocoder
	Persona  Persona
	Model    string
	// Voice overrides the persona voice when set.
	Voice   string
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

type Issuer struct {
	minter   Minter
	geocoder Geocoder
	persona  Persona
	model    string
	voice    string
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

func New(opts Options) (*Issuer, error) {
	if opts.Minter == nil {
		return nil, errors.New("issuer: minter is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("issuer: model is required")
	}
	if opts.Persona.Instructions == "" {
		opts.Persona = DefaultPersona()
	}
	voice := opts.Persona.Voice
	if opts.Voice != "" {
		voice = opts.Voice
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/vango-go/vai-places/pkg/gateway/issuer")
	}
	return &Issuer{
		minter:   opts.Minter,
		geocoder: opts.Geocoder,
		persona:  opts.Persona,
		model:    opts.Model,
		voice:    voice,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
	}, nil
}

// Issue mints one session. A supplied location is reverse-geocoded once; a
// geocoding failure only drops the place description from the instructions.
// Minting failures are credential errors and leave no state behind.
func (i *Issuer) Issue(ctx context.Context, loc *geo.Coordinates) (*Grant, error) {
	ctx, span := i.tracer.Start(ctx, "issuer.Issue", trace.WithAttributes(
		attribute.Bool("location.provided", loc != nil),
		attribute.String("realtime.model", i.model),
		attribute.String("tools.schema_version", tools.SchemaVersion),
	))
	defer span.End()

	if loc != nil && !loc.Valid() {
		return nil, core.NewInvalidArgument("userLocation", "userLocation is out of range")
	}

	var info *LocationInfo
	if loc != nil {
		info = i.resolve(ctx, *loc)
	}
	instructions := i.persona.Instructions
	if loc != nil {
		instructions += "\n\n" + LocationClause(*loc, info)
	}

	sess, err := i.minter.Mint(ctx, upstream.SessionRequest{
		Model:         i.model,
		Voice:         i.voice,
		Instructions:  instructions,
		Modalities:    []string{"text", "audio"},
		Tools:         tools.Definitions(),
		ToolChoice:    "auto",
		Temperature:   i.persona.Temperature,
		TurnDetection: upstream.ServerVAD(),
	})
	if err != nil {
		if !core.IsType(err, core.ErrCredential) {
			err = core.NewCredentialError(err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "mint failed")
		i.metrics.RecordSessionIssued("error", info != nil)
		i.logger.Error("realtime session mint failed", "error", err)
		return nil, err
	}

	i.metrics.RecordSessionIssued("ok", info != nil)
	span.SetAttributes(attribute.Bool("location.resolved", info != nil))
	return &Grant{
		ClientSecret: sess.ClientSecret,
		LocationInfo: info,
		Fields:       sess.Fields,
		Greeting:     Greeting(i.persona, info),
		Instructions: instructions,
	}, nil
}

// Greeting builds the opening user turn from the persona's greeting prompt.
func Greeting(p Persona, info *LocationInfo) string {
	g := strings.TrimSpace(p.Greeting)
	if g == "" {
		return ""
	}
	if info != nil && info.Description() != "" {
		return fmt.Sprintf("Hi %s! I'm in %s. %s", p.Name, info.Description(), g)
	}
	return fmt.Sprintf("Hi %s! %s", p.Name, g)
}

func (i *Issuer) resolve(ctx context.Context, loc geo.Coordinates) *LocationInfo {
	if i.geocoder == nil {
		return nil
	}
	lat, lng := loc.Latitude, loc.Longitude
	res, err := i.geocoder.GeocodeAddress(ctx, tools.GeocodeArgs{Latitude: &lat, Longitude: &lng})
	if err != nil {
		i.logger.Warn("could not reverse geocode user location", "error", err)
		return nil
	}
	return &LocationInfo{
		City:        res.City,
		Province:    res.Region,
		Country:     res.Country,
		FullAddress: res.FormattedAddress,
		Coordinates: loc,
	}
}

// LocationClause tells the model where the user is. info may be nil.
func LocationClause(loc geo.Coordinates, info *LocationInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user is currently at coordinates %s. ", loc)
	b.WriteString("When they ask for places near them, pass these coordinates as the location of search_places. ")
	b.WriteString("You already know where they are, so do not ask for their location and do not call geocode_address for it.\n\n")
	b.WriteString("Search results carry distance_km, distance_text and distance_description for each place. Use them when recommending places. ")
	b.WriteString("To get hours, reviews or a phone number, call get_place_details with the exact place_id from the results.")
	if info != nil && info.FullAddress != "" {
		fmt.Fprintf(&b, "\n\nThe user is near %s, in %s. Refer to it naturally in conversation.", info.FullAddress, info.Description())
	}
	return b.String()
}
