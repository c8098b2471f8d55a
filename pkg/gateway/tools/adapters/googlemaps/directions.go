package googlemaps

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"googlemaps.github.io/maps"
)

type TextValue struct {
	Text  string `json:"text"`
	Value int64  `json:"value"`
}

type Step struct {
	HTMLInstructions string    `json:"html_instructions"`
	Distance         TextValue `json:"distance"`
	Duration         TextValue `json:"duration"`
	TravelMode       string    `json:"travel_mode"`
}

type Leg struct {
	StartAddress string    `json:"start_address"`
	EndAddress   string    `json:"end_address"`
	Distance     TextValue `json:"distance"`
	Duration     TextValue `json:"duration"`
	Steps        []Step    `json:"steps"`
}

type Route struct {
	Summary string `json:"summary"`
	Legs    []Leg  `json:"legs"`
}

// Directions returns candidate routes from origin to destination.
// ZERO_RESULTS yields an empty slice.
func (c *Client) Directions(ctx context.Context, origin, destination, mode string) ([]Route, error) {
	if origin == "" || destination == "" {
		return nil, fmt.Errorf("origin and destination are required")
	}
	if err := c.ready(); err != nil {
		return nil, err
	}
	routes, _, err := c.maps.Directions(ctx, &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Mode:        maps.Mode(mode),
	})
	if err != nil {
		return nil, c.wrap("Directions", err)
	}

	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		route := Route{Summary: r.Summary, Legs: make([]Leg, 0, len(r.Legs))}
		for _, l := range r.Legs {
			if l == nil {
				continue
			}
			leg := Leg{
				StartAddress: l.StartAddress,
				EndAddress:   l.EndAddress,
				Distance:     distance(l.Distance),
				Duration:     duration(l.Duration),
				Steps:        make([]Step, 0, len(l.Steps)),
			}
			for _, s := range l.Steps {
				if s == nil {
					continue
				}
				leg.Steps = append(leg.Steps, Step{
					HTMLInstructions: s.HTMLInstructions,
					Distance:         distance(s.Distance),
					Duration:         duration(s.Duration),
					TravelMode:       s.TravelMode,
				})
			}
			route.Legs = append(route.Legs, leg)
		}
		out = append(out, route)
	}
	return out, nil
}

func distance(d maps.Distance) TextValue {
	return TextValue{Text: d.HumanReadable, Value: int64(d.Meters)}
}

// duration rebuilds the text the maps types drop when decoding.
func duration(d time.Duration) TextValue {
	secs := int64(d / time.Second)
	return TextValue{Text: DurationText(secs), Value: secs}
}

// DurationText renders seconds the way the Directions API does:
// "1 min", "15 mins", "1 hour 5 mins", "2 hours".
func DurationText(seconds int64) string {
	mins := (seconds + 30) / 60
	if seconds > 0 && mins == 0 {
		mins = 1
	}
	if mins < 60 {
		return plural(mins, "min")
	}
	text := plural(mins/60, "hour")
	if m := mins % 60; m > 0 {
		text += " " + plural(m, "min")
	}
	return text
}

func plural(n int64, unit string) string {
	s := strconv.FormatInt(n, 10) + " " + unit
	if n != 1 {
		s += "s"
	}
	return s
}
