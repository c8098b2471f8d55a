package servertools

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/gateway/tools/adapters/googlemaps"
	"github.com/vango-go/vai-places/pkg/gateway/tools/adapters/tavily"
)

func placeResult(p googlemaps.Place) tools.PlaceResult {
	out := tools.PlaceResult{
		PlaceID:          p.PlaceID,
		Name:             p.Name,
		FormattedAddress: p.FormattedAddress,
		Rating:           p.Rating,
		Types:            p.Types,
	}
	if out.FormattedAddress == "" {
		out.FormattedAddress = p.Vicinity
	}
	if p.Geometry != nil {
		loc := p.Geometry.Location
		out.Location = &loc
	}
	return out
}

func placeResults(in []googlemaps.Place) []tools.PlaceResult {
	out := make([]tools.PlaceResult, 0, len(in))
	for _, p := range in {
		out = append(out, placeResult(p))
	}
	return out
}

func placeDetails(in *googlemaps.PlaceDetails) *tools.PlaceDetails {
	out := &tools.PlaceDetails{
		PlaceResult:          placeResult(in.Place),
		FormattedPhoneNumber: in.FormattedPhoneNumber,
		Website:              in.Website,
	}
	if in.OpeningHours != nil {
		out.OpeningHours = &tools.OpeningHours{
			OpenNow:     in.OpeningHours.OpenNow,
			WeekdayText: in.OpeningHours.WeekdayText,
		}
	}
	for _, r := range in.Reviews {
		out.Reviews = append(out.Reviews, tools.Review{
			AuthorName:              r.AuthorName,
			Rating:                  r.Rating,
			Text:                    r.Text,
			RelativeTimeDescription: r.RelativeTimeDescription,
			Time:                    r.Time,
		})
	}
	return out
}

// plainInstructions turns provider HTML step text into speakable text. Tags
// become word breaks and entities are decoded by the tokenizer.
func plainInstructions(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		default:
			b.WriteByte(' ')
		}
	}
}

func textValue(tv googlemaps.TextValue) tools.TextValue {
	return tools.TextValue{Text: tv.Text, Value: tv.Value}
}

// routeSummaries flattens multi-leg routes into totals plus ordered steps.
func routeSummaries(in []googlemaps.Route) []tools.RouteSummary {
	out := make([]tools.RouteSummary, 0, len(in))
	for _, r := range in {
		rs := tools.RouteSummary{Summary: r.Summary, Steps: []tools.RouteStep{}}
		var meters, seconds int64
		for i, leg := range r.Legs {
			if i == 0 {
				rs.StartAddress = leg.StartAddress
			}
			rs.EndAddress = leg.EndAddress
			meters += leg.Distance.Value
			seconds += leg.Duration.Value
			for _, st := range leg.Steps {
				rs.Steps = append(rs.Steps, tools.RouteStep{
					Instructions: plainInstructions(st.HTMLInstructions),
					Distance:     textValue(st.Distance),
					Duration:     textValue(st.Duration),
					TravelMode:   strings.ToLower(st.TravelMode),
				})
			}
		}
		if len(r.Legs) == 1 {
			rs.Distance = textValue(r.Legs[0].Distance)
			rs.Duration = textValue(r.Legs[0].Duration)
		} else {
			rs.Distance = tools.TextValue{Text: geo.FormatDistance(float64(meters) / 1000), Value: meters}
			rs.Duration = tools.TextValue{Text: googlemaps.DurationText(seconds), Value: seconds}
		}
		out = append(out, rs)
	}
	return out
}

func geocodeResult(r googlemaps.GeocodeResult) tools.GeocodeResult {
	return tools.GeocodeResult{
		FormattedAddress: r.FormattedAddress,
		Location:         r.Geometry.Location,
		PlaceID:          r.PlaceID,
		City:             r.City(),
		Region:           r.Region(),
		Country:          r.Country(),
		Types:            r.Types,
	}
}

func webSearchResult(query string, in *tavily.SearchResponse) *tools.WebSearchResult {
	out := &tools.WebSearchResult{
		Query:        in.Query,
		Answer:       in.Answer,
		Results:      make([]tools.WebHit, 0, len(in.Results)),
		Images:       make([]string, 0, len(in.Images)),
		ResponseTime: in.ResponseTime,
	}
	if out.Query == "" {
		out.Query = query
	}
	for _, h := range in.Results {
		out.Results = append(out.Results, tools.WebHit{
			Title:         h.Title,
			URL:           h.URL,
			Snippet:       h.Content,
			Score:         h.Score,
			PublishedDate: h.PublishedDate,
		})
	}
	for _, img := range in.Images {
		if img.URL != "" {
			out.Images = append(out.Images, img.URL)
		}
	}
	return out
}
