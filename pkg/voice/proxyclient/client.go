// Package proxyclient talks to the places gateway from a voice client: it
// implements the tool provider over the gateway's HTTP routes and fetches
// realtime credentials from /token.
package proxyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vai-places/pkg/core"
	"github.com/vango-go/vai-places/pkg/core/geo"
	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/gateway/issuer"
	"github.com/vango-go/vai-places/pkg/gateway/tools/safety"
	"github.com/vango-go/vai-places/pkg/voice/session"
)

const (
	DefaultBaseURL = "http://localhost:8080"

	providerName = "gateway"
)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var (
	_ tools.Provider           = (*Client)(nil)
	_ session.CredentialSource = (*Client)(nil)
)

// NewClient builds a client for the gateway at baseURL. apiKey is sent as a
// bearer token when set.
func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type errorEnvelope struct {
	Error *core.Error `json:"error"`
}

// do sends one request and decodes a 2xx JSON body into out. Gateway error
// envelopes come back as *core.Error with their original type.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := safety.DecodeJSON(resp, safety.MaxResponseBytes, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw := safety.ErrorSnippet(resp)
	var env errorEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err == nil && env.Error != nil && env.Error.Type != "" {
		return env.Error
	}
	return fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, raw)
}

// classify keeps gateway-typed errors and wraps everything else as an
// upstream failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce
	}
	return core.NewUpstreamError(providerName, err)
}

func (c *Client) SearchPlaces(ctx context.Context, args tools.SearchPlacesArgs) (*tools.SearchPlacesResult, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("query", args.Query)
	q.Set("radius", strconv.Itoa(args.RadiusMeters()))
	if args.Location != nil {
		q.Set("location", args.Location.String())
	}
	var out tools.SearchPlacesResult
	if err := c.do(ctx, http.MethodGet, "/api/places/search", q, nil, &out); err != nil {
		return nil, classify(err)
	}
	return &out, nil
}

func (c *Client) GetPlaceDetails(ctx context.Context, args tools.PlaceDetailsArgs) (*tools.PlaceDetails, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	var out tools.PlaceDetails
	if err := c.do(ctx, http.MethodGet, "/api/places/details/"+url.PathEscape(args.PlaceID), nil, nil, &out); err != nil {
		return nil, classify(err)
	}
	return &out, nil
}

func (c *Client) GetDirections(ctx context.Context, args tools.DirectionsArgs) (*tools.DirectionsResult, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("origin", args.Origin)
	q.Set("destination", args.Destination)
	q.Set("mode", args.Mode)
	var out tools.DirectionsResult
	if err := c.do(ctx, http.MethodGet, "/api/places/directions", q, nil, &out); err != nil {
		return nil, classify(err)
	}
	return &out, nil
}

func (c *Client) GeocodeAddress(ctx context.Context, args tools.GeocodeArgs) (*tools.GeocodeResult, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	q := url.Values{}
	if args.Address != "" {
		q.Set("address", args.Address)
	} else {
		q.Set("lat", strconv.FormatFloat(*args.Latitude, 'f', -1, 64))
		q.Set("lng", strconv.FormatFloat(*args.Longitude, 'f', -1, 64))
	}
	var out tools.GeocodeResult
	if err := c.do(ctx, http.MethodGet, "/api/places/geocode", q, nil, &out); err != nil {
		return nil, classify(err)
	}
	return &out, nil
}

func (c *Client) WebSearch(ctx context.Context, args tools.WebSearchArgs) (*tools.WebSearchResult, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	var out tools.WebSearchResult
	if err := c.do(ctx, http.MethodPost, "/api/web/search", nil, args, &out); err != nil {
		return nil, classify(err)
	}
	return &out, nil
}

func (c *Client) ExtractWebContent(ctx context.Context, args tools.ExtractArgs) (*tools.ExtractResult, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	var out tools.ExtractResult
	if err := c.do(ctx, http.MethodPost, "/api/web/extract", nil, args, &out); err != nil {
		return nil, classify(err)
	}
	return &out, nil
}

type tokenRequest struct {
	UserLocation *geo.Coordinates `json:"userLocation,omitempty"`
}

type tokenResponse struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
	LocationInfo *issuer.LocationInfo `json:"locationInfo,omitempty"`
	Greeting     string               `json:"greeting,omitempty"`
}

// Issue requests a realtime credential. Every failure is a CredentialError.
func (c *Client) Issue(ctx context.Context, loc *geo.Coordinates) (session.Credential, error) {
	var out tokenResponse
	if err := c.do(ctx, http.MethodPost, "/token", nil, tokenRequest{UserLocation: loc}, &out); err != nil {
		return session.Credential{}, core.NewCredentialError(err)
	}
	if strings.TrimSpace(out.ClientSecret.Value) == "" {
		return session.Credential{}, core.NewCredentialError(errors.New("token response has no client_secret"))
	}
	cred := session.Credential{
		Value:    out.ClientSecret.Value,
		Greeting: out.Greeting,
	}
	if out.ClientSecret.ExpiresAt > 0 {
		cred.ExpiresAt = time.Unix(out.ClientSecret.ExpiresAt, 0)
	}
	if out.LocationInfo != nil {
		cred.Place = out.LocationInfo.Description()
	}
	return cred, nil
}
