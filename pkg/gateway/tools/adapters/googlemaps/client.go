// Package googlemaps adapts googlemaps.github.io/maps to the gateway: Places
// text/nearby search, Place Details, Directions and Geocoding, reduced to the
// fields the tools return.
package googlemaps

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/vango-go/vai-places/pkg/gateway/tools/safety"
)

const defaultBaseURL = "https://maps.googleapis.com"

var errNotConfigured = errors.New("google maps api key is not configured")

type Client struct {
	apiKey  string
	baseURL string
	maps    *maps.Client
	initErr error
}

// NewClient builds a client against baseURL (scheme and host; the API paths
// are fixed). An empty apiKey yields an unconfigured client that never dials.
func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	c := &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.apiKey == "" {
		return c
	}

	// maps.WithHTTPClient rewrites the client's Transport, so it gets a copy.
	hc := &http.Client{}
	if httpClient != nil {
		*hc = *httpClient
	}
	hc.Transport = guard{base: hc.Transport}

	mc, err := maps.NewClient(
		maps.WithAPIKey(c.apiKey),
		maps.WithBaseURL(c.baseURL),
		maps.WithHTTPClient(hc),
		maps.WithRateLimit(0),
	)
	if err != nil {
		c.initErr = fmt.Errorf("google maps client: %w", err)
		return c
	}
	c.maps = mc
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.maps != nil
}

func (c *Client) ready() error {
	switch {
	case c == nil || c.apiKey == "":
		return errNotConfigured
	case c.initErr != nil:
		return c.initErr
	}
	return nil
}

// wrap names the operation and strips the key from transport errors.
func (c *Client) wrap(operation string, err error) error {
	return fmt.Errorf("%s failed: %w", operation, redactKey(err, c.apiKey))
}

// HTTPError is a non-200 transport response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("googlemaps error (status %d): %s", e.StatusCode, e.Body)
}

// guard sits under the maps client, which decodes any body it is handed
// regardless of status or size.
type guard struct {
	base http.RoundTripper
}

func (g guard) RoundTrip(req *http.Request) (*http.Response, error) {
	base := g.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: safety.ErrorSnippet(resp)}
	}
	resp.Body = safety.LimitBody(resp.Body, safety.MaxResponseBytes)
	return resp, nil
}

// PhotoURL returns the provider URL that serves a place photo. The maps
// client only offers a download of the image bytes, and the gateway answers
// photo requests with a redirect, so the URL is built here.
func (c *Client) PhotoURL(reference string, maxWidth int) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if strings.TrimSpace(reference) == "" {
		return "", fmt.Errorf("photo reference is required")
	}
	if maxWidth <= 0 {
		maxWidth = 400
	}
	q := url.Values{}
	q.Set("maxwidth", strconv.Itoa(maxWidth))
	q.Set("photo_reference", reference)
	q.Set("key", c.apiKey)
	return c.baseURL + "/maps/api/place/photo?" + q.Encode(), nil
}

// url.Error embeds the full request URL, key included.
func redactKey(err error, key string) error {
	if key == "" {
		return err
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: strings.ReplaceAll(ue.URL, key, "REDACTED"), Err: ue.Err}
	}
	return err
}
