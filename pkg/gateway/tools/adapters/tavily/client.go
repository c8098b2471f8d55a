// Package tavily wraps the Tavily web search and extract endpoints.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vai-places/pkg/gateway/tools/safety"
)

const defaultBaseURL = "https://api.tavily.com"

var errNotConfigured = errors.New("tavily: api key is not configured")

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c
}

// Configured reports whether requests can be sent at all.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// StatusError is a non-200 answer. Message is Tavily's detail text when the
// body carries one, otherwise the raw snippet.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tavily %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Temporary reports whether retrying later can succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	if !c.Configured() {
		return errNotConfigured
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("tavily %s: encode: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, &buf)
	if err != nil {
		return fmt.Errorf("tavily %s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tavily %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(endpoint, resp)
	}
	if err := safety.DecodeJSON(resp, safety.MaxResponseBytes, out); err != nil {
		return fmt.Errorf("tavily %s: decode: %w", endpoint, err)
	}
	return nil
}

func statusError(endpoint string, resp *http.Response) *StatusError {
	se := &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
		se.RetryAfter = time.Duration(secs) * time.Second
	}
	snippet := safety.ErrorSnippet(resp)
	se.Message = detailMessage(snippet)
	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}
	return se
}

// detailMessage pulls the text out of {"detail":{"error":"..."}} or
// {"detail":"..."} bodies and falls back to the body itself.
func detailMessage(body string) string {
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal([]byte(body), &env) != nil || len(env.Detail) == 0 {
		return body
	}
	var s string
	if json.Unmarshal(env.Detail, &s) == nil && s != "" {
		return s
	}
	var obj struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(env.Detail, &obj) == nil && obj.Error != "" {
		return obj.Error
	}
	return body
}
