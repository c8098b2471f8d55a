package tavily

import (
	"context"
	"fmt"
)

type ExtractedPage struct {
	URL        string   `json:"url"`
	RawContent string   `json:"raw_content"`
	Images     []string `json:"images,omitempty"`
}

type FailedURL struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type ExtractResponse struct {
	Results       []ExtractedPage `json:"results"`
	FailedResults []FailedURL     `json:"failed_results"`
	ResponseTime  float64         `json:"response_time"`
}

// Extract fetches the readable content of urls. Per-URL failures are returned
// in FailedResults, not as an error.
func (c *Client) Extract(ctx context.Context, urls []string) (*ExtractResponse, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("urls are required")
	}
	var out ExtractResponse
	if err := c.post(ctx, "extract", map[string]any{
		"urls":          urls,
		"extract_depth": "basic",
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
