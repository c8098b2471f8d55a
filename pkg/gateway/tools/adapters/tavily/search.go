package tavily

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type SearchRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth,omitempty"`
	IncludeImages bool   `json:"include_images"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results,omitempty"`
}

type Hit struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

type SearchResponse struct {
	Query        string  `json:"query"`
	Answer       string  `json:"answer,omitempty"`
	Results      []Hit   `json:"results"`
	Images       []Image `json:"images"`
	ResponseTime float64 `json:"response_time"`
}

// Image is returned either as a bare URL or as {url, description}.
type Image struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

func (i *Image) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		i.URL = s
		return nil
	}
	type plain Image
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*i = Image(p)
	return nil
}

func (c *Client) Search(ctx context.Context, in SearchRequest) (*SearchResponse, error) {
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if in.MaxResults <= 0 {
		in.MaxResults = 5
	}
	if in.SearchDepth == "" {
		in.SearchDepth = "basic"
	}

	var out SearchResponse
	if err := c.post(ctx, "search", in, &out); err != nil {
		return nil, err
	}
	if out.Query == "" {
		out.Query = in.Query
	}
	return &out, nil
}
