package servertools

import (
	"context"

	"github.com/vango-go/vai-places/pkg/core/tools"
	"github.com/vango-go/vai-places/pkg/gateway/tools/adapters/tavily"
)

func (s *Service) WebSearch(ctx context.Context, args tools.WebSearchArgs) (*tools.WebSearchResult, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	if err := s.webReady(); err != nil {
		return nil, err
	}
	var raw *tavily.SearchResponse
	err := s.call(ctx, ProviderTavily, "search", func(ctx context.Context) error {
		var err error
		raw, err = s.web.Search(ctx, tavily.SearchRequest{
			Query:         args.Query,
			SearchDepth:   args.SearchDepth,
			IncludeImages: args.IncludeImages,
			IncludeAnswer: args.WantsAnswer(),
			MaxResults:    args.MaxResults,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return webSearchResult(args.Query, raw), nil
}

// ExtractWebContent never fails for per-URL problems: invalid URLs are
// reported locally and the provider is skipped when none remain.
func (s *Service) ExtractWebContent(ctx context.Context, args tools.ExtractArgs) (*tools.ExtractResult, error) {
	if err := args.Normalize(); err != nil {
		return nil, err
	}
	valid, failed := tools.PartitionURLs(args.URLs)
	out := &tools.ExtractResult{
		Results:       []tools.ExtractedPage{},
		FailedResults: failed,
	}
	if out.FailedResults == nil {
		out.FailedResults = []tools.FailedExtraction{}
	}
	if len(valid) == 0 {
		return out, nil
	}
	if err := s.webReady(); err != nil {
		return nil, err
	}
	var raw *tavily.ExtractResponse
	err := s.call(ctx, ProviderTavily, "extract", func(ctx context.Context) error {
		var err error
		raw, err = s.web.Extract(ctx, valid)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, p := range raw.Results {
		out.Results = append(out.Results, tools.ExtractedPage{URL: p.URL, RawContent: p.RawContent, Images: p.Images})
	}
	for _, f := range raw.FailedResults {
		out.FailedResults = append(out.FailedResults, tools.FailedExtraction{URL: f.URL, Error: f.Error})
	}
	out.ResponseTime = raw.ResponseTime
	return out, nil
}
