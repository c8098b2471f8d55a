package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientExtract_PartialFailure(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			URLs []string `json:"urls"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.URLs) != 2 {
			t.Errorf("body=%+v err=%v", body, err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"url":"https://example.com","raw_content":"content"}],"failed_results":[{"url":"https://down.example.com","error":"timeout"}],"response_time":1.5}`))
	}))
	defer ts.Close()

	client := NewClient("key", ts.URL, ts.Client())
	result, err := client.Extract(context.Background(), []string{"https://example.com", "https://down.example.com"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(result.Results) != 1 || result.Results[0].RawContent != "content" {
		t.Fatalf("results=%+v", result.Results)
	}
	if len(result.FailedResults) != 1 || result.FailedResults[0].Error != "timeout" {
		t.Fatalf("failed=%+v", result.FailedResults)
	}
}

func TestClientExtract_RequiresURLs(t *testing.T) {
	t.Parallel()

	client := NewClient("key", "http://127.0.0.1:0", nil)
	if _, err := client.Extract(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
}
