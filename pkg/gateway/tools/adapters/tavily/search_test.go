package tavily

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSearch_SendsDefaultsAndDecodesImages(t *testing.T) {
	t.Parallel()

	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.Header.Get("Authorization") != "Bearer tvly-1" {
			t.Errorf("path=%q auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"answer":"Open late.","results":[{"title":"Cafe Lumo","url":"https://lumo.example","content":"Hours","score":0.71}],"images":["https://img.example/1.jpg",{"url":"https://img.example/2.jpg","description":"patio"}],"response_time":0.3}`))
	}))
	defer ts.Close()

	out, err := NewClient(" tvly-1 ", ts.URL+"/", ts.Client()).Search(context.Background(), SearchRequest{Query: "  cafe lumo hours ", IncludeAnswer: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got["query"] != "cafe lumo hours" || got["search_depth"] != "basic" || got["max_results"] != float64(5) || got["include_answer"] != true {
		t.Fatalf("request=%v", got)
	}
	if out.Query != "cafe lumo hours" || out.Answer != "Open late." {
		t.Fatalf("out=%+v", out)
	}
	if len(out.Results) != 1 || out.Results[0].URL != "https://lumo.example" {
		t.Fatalf("results=%+v", out.Results)
	}
	if len(out.Images) != 2 || out.Images[0].URL != "https://img.example/1.jpg" || out.Images[1].Description != "patio" {
		t.Fatalf("images=%+v", out.Images)
	}
}

func TestSearch_StatusErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		status     int
		retryAfter string
		body       string
		message    string
		temporary  bool
		wait       time.Duration
	}{
		{name: "detail object", status: http.StatusUnauthorized, body: `{"detail":{"error":"Unauthorized: missing or invalid API key."}}`, message: "Unauthorized: missing or invalid API key."},
		{name: "detail string", status: http.StatusBadRequest, body: `{"detail":"query too long"}`, message: "query too long"},
		{name: "plain body", status: http.StatusBadGateway, body: "upstream down", message: "upstream down", temporary: true},
		{name: "empty body", status: http.StatusServiceUnavailable, message: "Service Unavailable", temporary: true},
		{name: "rate limited", status: http.StatusTooManyRequests, retryAfter: "7", body: `{"detail":{"error":"slow down"}}`, message: "slow down", temporary: true, wait: 7 * time.Second},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.retryAfter != "" {
					w.Header().Set("Retry-After", tc.retryAfter)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			_, err := NewClient("k", ts.URL, ts.Client()).Search(context.Background(), SearchRequest{Query: "q"})
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("err=%v, want *StatusError", err)
			}
			if se.Endpoint != "search" || se.StatusCode != tc.status || se.Message != tc.message {
				t.Fatalf("se=%+v", se)
			}
			if se.Temporary() != tc.temporary || se.RetryAfter != tc.wait {
				t.Fatalf("temporary=%v retryAfter=%s", se.Temporary(), se.RetryAfter)
			}
		})
	}
}

func TestSearch_FailsBeforeSending(t *testing.T) {
	t.Parallel()

	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer ts.Close()

	if NewClient("", "", nil).Configured() {
		t.Fatal("client without key reports configured")
	}
	if _, err := NewClient("", ts.URL, ts.Client()).Search(context.Background(), SearchRequest{Query: "q"}); !errors.Is(err, errNotConfigured) {
		t.Fatalf("err=%v", err)
	}
	if _, err := NewClient("k", ts.URL, ts.Client()).Search(context.Background(), SearchRequest{Query: "   "}); err == nil {
		t.Fatal("expected error for blank query")
	}
	if calls != 0 {
		t.Fatalf("server saw %d calls", calls)
	}
}

func TestSearch_ContextAndDecodeFailures(t *testing.T) {
	t.Parallel()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := NewClient("k", slow.URL, slow.Client()).Search(ctx, SearchRequest{Query: "q"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("timeout err=%v", err)
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer bad.Close()

	if _, err := NewClient("k", bad.URL, bad.Client()).Search(context.Background(), SearchRequest{Query: "q"}); err == nil {
		t.Fatal("expected decode error for html body")
	}
}
