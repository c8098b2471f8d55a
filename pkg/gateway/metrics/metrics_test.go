package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordUpstream_CountsByOutcome(t *testing.T) {
	m := New("test")
	m.RecordUpstream("googlemaps", "text_search", "ok", 20*time.Millisecond)
	m.RecordUpstream("googlemaps", "text_search", "upstream_error", 20*time.Millisecond)
	m.RecordUpstream("googlemaps", "text_search", "ok", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.UpstreamCallsTotal.WithLabelValues("googlemaps", "text_search", "ok")); got != 2 {
		t.Fatalf("ok count=%v", got)
	}
}

func TestHandler_ExposesRegisteredFamilies(t *testing.T) {
	m := New("test")
	m.RecordRequest("/api/places/search", "GET", 200, time.Millisecond)
	m.RecordSessionIssued("ok", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"test_http_requests_total", "test_realtime_sessions_issued_total"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/x", "GET", 200, time.Millisecond)
	m.RecordUpstream("p", "o", "ok", time.Millisecond)
	m.RecordSessionIssued("ok", false)
	m.RecordRateLimitHit("rps")
}
