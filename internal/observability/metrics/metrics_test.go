package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentRecordsStatusAndLatency(t *testing.T) {
	c := NewCollector()
	handler := c.Instrument("accounts", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	if got := testutil.ToFloat64(c.requests.WithLabelValues("accounts", http.MethodGet, "404")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
	if got := testutil.CollectAndCount(c.latency); got != 1 {
		t.Fatalf("expected 1 latency series, got %d", got)
	}
}

func TestImplicitStatusIsOK(t *testing.T) {
	c := NewCollector()
	handler := c.Instrument("health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := testutil.ToFloat64(c.requests.WithLabelValues("health", http.MethodGet, "200")); got != 1 {
		t.Fatalf("expected 1 request with code 200, got %v", got)
	}
}

func TestBootstrapOutcomesExposed(t *testing.T) {
	c := NewCollector()
	c.ObserveBootstrap("created")
	c.ObserveBootstrap("created")
	c.ObserveBootstrap("failed")
	c.ObserveHTTPRequest("health", http.MethodGet, 200, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`droidrelay_bootstrap_runs_total{outcome="created"} 2`,
		`droidrelay_bootstrap_runs_total{outcome="failed"} 1`,
		`droidrelay_http_request_duration_seconds_count{handler="health",method="GET"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	a.ObserveBootstrap("skipped")

	if got := testutil.ToFloat64(b.bootstrap.WithLabelValues("skipped")); got != 0 {
		t.Fatalf("collectors share state: %v", got)
	}
}
