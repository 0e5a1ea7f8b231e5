package obs_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/noah-isme/toko-pricing/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("toko", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/health/ready"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/health/ready", "204"))
	if total != 1 {
		t.Fatalf("expected counter to be 1, got %v", total)
	}

	samples := testutil.CollectAndCount(metrics.ReqDur)
	if samples == 0 {
		t.Fatalf("expected histogram sample")
	}

	if metrics.InFlight != nil {
		if val := testutil.ToFloat64(metrics.InFlight); val != 0 {
			t.Fatalf("expected no in-flight requests, got %v", val)
		}
	}
}

func TestRoutePatternMiddlewareStoresPattern(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = obs.RoutePatternFromContext(r.Context())
	})
	router := chi.NewRouter()
	router.With(obs.RoutePatternMiddleware).Get("/api/v1/carts/{id}/pricing", inner)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/carts/42/pricing", nil))
	if seen != "/api/v1/carts/{id}/pricing" {
		t.Fatalf("unexpected route pattern %q", seen)
	}
}

func TestStatusRecorderForwardsFlush(t *testing.T) {
	rr := httptest.NewRecorder()
	var flusher http.Flusher = obs.NewStatusRecorder(rr)
	flusher.Flush()
	if !rr.Flushed {
		t.Fatalf("expected flush to reach the underlying writer")
	}
}

func TestHTTPObsSkipsLatencyForStreams(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("toko", nil, registry)
	httpObs := obs.HTTPObs{Metrics: metrics}

	var during float64
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(metrics.StreamsOpen)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
	})
	router := chi.NewRouter()
	router.Use(httpObs.Middleware)
	router.Method(http.MethodGet, "/carts/{id}/fragments/stream", httpObs.TrackStream(stream))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/carts/42/fragments/stream", nil))

	if during != 1 {
		t.Fatalf("expected one open stream while serving, got %v", during)
	}
	if val := testutil.ToFloat64(metrics.StreamsOpen); val != 0 {
		t.Fatalf("expected stream gauge to drop back to 0, got %v", val)
	}
	if total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/carts/{id}/fragments/stream", "200")); total != 1 {
		t.Fatalf("expected stream request to be counted, got %v", total)
	}
	if samples := testutil.CollectAndCount(metrics.ReqDur); samples != 0 {
		t.Fatalf("expected no latency samples for streams, got %d", samples)
	}
}
