package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestCounters(t *testing.T) {
	m := NewMetrics()
	if m.Get(MetricRequests) != 0 {
		t.Error("fresh counter should be zero")
	}
	m.Inc(MetricRequests)
	m.Inc(MetricRequests)
	m.Inc(MetricCacheHits)
	if got := m.Get(MetricRequests); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if got := m.Get(MetricCacheHits); got != 1 {
		t.Errorf("cache hits = %d, want 1", got)
	}
}

func TestHandlerOutput(t *testing.T) {
	m := NewMetrics()
	m.Inc(MetricRequests)
	m.ObserveDuration(42 * time.Millisecond)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	if err := m.Handler()(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, MetricRequests+" 1") {
		t.Errorf("missing counter line:\n%s", body)
	}
	if !strings.Contains(body, "gateway_request_duration_seconds_count 1") {
		t.Errorf("missing histogram count:\n%s", body)
	}
	if !strings.Contains(body, `le="0.05"`) {
		t.Errorf("missing bucket line:\n%s", body)
	}
}

func TestMiddlewareObserves(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	_, count, _ := m.duration.snapshot()
	if count != 1 {
		t.Errorf("duration observations = %d, want 1", count)
	}
}
