// Package telemetry exposes gateway metrics in Prometheus text exposition
// format using only counters, gauges, and histograms kept in process
// memory.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// Counter names recorded by the pipeline.
const (
	MetricRequests        = "gateway_requests_total"
	MetricCacheHits       = "gateway_cache_hits_total"
	MetricCacheMisses     = "gateway_cache_misses_total"
	MetricInvalid         = "gateway_invalid_messages_total"
	MetricPartial         = "gateway_partial_bundles_total"
	MetricConsentDenied   = "gateway_consent_denied_total"
	MetricConsentFailsafe = "gateway_consent_failclosed_total"
	MetricAuditFailures   = "gateway_audit_failures_total"
)

// durationBuckets are the pipeline latency bucket boundaries in seconds.
var durationBuckets = []float64{
	0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0,
}

// histogram is a fixed-bucket histogram. Bucket counts are stored
// non-cumulative; export computes the cumulative form.
type histogram struct {
	mu      sync.Mutex
	buckets []int64
	count   int64
	sum     float64
}

func newHistogram() *histogram {
	return &histogram{buckets: make([]int64, len(durationBuckets))}
}

func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range durationBuckets {
		if v <= b {
			h.buckets[i]++
			return
		}
	}
}

func (h *histogram) snapshot() (cum []int64, count int64, sum float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum = make([]int64, len(h.buckets))
	var running int64
	for i, c := range h.buckets {
		running += c
		cum[i] = running
	}
	return cum, h.count, h.sum
}

// Metrics is the gateway's metric registry.
type Metrics struct {
	mu       sync.RWMutex
	counters map[string]*int64

	inFlight int64
	duration *histogram
}

// NewMetrics creates an empty registry.
func NewMetrics() *Metrics {
	return &Metrics{
		counters: map[string]*int64{},
		duration: newHistogram(),
	}
}

// Inc increments a named counter.
func (m *Metrics) Inc(name string) {
	m.mu.RLock()
	p, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		atomic.AddInt64(p, 1)
		return
	}
	m.mu.Lock()
	p, ok = m.counters[name]
	if !ok {
		p = new(int64)
		m.counters[name] = p
	}
	m.mu.Unlock()
	atomic.AddInt64(p, 1)
}

// Get returns the current value of a counter.
func (m *Metrics) Get(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.counters[name]
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// ObserveDuration records one pipeline invocation duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	m.duration.Observe(d.Seconds())
}

// Middleware tracks in-flight request count and request durations.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.inFlight, 1)
			start := time.Now()
			err := next(c)
			m.ObserveDuration(time.Since(start))
			atomic.AddInt64(&m.inFlight, -1)
			return err
		}
	}
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		m.mu.RLock()
		names := make([]string, 0, len(m.counters))
		for name := range m.counters {
			names = append(names, name)
		}
		m.mu.RUnlock()
		sort.Strings(names)

		for _, name := range names {
			fmt.Fprintf(&b, "# TYPE %s counter\n%s %d\n", name, name, m.Get(name))
		}

		fmt.Fprintf(&b, "# TYPE gateway_inflight_requests gauge\ngateway_inflight_requests %d\n",
			atomic.LoadInt64(&m.inFlight))

		cum, count, sum := m.duration.snapshot()
		b.WriteString("# TYPE gateway_request_duration_seconds histogram\n")
		for i, boundary := range durationBuckets {
			fmt.Fprintf(&b, "gateway_request_duration_seconds_bucket{le=\"%g\"} %d\n", boundary, cum[i])
		}
		fmt.Fprintf(&b, "gateway_request_duration_seconds_bucket{le=\"+Inf\"} %d\n", count)
		if math.IsNaN(sum) {
			sum = 0
		}
		fmt.Fprintf(&b, "gateway_request_duration_seconds_sum %g\n", sum)
		fmt.Fprintf(&b, "gateway_request_duration_seconds_count %d\n", count)

		return c.String(http.StatusOK, b.String())
	}
}
