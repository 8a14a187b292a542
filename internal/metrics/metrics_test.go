package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Tick(TickOK)
	m.Tick(TickOK)
	m.Tick(TickProbeError)
	m.Flush(FlushPersisted)
	m.ClockJump()

	if got := testutil.ToFloat64(m.ticks.WithLabelValues(TickOK)); got != 2 {
		t.Errorf("expected 2 ok ticks, got %v", got)
	}
	if got := testutil.ToFloat64(m.ticks.WithLabelValues(TickProbeError)); got != 1 {
		t.Errorf("expected 1 probe error tick, got %v", got)
	}
	if got := testutil.ToFloat64(m.clockJumps); got != 1 {
		t.Errorf("expected 1 clock jump, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Tick(TickOK)
	m.Flush(FlushError)
	m.ObserveFlush(time.Millisecond)
	m.ObserveQuery("summary", time.Millisecond)
	m.Reload(false)
	m.SetOpenSegmentAge(3)
	m.WSClients(1)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(nil)
	m.Flush(FlushIgnored)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `atracker_flushes_total{outcome="ignored"} 1`) {
		t.Errorf("flush counter missing from exposition:\n%s", rec.Body.String())
	}
}
