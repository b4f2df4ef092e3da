package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDecision(t *testing.T) {
	m := New()

	m.ObserveDecision("rule_based", "turn_off", 0.2, false)
	m.ObserveDecision("rule_based", "turn_off", -0.1, true)
	m.ObserveDecision("model_based", "keep", 0, false)

	if got := testutil.ToFloat64(m.decisions.WithLabelValues("rule_based", "turn_off")); got != 2 {
		t.Errorf("rule_based/turn_off = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.energySaved); got != 0.2 {
		t.Errorf("energy saved = %v, want 0.2 (negative deltas ignored)", got)
	}
	if got := testutil.ToFloat64(m.ambientAdjusts); got != 1 {
		t.Errorf("ambient adjustments = %v, want 1", got)
	}
}

func TestObserveTask(t *testing.T) {
	m := New()
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.ObserveTask("discovery", nil, finished)
	m.ObserveTask("discovery", errors.New("border router unreachable"), finished)

	if got := testutil.ToFloat64(m.taskRuns.WithLabelValues("discovery", ResultOK)); got != 1 {
		t.Errorf("ok runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.taskRuns.WithLabelValues("discovery", ResultFailed)); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.taskLastOK.WithLabelValues("discovery")); got != float64(finished.Unix()) {
		t.Errorf("last success = %v, want %v", got, finished.Unix())
	}
}

func TestSetDependencyUp(t *testing.T) {
	m := New()

	m.SetDependencyUp("mqtt", true)
	m.SetDependencyUp("database", true)
	m.SetDependencyUp("mqtt", false)

	if got := testutil.ToFloat64(m.dependencyUp.WithLabelValues("mqtt")); got != 0 {
		t.Errorf("mqtt = %v, want 0 after failed check", got)
	}
	if got := testutil.ToFloat64(m.dependencyUp.WithLabelValues("database")); got != 1 {
		t.Errorf("database = %v, want 1", got)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveTelemetry(true)
	m.ObserveTelemetry(false)
	m.ObserveDispatch("bus", ResultOK)
	m.SetActiveOverrides(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`roomctl_telemetry_events_total{result="dropped"} 1`,
		`roomctl_dispatches_total{result="ok",transport="bus"} 1`,
		`roomctl_overrides_active 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}
