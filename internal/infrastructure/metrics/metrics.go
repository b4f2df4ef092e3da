package metrics

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roomctl"

// Label values shared with callers.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
	ResultSkipped = "skipped"
)

// shutdownTimeout bounds how long the exporter waits for in-flight scrapes.
const shutdownTimeout = 5 * time.Second

// Metrics holds every coordinator collector on its own registry.
//
// All Observe/Set methods are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	telemetry      *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	energySaved    prometheus.Counter
	ambientAdjusts prometheus.Counter
	dispatches     *prometheus.CounterVec
	overrides      prometheus.Gauge
	overrideEvents *prometheus.CounterVec
	taskRuns       *prometheus.CounterVec
	taskLastOK     *prometheus.GaugeVec
	directorySize  *prometheus.GaugeVec
	dependencyUp   *prometheus.GaugeVec
}

// New creates and registers all collectors plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		telemetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_events_total",
			Help:      "Telemetry events received, by outcome.",
		}, []string{"result"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Automatic decisions computed, by strategy and action.",
		}, []string{"strategy", "action"}),
		energySaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "energy_saved_kwh_total",
			Help:      "Sum of positive energy deltas reported by decisions.",
		}),
		ambientAdjusts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ambient_adjustments_total",
			Help:      "Turn-on decisions cancelled because natural light was sufficient.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Command dispatch attempts, by transport and result.",
		}, []string{"transport", "result"}),
		overrides: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overrides_active",
			Help:      "Manual overrides currently in effect.",
		}),
		overrideEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "override_events_total",
			Help:      "Override lifecycle events, by kind (set, cleared, expired).",
		}, []string{"event"}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Background task runs, by task and result.",
		}, []string{"task", "result"}),
		taskLastOK: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_last_success_timestamp_seconds",
			Help:      "Unix time of each background task's last successful run.",
		}, []string{"task"}),
		directorySize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_entries",
			Help:      "Known device addresses, by source.",
		}, []string{"source"}),
		dependencyUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dependency_up",
			Help:      "1 if the last health check of a dependency passed, else 0.",
		}, []string{"dependency"}),
	}

	m.registry.MustRegister(
		m.telemetry,
		m.decisions,
		m.energySaved,
		m.ambientAdjusts,
		m.dispatches,
		m.overrides,
		m.overrideEvents,
		m.taskRuns,
		m.taskLastOK,
		m.directorySize,
		m.dependencyUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RegisterDB exports connection pool statistics for the store.
func (m *Metrics) RegisterDB(db *sql.DB, name string) error {
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// ObserveTelemetry counts one telemetry event.
func (m *Metrics) ObserveTelemetry(accepted bool) {
	result := ResultOK
	if !accepted {
		result = ResultDropped
	}
	m.telemetry.WithLabelValues(result).Inc()
}

// ObserveDecision counts a decision and accumulates its saving.
func (m *Metrics) ObserveDecision(strategy, action string, energyDelta float64, ambientAdjusted bool) {
	m.decisions.WithLabelValues(strategy, action).Inc()
	if energyDelta > 0 {
		m.energySaved.Add(energyDelta)
	}
	if ambientAdjusted {
		m.ambientAdjusts.Inc()
	}
}

// ObserveDispatch counts one dispatch outcome.
func (m *Metrics) ObserveDispatch(transport, result string) {
	m.dispatches.WithLabelValues(transport, result).Inc()
}

// SetActiveOverrides records the size of the override table.
func (m *Metrics) SetActiveOverrides(n int) {
	m.overrides.Set(float64(n))
}

// ObserveOverrideEvent counts an override lifecycle event.
func (m *Metrics) ObserveOverrideEvent(event string) {
	m.overrideEvents.WithLabelValues(event).Inc()
}

// ObserveTask counts a background task run.
func (m *Metrics) ObserveTask(task string, err error, finished time.Time) {
	if err != nil {
		m.taskRuns.WithLabelValues(task, ResultFailed).Inc()
		return
	}
	m.taskRuns.WithLabelValues(task, ResultOK).Inc()
	m.taskLastOK.WithLabelValues(task).Set(float64(finished.Unix()))
}

// SetDirectorySize records how many addresses each source currently holds.
func (m *Metrics) SetDirectorySize(source string, n int) {
	m.directorySize.WithLabelValues(source).Set(float64(n))
}

// SetDependencyUp records the outcome of a dependency health check.
func (m *Metrics) SetDependencyUp(dependency string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.dependencyUp.WithLabelValues(dependency).Set(v)
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes the registry on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
