package graph

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a Prometheus-backed collector for graph execution, wired in
// via WithMetrics. Unlike a scheduler with a global frontier, this engine
// has no queue depth or retry count to expose; what it does have is
// branches (concurrent units of execution) and steps (fan-out rounds), so
// the metric surface is relabeled around those instead of run/node string
// identifiers.
//
// Metrics exposed, all namespaced "graphflow_":
//
//  1. active_branches (gauge): spawned sub-branches currently running. The
//     root branch is not spawned through OnSpawnBranchStart and is not
//     counted.
//  2. step_latency_ms (histogram): time spent in one branch step's merge
//     phase (OnMergeStart to OnMergeEnd/OnMergeConflict), labeled by
//     outcome (ok/error). Fan-out time is not included.
//  3. merge_conflicts_total (counter): ChangeConflictException occurrences.
//  4. node_errors_total (counter): node errors offered to OnError, labeled
//     by the raising node's diagnostic name. Node errors consumed by an
//     error edge never reach OnError and are not counted.
//  5. unhandled_errors_total (counter): error groups that escaped routing
//     unhandled.
type Metrics struct {
	activeBranches prometheus.Gauge
	stepLatency    *prometheus.HistogramVec
	mergeConflicts prometheus.Counter
	nodeErrors     *prometheus.CounterVec
	unhandled      prometheus.Counter

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics creates and registers graphflow's metrics against registry.
// Pass prometheus.DefaultRegisterer to use the global registry, or a fresh
// prometheus.NewRegistry() for isolation (e.g. in tests).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		enabled: true,
		activeBranches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "graphflow",
			Name:      "active_branches",
			Help:      "Number of spawned sub-branches currently executing (the root branch is not counted)",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphflow",
			Name:      "step_latency_ms",
			Help:      "Duration of one branch step's merge phase in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"outcome"}),
		mergeConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "graphflow",
			Name:      "merge_conflicts_total",
			Help:      "Number of merge-phase conflicts detected across all branches",
		}),
		nodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphflow",
			Name:      "node_errors_total",
			Help:      "Number of node errors offered to on_error hooks, by raising node",
		}, []string{"node"}),
		unhandled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "graphflow",
			Name:      "unhandled_errors_total",
			Help:      "Number of error groups that escaped routing unhandled",
		}),
	}
}

// Disable temporarily stops metric recording (useful in tests that want a
// Metrics instance wired in without asserting on its values).
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable re-enables metric recording after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

func (m *Metrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// hooks returns a Hooks implementation that records this collector's
// metrics at the relevant lifecycle points, for WithMetrics to fold into
// the graph's hook chain.
func (m *Metrics) hooks() Hooks {
	return &metricsHooks{m: m}
}

// metricsHooks adapts Metrics to Hooks. It embeds NoopHooks so it only
// needs to override the callbacks it cares about. mergeStarts tracks each
// concurrently-running merge phase's start time between OnMergeStart and
// whichever of OnMergeConflict/OnMergeEnd closes it out, keyed by the same
// joined State value the branch step passes to all three calls (state
// implementations are conventionally pointer-backed, so this key is a
// stable, comparable identity for the duration of one merge).
type metricsHooks struct {
	NoopHooks
	m *Metrics

	mu          sync.Mutex
	mergeStarts map[State]time.Time
}

func (h *metricsHooks) OnSpawnBranchStart(context.Context, State, Shared, *BranchContainer) {
	if !h.m.isEnabled() {
		return
	}
	h.m.activeBranches.Inc()
}

func (h *metricsHooks) OnSpawnBranchEnd(context.Context, State, Shared, *Branch, *NextNode) {
	if !h.m.isEnabled() {
		return
	}
	h.m.activeBranches.Dec()
}

func (h *metricsHooks) OnMergeStart(ctx context.Context, state State, results []State, changes []ChangeSet) {
	if !h.m.isEnabled() {
		return
	}
	h.mu.Lock()
	if h.mergeStarts == nil {
		h.mergeStarts = make(map[State]time.Time)
	}
	h.mergeStarts[state] = time.Now()
	h.mu.Unlock()
}

func (h *metricsHooks) elapsedMillis(state State) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	start, ok := h.mergeStarts[state]
	if !ok {
		return 0
	}
	delete(h.mergeStarts, state)
	return float64(time.Since(start).Milliseconds())
}

func (h *metricsHooks) OnMergeConflict(ctx context.Context, state State, changes []ChangeSet, conflicts map[string][]Change) {
	if !h.m.isEnabled() {
		return
	}
	h.m.mergeConflicts.Inc()
	h.m.stepLatency.WithLabelValues("error").Observe(h.elapsedMillis(state))
}

func (h *metricsHooks) OnMergeEnd(ctx context.Context, state State, results []State, changes []ChangeSet, merged State) {
	if !h.m.isEnabled() {
		return
	}
	h.m.stepLatency.WithLabelValues("ok").Observe(h.elapsedMillis(state))
}

func (h *metricsHooks) OnError(ctx context.Context, err error, state State, shared Shared) error {
	if !h.m.isEnabled() {
		return err
	}
	switch e := err.(type) {
	case *UnhandledErrors:
		h.m.unhandled.Inc()
		for _, ne := range e.Errors {
			h.m.nodeErrors.WithLabelValues(nodeLabel(ne.Node)).Inc()
		}
	case *NodeError:
		h.m.nodeErrors.WithLabelValues(nodeLabel(e.Node)).Inc()
	}
	return err
}

func nodeLabel(n Node) string {
	if s, ok := n.(interface{ String() string }); ok {
		return s.String()
	}
	return "<node>"
}
