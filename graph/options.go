package graph

// Option configures a Graph at construction time. Options compose by
// applying in the order passed to New, mirroring the teacher library's
// functional-option convention.
type Option func(*graphOptions)

// graphOptions holds the resolved configuration for a Graph. Unlike the
// many execution-limit knobs a scheduler-driven engine needs, this
// engine's core has almost none: no MaxSteps, no timeouts, no queue depth
// (spec.md §5 "Timeouts: not provided by the engine"; cycle detection and
// preemption are explicit non-goals, spec.md §1). What remains are the
// ambient concerns every run wants regardless of graph shape: hooks,
// optional metrics, and whether a panicking node aborts the process or
// surfaces as an ordinary error.
type graphOptions struct {
	hooks         Hooks
	metrics       *Metrics
	recoverPanics bool
}

func defaultGraphOptions() graphOptions {
	return graphOptions{
		hooks:         NoopHooks{},
		recoverPanics: false,
	}
}

// WithHooks registers one or more Hooks implementations. Each lifecycle
// callback is awaited across every registered implementation, in the
// order they were passed here, across however many WithHooks calls a
// caller makes (spec.md §4.8 "all awaited sequentially in registration
// order").
func WithHooks(hooks ...Hooks) Option {
	return func(o *graphOptions) {
		existing, ok := o.hooks.(multiHooks)
		if !ok {
			if _, isNoop := o.hooks.(NoopHooks); !isNoop {
				existing = multiHooks{o.hooks}
			}
		}
		o.hooks = append(existing, hooks...)
	}
}

// WithMetrics attaches a Prometheus-backed Metrics collector. If never
// called, the graph records no metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *graphOptions) {
		o.metrics = m
		if m != nil {
			o.hooks = combineHooks(o.hooks, m.hooks())
		}
	}
}

// WithPanicRecovery makes a panicking node surface as an ordinary node
// error (routed through error edges like any other, and offered to
// on_error if unhandled) instead of crashing the process. Without this
// option the step loop recovers no panics; with it, each node's fan-out
// goroutine and the branch run itself are wrapped with a recover, matching
// how the teacher library isolates node failures from the rest of the run.
func WithPanicRecovery(enabled bool) Option {
	return func(o *graphOptions) {
		o.recoverPanics = enabled
	}
}

func hooksList(h Hooks) multiHooks {
	if mh, ok := h.(multiHooks); ok {
		return mh
	}
	if _, ok := h.(NoopHooks); ok {
		return nil
	}
	return multiHooks{h}
}

func combineHooks(a, b Hooks) Hooks {
	out := append(hooksList(a), hooksList(b)...)
	return out
}
