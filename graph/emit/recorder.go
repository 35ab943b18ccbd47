package emit

import (
	"context"
	"sync"

	"github.com/jmercier/graphflow/graph"
)

// Recorder implements graph.Hooks by buffering every lifecycle callback as
// an Event, the way the teacher's BufferedEmitter appended observability
// events under a mutex for later inspection in tests and debugging
// sessions. Unlike that emitter, Recorder has no runID to key by — one
// Recorder is scoped to one Graph's lifetime, so History returns every
// event a run (including every sub-branch it spawned) produced, in arrival
// order.
type Recorder struct {
	graph.NoopHooks

	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty Recorder ready to pass to graph.WithHooks.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) append(kind string, names []string, err error, meta map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{
		Seq:       len(r.events),
		Kind:      kind,
		NodeNames: names,
		Err:       err,
		Meta:      meta,
	})
}

// History returns a copy of every event recorded so far, safe to read while
// a run is still in progress.
func (r *Recorder) History() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// HistoryByKind filters History to events whose Kind matches kind.
func (r *Recorder) HistoryByKind(kind string) []Event {
	var out []Event
	for _, e := range r.History() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Clear discards every recorded event.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func nodeNames(nextNodes []graph.NextNode) []string {
	names := make([]string, len(nextNodes))
	for i, nn := range nextNodes {
		names[i] = nodeName(nn.Node)
	}
	return names
}

func nodeName(n graph.Node) string {
	if s, ok := n.(interface{ String() string }); ok {
		return s.String()
	}
	return "<node>"
}

func (r *Recorder) OnGraphStart(ctx context.Context, state graph.State, shared graph.Shared) {
	r.append("graph_start", nil, nil, nil)
}

func (r *Recorder) OnGraphEnd(ctx context.Context, state graph.State, shared graph.Shared) {
	r.append("graph_end", nil, nil, nil)
}

func (r *Recorder) OnStepStart(ctx context.Context, state graph.State, shared graph.Shared, nextNodes []graph.NextNode) {
	r.append("step_start", nodeNames(nextNodes), nil, nil)
}

func (r *Recorder) OnStepEnd(ctx context.Context, state graph.State, shared graph.Shared, nextNodes []graph.NextNode) {
	r.append("step_end", nodeNames(nextNodes), nil, nil)
}

func (r *Recorder) OnSpawnBranchStart(ctx context.Context, state graph.State, shared graph.Shared, container *graph.BranchContainer) {
	r.append("spawn_branch_start", nil, nil, map[string]any{"join": container.Join})
}

func (r *Recorder) OnSpawnBranchEnd(ctx context.Context, state graph.State, shared graph.Shared, branch *graph.Branch, trigger *graph.NextNode) {
	r.append("spawn_branch_end", nil, nil, nil)
}

func (r *Recorder) OnMergeStart(ctx context.Context, state graph.State, resultStates []graph.State, changes []graph.ChangeSet) {
	r.append("merge_start", nil, nil, map[string]any{"branches": len(resultStates)})
}

func (r *Recorder) OnMergeConflict(ctx context.Context, state graph.State, changes []graph.ChangeSet, conflicts map[string][]graph.Change) {
	r.append("merge_conflict", nil, nil, map[string]any{"conflicts": len(conflicts)})
}

func (r *Recorder) OnMergeEnd(ctx context.Context, state graph.State, resultStates []graph.State, changes []graph.ChangeSet, merged graph.State) {
	r.append("merge_end", nil, nil, nil)
}

func (r *Recorder) OnError(ctx context.Context, err error, state graph.State, shared graph.Shared) error {
	r.append("error", nil, err, nil)
	return err
}
