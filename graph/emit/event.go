// Package emit provides ready-made graph.Hooks implementations for
// recording and logging execution history, the way an application would
// otherwise have to hand-write a Hooks struct just to see what happened.
package emit

// Event is a single lifecycle occurrence captured by Recorder. It carries enough of each Hooks callback's arguments to
// reconstruct a timeline of a run without pinning observers to the exact
// Hooks method signatures.
type Event struct {
	// Seq is the order this event was recorded in, starting at 0. Multiple
	// branches record concurrently, so Seq reflects arrival order at the
	// recorder's mutex, not a causal ordering across branches.
	Seq int

	// Kind names the lifecycle point, e.g. "graph_start", "step_start",
	// "spawn_branch_end", "merge_conflict", "error".
	Kind string

	// NodeNames lists the diagnostic names (Node.String(), when the node
	// implements fmt.Stringer) of every node involved, in step order. Empty
	// for graph- and branch-level events that have no associated nodes.
	NodeNames []string

	// Err is set for "error" events: the error offered to OnError.
	Err error

	// Meta carries event-specific structured detail: the number of
	// conflicting paths for "merge_conflict", the spawned container's join
	// target for "spawn_branch_start", and so on.
	Meta map[string]any
}
