package graph

import (
	"fmt"
	"strings"
)

// This file implements spec.md §7's error kinds as concrete Go types.
// CancelledError has no dedicated type here: cancellation is reported with
// the context.Canceled/context.DeadlineExceeded value the owning errgroup's
// derived context produced. Where a node returns that value it is wrapped
// in NodeError (and UnhandledErrors) like any other node error; callers
// check with errors.Is(err, context.Canceled), which sees through both
// wrappers.

// InvalidEdgeError reports a structurally malformed edge (an unrecognized
// source or next shape). It aborts graph construction (spec.md §7).
type InvalidEdgeError struct {
	Reason string
}

func (e *InvalidEdgeError) Error() string {
	return fmt.Sprintf("graph: invalid edge: %s", e.Reason)
}

// InvalidConfigKindError reports a node source paired with an ErrorConfig,
// or an error source paired with a NodeConfig (spec.md §4.3 rule 2, §7).
type InvalidConfigKindError struct {
	Reason string
}

func (e *InvalidConfigKindError) Error() string {
	return fmt.Sprintf("graph: invalid config kind: %s", e.Reason)
}

// ApplyError reports that Apply was asked to REMOVE a leaf absent from the
// target mapping (spec.md §4.1, §7 MissingKeyOnRemove).
type ApplyError struct {
	Path Path
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("graph: apply: missing key on remove at path %v", e.Path)
}

// ConflictError reports that two or more sibling changesets touched the
// same path during a merge (spec.md §4.1, §4.6, §7 ChangeConflictException).
type ConflictError struct {
	Conflicts map[string][]Change
	Paths     map[string]Path
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	b.WriteString("graph: merge conflict at ")
	first := true
	for key, changes := range e.Conflicts {
		if !first {
			b.WriteString(", ")
		}
		first = false
		p := e.Paths[key]
		fmt.Fprintf(&b, "%v (%d writers)", []string(p), len(changes))
	}
	return b.String()
}

// NodeError wraps an error raised while running a specific Node, tagging
// it with the NextNode whose execution produced it so the error router
// (C5) can scope recovery against that NextNode's originating edge index
// (spec.md §3, §4.5, §7).
type NodeError struct {
	Node      Node
	Cause     error
	ReachedBy *Entry
}

func (e *NodeError) Error() string {
	name := "<node>"
	if s, ok := e.Node.(fmt.Stringer); ok {
		name = s.String()
	}
	return fmt.Sprintf("graph: node %s: %v", name, e.Cause)
}

func (e *NodeError) Unwrap() error {
	return e.Cause
}

// UnhandledErrors reports that one or more NodeErrors raised during a step
// had no matching, textually-later error edge (spec.md §4.5, §7
// UnhandledNodeErrors). It is itself an error group: Unwrap supports
// errors.Is/As over every wrapped NodeError.
type UnhandledErrors struct {
	Errors []*NodeError
}

func (e *UnhandledErrors) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("graph: unhandled node error: %v", e.Errors[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "graph: %d unhandled node errors:", len(e.Errors))
	for _, ne := range e.Errors {
		fmt.Fprintf(&b, "\n  - %v", ne)
	}
	return b.String()
}

// Unwrap exposes the wrapped NodeErrors to errors.Is/errors.As, matching
// Go 1.20+'s multi-error Unwrap() []error convention.
func (e *UnhandledErrors) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, ne := range e.Errors {
		out[i] = ne
	}
	return out
}
