package graph

import "context"

// Node represents a processing unit in the workflow graph.
//
// Nodes are opaque and user-supplied: the engine only ever calls Run, and
// identifies a Node by reference equality — two distinct Node values are
// always distinct sources/targets even if they would behave identically.
// A Node must never be implemented by a value type Go would consider equal
// to another instance (a bare func literal, a zero-field struct value);
// use Func (backed by a pointer) or a pointer-receiver type of your own to
// guarantee identity.
//
// Run mutates state in place and returns an error rather than a new state:
// the engine observes state mutations by diffing the pre- and post-Run
// dumps of the snapshot it handed to this call (spec.md §3, §4.6). Mutations
// to shared are visible immediately to every other concurrently-running
// node and are never diffed or synchronized by the engine.
type Node interface {
	Run(ctx context.Context, state State, shared Shared) error
}

// NodeFunc adapts a plain function to the Node interface. It is always
// constructed via Func, which returns a pointer so that two NodeFunc values
// wrapping textually-identical closures remain distinct Nodes (reference
// identity, per spec.md §3).
type NodeFunc struct {
	fn   func(ctx context.Context, state State, shared Shared) error
	name string
}

// Func wraps fn as a Node. name is optional and used only for diagnostics
// (error messages, metric labels); it plays no role in node identity or
// routing.
func Func(name string, fn func(ctx context.Context, state State, shared Shared) error) Node {
	return &NodeFunc{fn: fn, name: name}
}

// Run implements Node.
func (n *NodeFunc) Run(ctx context.Context, state State, shared Shared) error {
	return n.fn(ctx, state, shared)
}

// String returns the node's diagnostic name, or a generic placeholder if
// none was given to Func.
func (n *NodeFunc) String() string {
	if n.name == "" {
		return "<node>"
	}
	return n.name
}

// sentinel backs the Start and End singletons. Both are distinct from any
// Node and from each other by construction (distinct pointers).
type sentinel struct{ name string }

func (s *sentinel) String() string { return s.name }

// Start is the singleton source every top-level and sub-branch run begins
// from (spec.md §3).
var Start = &sentinel{name: "START"}

// End is the singleton target that terminates a branch. A next descriptor
// that resolves to End (or to nil) ends the branch at that point; both are
// treated identically by the resolver (spec.md §4.2: "single-next: node,
// END, or nil").
var End = &sentinel{name: "END"}

// NextNode is a resolved target for the following step, paired with the
// Entry that produced it. ReachedBy is needed so that an error raised
// during this node's execution can be scoped against the originating
// edge's position (spec.md §3, §4.5).
type NextNode struct {
	Node      Node
	ReachedBy *Entry
}

// Entry is an indexed routing record: one (next, config) pair together
// with its position in the original edge list. Index defines priority and
// ordering for error routing (spec.md §3, §4.5d).
type Entry struct {
	Next   nextDescriptor
	Config Config
	Index  int
}
