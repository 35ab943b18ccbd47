package graph

import (
	"context"
	"fmt"
	"reflect"
)

// RouteFunc is a dynamic router: a (possibly I/O-performing) function that
// computes a resolved-next from the current state and shared object
// (spec.md §4.2 "next"). Dynamic routers execute sequentially, in the
// order they are collected, to avoid races on shared (spec.md §4.4).
type RouteFunc func(ctx context.Context, state State, shared Shared) (any, error)

// Config is the marker interface for per-entry configuration. Node-sourced
// entries carry a NodeConfig; error-sourced entries carry an ErrorConfig.
// Pairing the wrong kind with a source is an InvalidConfigKindError
// (spec.md §4.3 rule 2).
type Config interface {
	isConfig()
}

// NodeConfig configures a node/START edge.
type NodeConfig struct {
	// Instant, when true, makes the target join the *current* step instead
	// of the next one (spec.md §4.4.3, §6.1).
	Instant bool
}

func (NodeConfig) isConfig() {}

// DefaultNodeConfig is used when a node/START edge omits an explicit
// config.
var DefaultNodeConfig = NodeConfig{Instant: false}

// ErrorConfig configures an error edge.
type ErrorConfig struct {
	// Propagate, when true, lets later matching error entries also fire
	// after this one; otherwise this entry consumes the error
	// (spec.md §4.5e, §6.1).
	Propagate bool
}

func (ErrorConfig) isConfig() {}

// DefaultErrorConfig is used when an error edge omits an explicit config.
var DefaultErrorConfig = ErrorConfig{Propagate: false}

// ErrorKey identifies a single-error-source: either an exception type
// (Node is nil) or a (node, exception-type) pair scoped to errors raised
// while executing that specific node (spec.md §3, §4.2, §4.5b).
type ErrorKey struct {
	Node Node
	Type reflect.Type
}

// ErrType returns the reflect.Type for E, for use as an unscoped
// single-error-source. E should be a concrete error type (the Go analogue
// of a Python exception class), not an interface — matching walks the
// error's Unwrap chain comparing concrete types, the same way a Python
// isinstance check walks an exception's class hierarchy.
//
//	graph.ErrType[*ValidationError]()
func ErrType[E error]() reflect.Type {
	var zero E
	return reflect.TypeOf(&zero).Elem()
}

// Scoped returns the single-error-source "(node, exception-type)": it
// matches only errors raised while executing node.
func Scoped(node Node, errType reflect.Type) ErrorKey {
	return ErrorKey{Node: node, Type: errType}
}

// ScopedAll expands "(list<node>, exception-type)" into the sequence of
// single-error-sources spec.md §6.1 describes; pass the result as a
// RawEdge's source.
func ScopedAll(nodes []Node, errType reflect.Type) []ErrorKey {
	out := make([]ErrorKey, len(nodes))
	for i, n := range nodes {
		out[i] = ErrorKey{Node: n, Type: errType}
	}
	return out
}

// BranchContainer defines one sub-graph: a start source, its own edge
// sequence, and the node (or End) where it joins back into whichever
// branch later reaches that target (spec.md §3). The top-level graph is
// itself represented internally as a BranchContainer with Start = Start
// and Join = End.
type BranchContainer struct {
	Start any // single-source or []single-source
	Edges []RawEdge
	Join  any // Node or End
}

// Sub constructs a BranchContainer for use as (part of) a next descriptor,
// spawning a concurrently-running sub-branch the instant it is resolved
// (spec.md §4.6 "Spawning a sub-branch").
func Sub(start any, edges []RawEdge, join any) *BranchContainer {
	return &BranchContainer{Start: start, Edges: edges, Join: join}
}

// edgeKind tags which of §6.1's edge-list element shapes a RawEdge is.
type edgeKind int

const (
	edgeKindPair edgeKind = iota
	edgeKindChain
)

// RawEdge is one element of an edge list, in whichever of spec.md §6.1's
// shapes the caller constructed it with via E, EC, or Chain.
type RawEdge struct {
	kind edgeKind

	// edgeKindPair fields.
	source any
	next   any
	config any // nil means "use the kind-appropriate default"

	// edgeKindChain fields: source -> chainNodes[0] -> chainNodes[1] -> ...
	// -> chainNodes[len-1] -> chainNext (chainNext nil means the chain ends
	// without a further edge from the last node).
	chainNodes []Node
	chainNext  any
}

// E constructs a "(source, next)" edge with the default config for its
// source kind.
func E(source, next any) RawEdge {
	return RawEdge{kind: edgeKindPair, source: source, next: next}
}

// EC constructs a "(source, next, config)" edge with an explicit config.
// config's kind must match source's kind (NodeConfig for node/START
// sources, ErrorConfig for error sources) or indexing fails with
// InvalidConfigKindError.
func EC(source, next, config any) RawEdge {
	return RawEdge{kind: edgeKindPair, source: source, next: next, config: config}
}

// Chain constructs the "(source, n1, n2, …, nk[, next])" node-tuple
// shorthand: source connects to nodes[0], nodes[0] to nodes[1], and so on,
// with nodes[len-1] finally connecting to next. Pass a nil next to leave
// the chain's tail node without a further edge from this construct (as
// opposed to passing End, which explicitly terminates the branch there).
// Every expanded pair edge uses the default config for its source kind.
func Chain(source any, nodes []Node, next any) RawEdge {
	return RawEdge{kind: edgeKindChain, source: source, chainNodes: nodes, chainNext: next}
}

// --- classification (spec.md §4.2) ---
//
// Predicates here are side-effect free and never invoke user code; they
// only inspect the shape of values supplied at graph-construction time.

// isNode reports whether v is a Node (and not one of the Start/End
// sentinels, which do not implement Node).
func isNode(v any) bool {
	_, ok := v.(Node)
	return ok
}

// isSingleSource reports whether v is a node or Start.
func isSingleSource(v any) bool {
	if v == Start {
		return true
	}
	return isNode(v)
}

// sourceList normalizes a source value into its constituent
// single-sources (node/START) or single-error-sources (ErrorKey),
// expanding slices. It returns an error if any element is not a
// recognized source shape (spec.md §4.3 rule 4).
func sourceList(source any) ([]any, bool, error) {
	switch s := source.(type) {
	case []Node:
		out := make([]any, len(s))
		for i, n := range s {
			out[i] = n
		}
		return out, false, nil
	case []any:
		out := make([]any, 0, len(s))
		isError := false
		for i, el := range s {
			switch {
			case isSingleSource(el):
				out = append(out, el)
			case isSingleErrorSource(el):
				out = append(out, el)
				isError = true
			default:
				return nil, false, &InvalidEdgeError{Reason: fmt.Sprintf("unrecognized source element at index %d: %v", i, el)}
			}
		}
		return out, isError, nil
	case []ErrorKey:
		out := make([]any, len(s))
		for i, k := range s {
			out[i] = k
		}
		return out, true, nil
	case ErrorKey:
		return []any{s}, true, nil
	default:
		if isSingleSource(s) {
			return []any{s}, false, nil
		}
		if isSingleErrorSource(s) {
			return []any{s}, true, nil
		}
		return nil, false, &InvalidEdgeError{Reason: fmt.Sprintf("unrecognized edge source: %v", source)}
	}
}

// isSingleErrorSource reports whether v is an exception type (reflect.Type)
// or a (node, exception-type) pair (ErrorKey).
func isSingleErrorSource(v any) bool {
	switch v.(type) {
	case reflect.Type:
		return true
	case ErrorKey:
		return true
	default:
		return false
	}
}

func asErrorKey(v any) ErrorKey {
	switch t := v.(type) {
	case reflect.Type:
		return ErrorKey{Type: t}
	case ErrorKey:
		return t
	default:
		panic("graph: asErrorKey called on a non-error-source value")
	}
}

// nextKind tags how a classified next descriptor should be resolved.
type nextKind int

const (
	nextKindStatic nextKind = iota
	nextKindDynamic
	nextKindBranch
)

// nextDescriptor is the classified form of a raw "next" value: a resolved
// static target list, a dynamic router, or a sub-branch spawn
// (spec.md §3 "a next descriptor").
type nextDescriptor struct {
	kind   nextKind
	static []any // Node and/or End values, possibly empty (a pure-nil next)
	router RouteFunc
	branch *BranchContainer
}

// classifyNext turns a raw next value (as accepted by E/EC/Chain) into a
// nextDescriptor. Recognized shapes: nil, End, a Node, a []any/[]Node of
// any of those, a *BranchContainer, or a RouteFunc (or a plain func with a
// compatible signature).
func classifyNext(raw any) (nextDescriptor, error) {
	switch v := raw.(type) {
	case nil:
		return nextDescriptor{kind: nextKindStatic, static: nil}, nil
	case *sentinel:
		if v != End {
			return nextDescriptor{}, &InvalidEdgeError{Reason: "only End is a valid sentinel next target"}
		}
		return nextDescriptor{kind: nextKindStatic, static: []any{End}}, nil
	case Node:
		return nextDescriptor{kind: nextKindStatic, static: []any{v}}, nil
	case *BranchContainer:
		return nextDescriptor{kind: nextKindBranch, branch: v}, nil
	case RouteFunc:
		return nextDescriptor{kind: nextKindDynamic, router: v}, nil
	case func(context.Context, State, Shared) (any, error):
		return nextDescriptor{kind: nextKindDynamic, router: RouteFunc(v)}, nil
	case []Node:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return nextDescriptor{kind: nextKindStatic, static: out}, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, el := range v {
			flat, err := flattenStaticNext(el)
			if err != nil {
				return nextDescriptor{}, err
			}
			out = append(out, flat...)
		}
		return nextDescriptor{kind: nextKindStatic, static: out}, nil
	default:
		return nextDescriptor{}, &InvalidEdgeError{Reason: fmt.Sprintf("unrecognized next descriptor: %v", raw)}
	}
}

func flattenStaticNext(el any) ([]any, error) {
	switch v := el.(type) {
	case nil:
		return nil, nil
	case *sentinel:
		if v != End {
			return nil, &InvalidEdgeError{Reason: "only End is a valid sentinel next target"}
		}
		return []any{End}, nil
	case Node:
		return []any{v}, nil
	default:
		return nil, &InvalidEdgeError{Reason: fmt.Sprintf("unrecognized next element: %v", el)}
	}
}

// defaultConfigFor returns the zero-value default Config appropriate for a
// source classified as an error source or not.
func defaultConfigFor(isError bool) Config {
	if isError {
		return DefaultErrorConfig
	}
	return DefaultNodeConfig
}

// checkConfigKind validates that config's concrete kind matches the
// source's kind, per spec.md §4.3 rule 2.
func checkConfigKind(config Config, isError bool) error {
	switch config.(type) {
	case NodeConfig:
		if isError {
			return &InvalidConfigKindError{Reason: "NodeConfig used with an error source"}
		}
	case ErrorConfig:
		if !isError {
			return &InvalidConfigKindError{Reason: "ErrorConfig used with a node/START source"}
		}
	default:
		return &InvalidConfigKindError{Reason: fmt.Sprintf("unrecognized config type %T", config)}
	}
	return nil
}
