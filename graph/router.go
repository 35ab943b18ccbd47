package graph

import (
	"context"
	"errors"
	"reflect"
	"sort"
)

// routeErrors matches a group of node errors raised during one step against
// the branch's error-edge index and produces recovery targets, or reports
// every unmatched error as unhandled (spec.md §4.5).
//
// An error edge is eligible to handle an error only if its Entry.Index is
// strictly greater than the index of the entry that routed to the failing
// node (spec.md §4.5d, testable property 6) — the error-raising node's
// NodeError.ReachedBy.Index. Eligible entries matching the error are walked
// in ascending index order; the first one consumes the error unless its
// ErrorConfig.Propagate is true, in which case later matching entries also
// fire.
func routeErrors(ctx context.Context, state State, shared Shared, group []*NodeError, idx *branchIndex) (resolution, error) {
	var res resolution
	var unhandled []*NodeError

	for _, ne := range group {
		if ne.ReachedBy == nil {
			unhandled = append(unhandled, ne)
			continue
		}

		matched := matchingEntries(ne, idx)
		sort.Slice(matched, func(i, j int) bool { return matched[i].Index < matched[j].Index })

		consumed := false
		for _, entry := range matched {
			if entry.Index <= ne.ReachedBy.Index {
				continue
			}
			targets, branches, err := resolveEntryTargets(ctx, state, shared, entry)
			if err != nil {
				return resolution{}, err
			}
			for _, b := range branches {
				res.spawns = append(res.spawns, &spawnRequest{Container: b, ReachedBy: entry})
			}
			for _, t := range targets {
				if t == End {
					continue
				}
				res.nextNodes = append(res.nextNodes, NextNode{Node: t.(Node), ReachedBy: entry})
			}
			consumed = true

			propagate := false
			if cfg, ok := entry.Config.(ErrorConfig); ok {
				propagate = cfg.Propagate
			}
			if !propagate {
				break
			}
		}

		if !consumed {
			unhandled = append(unhandled, ne)
		}
	}

	if len(unhandled) > 0 {
		return resolution{}, &UnhandledErrors{Errors: unhandled}
	}
	return res, nil
}

// matchingEntries collects every error-entry whose key matches ne: an
// unscoped exception-type key matches any node, a (node, type) key matches
// only when the originating node is that node (spec.md §4.5b).
func matchingEntries(ne *NodeError, idx *branchIndex) []*Entry {
	var out []*Entry
	for key, entries := range idx.errorEdgeIndex {
		if key.Node != nil && key.Node != ne.Node {
			continue
		}
		if !matchesErrorType(key.Type, ne.Cause) {
			continue
		}
		out = append(out, entries...)
	}
	return out
}

// matchesErrorType reports whether err is an "instance of" t: for an
// interface type, whether err's dynamic type implements it; for a concrete
// type, whether err or anything in its Unwrap chain has exactly that type
// (the Go analogue of Python's isinstance walking a class hierarchy, via
// errors.As's unwrap chain instead of inheritance).
func matchesErrorType(t reflect.Type, err error) bool {
	if t == nil || err == nil {
		return false
	}
	if t.Kind() == reflect.Interface {
		return reflect.TypeOf(err).Implements(t)
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if reflect.TypeOf(e) == t {
			return true
		}
	}
	return false
}
