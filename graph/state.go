// Package graph provides the core execution engine for a structured
// concurrent graph executor: a library for defining computations as a
// directed graph of user nodes and running them with well-defined
// parallel-branch, merge, error-routing, and sub-branch-join semantics.
package graph

import (
	"fmt"
	"reflect"
)

// State is the contract a workflow's state value must satisfy.
//
// The engine never inspects state fields directly: it only ever clones a
// state, dumps it to a plain nested mapping to diff/merge, and rebuilds a
// validated state value from a merged mapping. Concrete state types (the
// "user-facing state base class" spec.md §1 calls out as an external
// collaborator) live entirely outside this package.
//
// Implementations must satisfy: Dump(Clone()) equals Dump() at the moment
// of cloning, and Validate(m) followed by Dump() round-trips to m for any m
// produced by a legal sequence of Diff/Apply operations.
type State interface {
	// Clone returns a deep copy. The engine calls this once per fan-out
	// task to give every concurrently-running node its own snapshot.
	Clone() State

	// Dump serializes the state to a nested mapping of string keys to
	// values, suitable for Diff/Apply. Maps, slices and scalars nest
	// freely; map values that are themselves State are not expected —
	// Dump should already have flattened to plain data.
	Dump() map[string]any

	// Validate rebuilds a state value from a mapping produced by merging
	// changesets over a prior Dump(). It returns an error if the mapping
	// is not shaped like this state's type.
	Validate(m map[string]any) (State, error)
}

// Shared is the mapping-like object passed by reference to every node and
// hook in a run. The engine never clones or diffs it; concurrent nodes that
// touch it are responsible for their own synchronization (spec.md §5).
type Shared interface{}

// ChangeType classifies a single Change.
type ChangeType int

const (
	// Added means the path existed in the new mapping but not the old.
	Added ChangeType = iota
	// Removed means the path existed in the old mapping but not the new.
	Removed
	// Updated means the path existed in both but the values differ.
	Updated
)

func (t ChangeType) String() string {
	switch t {
	case Added:
		return "ADDED"
	case Removed:
		return "REMOVED"
	case Updated:
		return "UPDATED"
	default:
		return "UNKNOWN"
	}
}

// Change records a single structural modification to a nested mapping.
type Change struct {
	Type ChangeType
	Old  any
	New  any
}

// Path identifies a leaf inside a nested mapping. The root path (a scalar
// diff at the top level) is the empty Path.
type Path []string

func (p Path) key() string {
	s := ""
	for i, k := range p {
		if i > 0 {
			s += "\x00"
		}
		s += k
	}
	return s
}

func (p Path) clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

func (p Path) append(k string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, k)
}

// ChangeSet is the result of a single Diff call: every Path that changed,
// mapped to the Change observed there.
type ChangeSet map[string]pathChange

type pathChange struct {
	path   Path
	change Change
}

func newChangeSet() ChangeSet {
	return make(ChangeSet)
}

func (cs ChangeSet) set(p Path, c Change) {
	cs[p.key()] = pathChange{path: p.clone(), change: c}
}

// Entries returns the set's (Path, Change) pairs. Iteration order over a Go
// map is not stable across runs; the merge phase never relies on it —
// spec.md §4.1 says application order is "defined by the caller's iteration
// over the changeset list", and the engine supplies that list itself
// (ordered by fan-out schedule), not by iterating a single ChangeSet.
func (cs ChangeSet) Entries() []PathChange {
	out := make([]PathChange, 0, len(cs))
	for _, pc := range cs {
		out = append(out, PathChange{Path: pc.path, Change: pc.change})
	}
	return out
}

// PathChange pairs a Path with the Change recorded at it.
type PathChange struct {
	Path   Path
	Change Change
}

// Diff computes the structural difference between two nested mappings.
//
// For every key present in either mapping, recursion proceeds key-wise: a
// key missing from new is REMOVED, a key missing from old is ADDED, a key
// present in both recurses further if both values are maps, otherwise the
// values are compared directly and an UPDATED entry is emitted when they
// differ. Equal scalars emit nothing. Diffing two non-map, unequal values
// at the top level emits a single UPDATED entry under the empty Path
// (spec.md §4.1, testable property 4).
func Diff(old, new any) ChangeSet {
	cs := newChangeSet()
	diffInto(cs, nil, old, new)
	return cs
}

func diffInto(cs ChangeSet, path Path, old, new any) {
	oldMap, oldIsMap := asMap(old)
	newMap, newIsMap := asMap(new)

	if oldIsMap && newIsMap {
		keys := make(map[string]struct{}, len(oldMap)+len(newMap))
		for k := range oldMap {
			keys[k] = struct{}{}
		}
		for k := range newMap {
			keys[k] = struct{}{}
		}
		for k := range keys {
			ov, oOK := oldMap[k]
			nv, nOK := newMap[k]
			childPath := path.append(k)
			switch {
			case oOK && !nOK:
				cs.set(childPath, Change{Type: Removed, Old: ov})
			case !oOK && nOK:
				cs.set(childPath, Change{Type: Added, New: nv})
			default:
				diffInto(cs, childPath, ov, nv)
			}
		}
		return
	}

	if !valuesEqual(old, new) {
		cs.set(path, Change{Type: Updated, Old: old, New: new})
	}
}

// asMap reports whether v is a map[string]any (the only mapping shape Diff
// recurses into) and returns it.
func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// FindConflicts reports every Path that appears in more than one changeset
// in sets, preserving all conflicting Changes in input order (spec.md §4.1,
// testable property 3).
//
// Conflict semantics are path-exact, not parent-inclusive: a write at
// ("a",) and a write at ("a","b") are disjoint paths and never conflict,
// even though one is logically nested under the other. This mirrors a
// documented ambiguity in the source design (spec.md §9) rather than
// resolving it.
func FindConflicts(sets []ChangeSet) map[string][]Change {
	seen := make(map[string][]Change)
	for _, cs := range sets {
		for key, pc := range cs {
			seen[key] = append(seen[key], pc.change)
		}
	}
	conflicts := make(map[string][]Change)
	for key, changes := range seen {
		if len(changes) > 1 {
			conflicts[key] = changes
		}
	}
	return conflicts
}

// conflictPaths recovers the real Path behind each conflicting key, for
// callers (ConflictError) that need to present Paths rather than opaque
// internal keys.
func conflictPaths(sets []ChangeSet) map[string]Path {
	paths := make(map[string]Path)
	for _, cs := range sets {
		for key, pc := range cs {
			paths[key] = pc.path
		}
	}
	return paths
}

// Apply mutates target (typically a fresh Clone().Dump()) according to
// changes, creating intermediate empty mappings for missing path
// components as it descends. A REMOVED entry whose leaf key is absent in
// target is a MissingKeyOnRemove error (spec.md §4.1, §7).
func Apply(target map[string]any, changes []PathChange) error {
	for _, pc := range changes {
		if err := applyOne(target, pc.Path, pc.Change); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(target map[string]any, path Path, c Change) error {
	if len(path) == 0 {
		return nil
	}
	m := target
	for _, k := range path[:len(path)-1] {
		next, ok := m[k]
		if !ok {
			fresh := make(map[string]any)
			m[k] = fresh
			m = fresh
			continue
		}
		nextMap, ok := next.(map[string]any)
		if !ok {
			fresh := make(map[string]any)
			m[k] = fresh
			m = fresh
			continue
		}
		m = nextMap
	}
	leaf := path[len(path)-1]
	switch c.Type {
	case Added, Updated:
		m[leaf] = c.New
	case Removed:
		if _, ok := m[leaf]; !ok {
			return &ApplyError{Path: path}
		}
		delete(m, leaf)
	default:
		return fmt.Errorf("graph: unknown change type %v", c.Type)
	}
	return nil
}
