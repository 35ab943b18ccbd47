package graph

import (
	"errors"
	"testing"
)

func TestNewBranchIndex(t *testing.T) {
	a := Func("a", nil)
	b := Func("b", nil)

	t.Run("pair edge registers under its source", func(t *testing.T) {
		idx, err := newBranchIndex([]RawEdge{E(Start, a), E(a, b)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(idx.edgeIndex[Start]) != 1 || idx.edgeIndex[Start][0].Next.static[0] != a {
			t.Fatalf("unexpected Start entries: %+v", idx.edgeIndex[Start])
		}
		if len(idx.edgeIndex[a]) != 1 || idx.edgeIndex[a][0].Next.static[0] != b {
			t.Fatalf("unexpected a entries: %+v", idx.edgeIndex[a])
		}
	})

	t.Run("sequence source shares one entry across every element", func(t *testing.T) {
		idx, err := newBranchIndex([]RawEdge{E([]Node{a, b}, End)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(idx.edgeIndex[a]) != 1 || len(idx.edgeIndex[b]) != 1 {
			t.Fatalf("expected one entry under each source")
		}
		if idx.edgeIndex[a][0] != idx.edgeIndex[b][0] {
			t.Error("expected the same *Entry registered under both sources")
		}
	})

	t.Run("chain expands into pair edges with a shared index", func(t *testing.T) {
		c := Func("c", nil)
		idx, err := newBranchIndex([]RawEdge{Chain(Start, []Node{a, b, c}, End)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(idx.edgeIndex[Start]) != 1 || idx.edgeIndex[Start][0].Next.static[0] != a {
			t.Fatalf("unexpected Start -> a link: %+v", idx.edgeIndex[Start])
		}
		if len(idx.edgeIndex[a]) != 1 || idx.edgeIndex[a][0].Next.static[0] != b {
			t.Fatalf("unexpected a -> b link: %+v", idx.edgeIndex[a])
		}
		if len(idx.edgeIndex[b]) != 1 || idx.edgeIndex[b][0].Next.static[0] != c {
			t.Fatalf("unexpected b -> c link: %+v", idx.edgeIndex[b])
		}
		if len(idx.edgeIndex[c]) != 1 || idx.edgeIndex[c][0].Next.static[0] != End {
			t.Fatalf("unexpected c -> End link: %+v", idx.edgeIndex[c])
		}
	})

	t.Run("chain with a nil tail leaves the last node without an edge", func(t *testing.T) {
		idx, err := newBranchIndex([]RawEdge{Chain(Start, []Node{a, b}, nil)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(idx.edgeIndex[b]) != 0 {
			t.Errorf("expected no edge from the chain's tail node, got %+v", idx.edgeIndex[b])
		}
	})

	t.Run("error source registers under errorEdgeIndex", func(t *testing.T) {
		errType := ErrType[*fakeValidationError]()
		idx, err := newBranchIndex([]RawEdge{E(errType, a)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		key := ErrorKey{Type: errType}
		if len(idx.errorEdgeIndex[key]) != 1 {
			t.Fatalf("expected 1 error entry, got %+v", idx.errorEdgeIndex)
		}
	})

	t.Run("NodeConfig on an error source is InvalidConfigKindError", func(t *testing.T) {
		errType := ErrType[*fakeValidationError]()
		_, err := newBranchIndex([]RawEdge{EC(errType, a, NodeConfig{})})
		var invalid *InvalidConfigKindError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected *InvalidConfigKindError, got %v", err)
		}
	})

	t.Run("node-tuple chain cannot start from an error source", func(t *testing.T) {
		errType := ErrType[*fakeValidationError]()
		_, err := newBranchIndex([]RawEdge{Chain(errType, []Node{a}, nil)})
		var invalid *InvalidEdgeError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected *InvalidEdgeError, got %v", err)
		}
	})
}
