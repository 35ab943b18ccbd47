package graph

import (
	"context"
	"errors"
	"testing"
)

func runGraph(t *testing.T, g *Graph, initial map[string]any) map[string]any {
	t.Helper()
	final, _, err := g.Run(context.Background(), newMapState(initial), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return final.Dump()
}

func TestGraphRun(t *testing.T) {
	t.Run("runs a simple chain to completion", func(t *testing.T) {
		a := setKey("a", 1)
		b := setKey("b", 2)
		g, err := New(Start, []RawEdge{E(Start, a), E(a, b), E(b, End)})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		result := runGraph(t, g, nil)
		if result["a"] != 1 || result["b"] != 2 {
			t.Fatalf("unexpected result: %+v", result)
		}
	})

	t.Run("New rejects a malformed edge list eagerly", func(t *testing.T) {
		_, err := New(Start, []RawEdge{E(42, Start)})
		var invalid *InvalidEdgeError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected *InvalidEdgeError from New, got %v", err)
		}
	})

	t.Run("a sub-branch's writes are folded in when it joins", func(t *testing.T) {
		subNode := setKey("from_sub", true)
		sub := Sub(Start, []RawEdge{E(Start, subNode), E(subNode, End)}, End)
		a := setKey("a", 1)
		g, err := New(Start, []RawEdge{E(Start, []any{a, sub})})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		result := runGraph(t, g, nil)
		if result["a"] != 1 {
			t.Fatalf("expected the root branch's write, got %+v", result)
		}
		if result["from_sub"] != true {
			t.Fatalf("expected the sub-branch's write folded in at End, got %+v", result)
		}
	})

	t.Run("a sub-branch joining at a node is absorbed before that node runs", func(t *testing.T) {
		joinNode := setKey("after_join", true)
		subNode := setKey("from_sub", true)
		sub := Sub(Start, []RawEdge{E(Start, subNode), E(subNode, End)}, joinNode)
		g, err := New(Start, []RawEdge{E(Start, []any{sub, joinNode})})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		result := runGraph(t, g, nil)
		if result["from_sub"] != true || result["after_join"] != true {
			t.Fatalf("unexpected result: %+v", result)
		}
	})

	t.Run("WithHooks chains every registered implementation in order", func(t *testing.T) {
		var order []string
		first := &orderHooks{name: "first", order: &order}
		second := &orderHooks{name: "second", order: &order}
		a := setKey("a", 1)
		g, err := New(Start, []RawEdge{E(Start, a)}, WithHooks(first, second))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		runGraph(t, g, nil)
		if len(order) < 2 || order[0] != "first:graph_start" || order[1] != "second:graph_start" {
			t.Fatalf("expected first then second, got %+v", order)
		}
	})

	t.Run("WithPanicRecovery converts a panicking node into an ordinary error", func(t *testing.T) {
		panics := Func("panics", func(ctx context.Context, state State, shared Shared) error {
			panic("boom")
		})
		g, err := New(Start, []RawEdge{E(Start, panics)}, WithPanicRecovery(true))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		_, _, runErr := g.Run(context.Background(), newMapState(nil), nil)
		if runErr == nil {
			t.Fatal("expected the panic to surface as an error")
		}
	})

	t.Run("a fatal sub-branch error cancels a concurrently running sibling", func(t *testing.T) {
		started := make(chan struct{})
		observedCancel := make(chan struct{}, 1)
		blocker := Func("blocker", func(ctx context.Context, state State, shared Shared) error {
			close(started)
			<-ctx.Done()
			observedCancel <- struct{}{}
			return ctx.Err()
		})

		fails := failWith("fails", errors.New("fatal sub-branch error"))
		sub := Sub(Start, []RawEdge{E(Start, fails)}, End)

		g, err := New(Start, []RawEdge{E(Start, []any{blocker, sub})})
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		_, _, runErr := g.Run(context.Background(), newMapState(nil), nil)
		if runErr == nil {
			t.Fatal("expected the unmatched sub-branch error to surface from Run")
		}

		select {
		case <-started:
		default:
			t.Fatal("expected the sibling node to have started running")
		}

		select {
		case <-observedCancel:
		default:
			t.Fatal("expected the sibling's context to be cancelled by the sub-branch's fatal error")
		}
	})
}

type orderHooks struct {
	NoopHooks
	name  string
	order *[]string
}

func (h *orderHooks) OnGraphStart(ctx context.Context, state State, shared Shared) {
	*h.order = append(*h.order, h.name+":graph_start")
}
