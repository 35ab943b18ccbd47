package graph

import (
	"context"
	"errors"
	"testing"
)

// fakeValueError and fakeRuntimeError stand in for two distinct exception
// types an upstream node might raise, mirroring how error edges key on a
// concrete error type rather than a string code.
type fakeValueError struct{ msg string }

func (e *fakeValueError) Error() string { return e.msg }

type fakeRuntimeError struct{ msg string }

func (e *fakeRuntimeError) Error() string { return e.msg }

func incBy(n int) Node {
	return Func("inc", func(ctx context.Context, state State, shared Shared) error {
		m := state.(*mapState).m
		v, _ := m["value"].(int)
		m["value"] = v + n
		return nil
	})
}

func noop() Node {
	return Func("noop", func(ctx context.Context, state State, shared Shared) error { return nil })
}

func TestSeedScenarios(t *testing.T) {
	t.Run("S1 single node", func(t *testing.T) {
		inc := incBy(1)
		g, err := New(Start, []RawEdge{E(Start, inc), E(inc, End)})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		result := runGraph(t, g, map[string]any{"value": 0})
		if result["value"] != 1 {
			t.Fatalf("expected value=1, got %+v", result)
		}
	})

	t.Run("S2 chain of two", func(t *testing.T) {
		inc1 := incBy(1)
		inc2 := incBy(1)
		g, err := New(Start, []RawEdge{E(Start, inc1), E(inc1, inc2), E(inc2, End)})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		result := runGraph(t, g, map[string]any{"value": 0})
		if result["value"] != 2 {
			t.Fatalf("expected value=2, got %+v", result)
		}
	})

	t.Run("S3 non-conflicting fan-out", func(t *testing.T) {
		setV := setKey("value", 99)
		setName := setKey("name", "hello")
		join := noop()
		g, err := New(Start, []RawEdge{
			E(Start, []Node{setV, setName}),
			E([]Node{setV, setName}, join),
			E(join, End),
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		result := runGraph(t, g, map[string]any{"value": 0, "name": ""})
		if result["value"] != 99 || result["name"] != "hello" {
			t.Fatalf("expected {value:99 name:hello}, got %+v", result)
		}
	})

	t.Run("S4 conflict", func(t *testing.T) {
		set1 := setKey("value", 1)
		set2 := setKey("value", 2)
		g, err := New(Start, []RawEdge{E(Start, []Node{set1, set2})})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		_, _, runErr := g.Run(context.Background(), newMapState(nil), nil)
		var conflict *ConflictError
		if !errors.As(runErr, &conflict) {
			t.Fatalf("expected *ConflictError, got %v", runErr)
		}
	})

	t.Run("S5 error recovery by type", func(t *testing.T) {
		raise := failWith("raise", &fakeValueError{msg: "bad value"})
		recover_ := setKey("name", "recovered")
		g, err := New(Start, []RawEdge{
			E(Start, raise),
			E(ErrType[*fakeValueError](), recover_),
			E(recover_, End),
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		result := runGraph(t, g, nil)
		if result["name"] != "recovered" {
			t.Fatalf("expected {name:recovered}, got %+v", result)
		}
	})

	t.Run("S6 scoped recovery by (node, type)", func(t *testing.T) {
		raise := failWith("raise", &fakeRuntimeError{msg: "boom"})
		recover_ := setKey("name", "recovered")
		g, err := New(Start, []RawEdge{
			E(Start, raise),
			E(Scoped(raise, ErrType[*fakeRuntimeError]()), recover_),
			E(recover_, End),
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		result := runGraph(t, g, nil)
		if result["name"] != "recovered" {
			t.Fatalf("expected {name:recovered}, got %+v", result)
		}
	})

	t.Run("S7 unhandled error", func(t *testing.T) {
		raise := failWith("raise", errors.New("type error"))
		g, err := New(Start, []RawEdge{E(Start, raise)})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		_, _, runErr := g.Run(context.Background(), newMapState(nil), nil)
		var unhandled *UnhandledErrors
		if !errors.As(runErr, &unhandled) {
			t.Fatalf("expected *UnhandledErrors, got %v", runErr)
		}
	})

	t.Run("S8 instant edge", func(t *testing.T) {
		inc := incBy(1)
		n := noop()
		var observed [][]string
		recorder := &stepObserver{seen: &observed}
		g, err := New(Start, []RawEdge{
			E(Start, inc),
			EC(inc, n, NodeConfig{Instant: true}),
			E(n, End),
		}, WithHooks(recorder))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		result := runGraph(t, g, map[string]any{"value": 0})
		if result["value"] != 1 {
			t.Fatalf("expected value=1, got %+v", result)
		}
		found := false
		for _, names := range observed {
			if len(names) == 2 {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected one on_step_start call observing both nodes, got %+v", observed)
		}
	})

	t.Run("S9 dynamic router returns nil", func(t *testing.T) {
		inc := incBy(1)
		router := RouteFunc(func(ctx context.Context, state State, shared Shared) (any, error) {
			return nil, nil
		})
		g, err := New(Start, []RawEdge{E(Start, inc), E(inc, router)})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		result := runGraph(t, g, map[string]any{"value": 0})
		if result["value"] != 1 {
			t.Fatalf("expected value=1, got %+v", result)
		}
	})

	t.Run("S10 multi-source list", func(t *testing.T) {
		incA := incBy(1)
		n := noop()
		incB := incBy(1)
		join := noop()
		g, err := New(Start, []RawEdge{
			E(Start, []Node{incA, n}),
			E(n, incB),
			E([]Node{incA, incB}, join),
			E(join, End),
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		result := runGraph(t, g, map[string]any{"value": 0})
		if result["value"] != 2 {
			t.Fatalf("expected value=2, got %+v", result)
		}
	})
}

// stepObserver records the node names seen by each on_step_start call, so
// S8 can assert an instant edge's target joins the same step as its source.
type stepObserver struct {
	NoopHooks
	seen *[][]string
}

func (o *stepObserver) OnStepStart(ctx context.Context, state State, shared Shared, nextNodes []NextNode) {
	names := make([]string, len(nextNodes))
	for i, nn := range nextNodes {
		if s, ok := nn.Node.(interface{ String() string }); ok {
			names[i] = s.String()
		}
	}
	*o.seen = append(*o.seen, names)
}
