package graph

import (
	"context"
	"errors"
	"testing"
)

type fakeValidationError struct{ msg string }

func (e *fakeValidationError) Error() string { return e.msg }

func TestSourceList(t *testing.T) {
	a := Func("a", nil)
	b := Func("b", nil)

	t.Run("single node source", func(t *testing.T) {
		out, isError, err := sourceList(a)
		if err != nil || isError || len(out) != 1 || out[0] != a {
			t.Fatalf("unexpected result: %+v %v %v", out, isError, err)
		}
	})

	t.Run("Start is a valid source", func(t *testing.T) {
		out, isError, err := sourceList(Start)
		if err != nil || isError || len(out) != 1 || out[0] != Start {
			t.Fatalf("unexpected result: %+v %v %v", out, isError, err)
		}
	})

	t.Run("[]Node expands in order", func(t *testing.T) {
		out, isError, err := sourceList([]Node{a, b})
		if err != nil || isError {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(out) != 2 || out[0] != a || out[1] != b {
			t.Fatalf("unexpected result: %+v", out)
		}
	})

	t.Run("an error type is a single-error-source", func(t *testing.T) {
		out, isError, err := sourceList(ErrType[*fakeValidationError]())
		if err != nil || !isError || len(out) != 1 {
			t.Fatalf("unexpected result: %+v %v %v", out, isError, err)
		}
	})

	t.Run("Scoped pairs a node with an error type", func(t *testing.T) {
		key := Scoped(a, ErrType[*fakeValidationError]())
		out, isError, err := sourceList(key)
		if err != nil || !isError || len(out) != 1 || out[0] != key {
			t.Fatalf("unexpected result: %+v %v %v", out, isError, err)
		}
	})

	t.Run("ScopedAll expands every node with the same error type", func(t *testing.T) {
		keys := ScopedAll([]Node{a, b}, ErrType[*fakeValidationError]())
		if len(keys) != 2 || keys[0].Node != a || keys[1].Node != b {
			t.Fatalf("unexpected result: %+v", keys)
		}
	})

	t.Run("unrecognized source is an InvalidEdgeError", func(t *testing.T) {
		_, _, err := sourceList(42)
		var invalid *InvalidEdgeError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected *InvalidEdgeError, got %v", err)
		}
	})
}

func TestClassifyNext(t *testing.T) {
	a := Func("a", nil)

	t.Run("nil next", func(t *testing.T) {
		nd, err := classifyNext(nil)
		if err != nil || nd.kind != nextKindStatic || len(nd.static) != 0 {
			t.Fatalf("unexpected result: %+v %v", nd, err)
		}
	})

	t.Run("End is a valid static next", func(t *testing.T) {
		nd, err := classifyNext(End)
		if err != nil || nd.kind != nextKindStatic || nd.static[0] != End {
			t.Fatalf("unexpected result: %+v %v", nd, err)
		}
	})

	t.Run("a Node is a single static next", func(t *testing.T) {
		nd, err := classifyNext(a)
		if err != nil || nd.kind != nextKindStatic || nd.static[0] != a {
			t.Fatalf("unexpected result: %+v %v", nd, err)
		}
	})

	t.Run("a BranchContainer classifies as a branch spawn", func(t *testing.T) {
		c := Sub(a, nil, End)
		nd, err := classifyNext(c)
		if err != nil || nd.kind != nextKindBranch || nd.branch != c {
			t.Fatalf("unexpected result: %+v %v", nd, err)
		}
	})

	t.Run("a RouteFunc classifies as dynamic", func(t *testing.T) {
		rf := RouteFunc(func(ctx context.Context, state State, shared Shared) (any, error) {
			return nil, nil
		})
		nd, err := classifyNext(rf)
		if err != nil || nd.kind != nextKindDynamic || nd.router == nil {
			t.Fatalf("unexpected result: %+v %v", nd, err)
		}
	})

	t.Run("unrecognized next is an InvalidEdgeError", func(t *testing.T) {
		_, err := classifyNext(42)
		var invalid *InvalidEdgeError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected *InvalidEdgeError, got %v", err)
		}
	})

	t.Run("a non-End sentinel is rejected", func(t *testing.T) {
		_, err := classifyNext(Start)
		var invalid *InvalidEdgeError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected *InvalidEdgeError for Start as a next target, got %v", err)
		}
	})
}

func TestConfigKindChecking(t *testing.T) {
	t.Run("NodeConfig paired with error source is InvalidConfigKindError", func(t *testing.T) {
		err := checkConfigKind(NodeConfig{}, true)
		var invalid *InvalidConfigKindError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected *InvalidConfigKindError, got %v", err)
		}
	})

	t.Run("ErrorConfig paired with node source is InvalidConfigKindError", func(t *testing.T) {
		err := checkConfigKind(ErrorConfig{}, false)
		var invalid *InvalidConfigKindError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected *InvalidConfigKindError, got %v", err)
		}
	})

	t.Run("matching kinds pass", func(t *testing.T) {
		if err := checkConfigKind(NodeConfig{}, false); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if err := checkConfigKind(ErrorConfig{}, true); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
