package graph

import "context"

// Hooks is the contractual set of observability/intervention callbacks at
// the lifecycle points spec.md §4.8 enumerates. Every method is optional:
// embed NoopHooks to implement only the ones you need. All hooks in a
// registered chain are awaited sequentially, in registration order
// (spec.md §4.8); hooks must not mutate state/shared except intentionally,
// and the engine never re-validates state after a hook call.
//
// Concrete hook implementations (loggers, CLIs, terminal renderers, REPL
// debuggers) are external collaborators, not this package's concern — only
// this contract, and the Recorder and line-writing LogRecorder in
// graph/emit, live here (spec.md §1).
type Hooks interface {
	OnGraphStart(ctx context.Context, state State, shared Shared)
	OnGraphEnd(ctx context.Context, state State, shared Shared)

	OnStepStart(ctx context.Context, state State, shared Shared, nextNodes []NextNode)
	OnStepEnd(ctx context.Context, state State, shared Shared, nextNodes []NextNode)

	OnSpawnBranchStart(ctx context.Context, state State, shared Shared, container *BranchContainer)
	OnSpawnBranchEnd(ctx context.Context, state State, shared Shared, branch *Branch, trigger *NextNode)

	OnMergeStart(ctx context.Context, state State, resultStates []State, changes []ChangeSet)
	OnMergeConflict(ctx context.Context, state State, changes []ChangeSet, conflicts map[string][]Change)
	OnMergeEnd(ctx context.Context, state State, resultStates []State, changes []ChangeSet, merged State)

	// OnError is the only point at which a hook may absorb an error:
	// returning nil absorbs it, returning a non-nil error (the same one or
	// a replacement) lets it continue propagating (spec.md §4.8).
	OnError(ctx context.Context, err error, state State, shared Shared) error
}

// NoopHooks implements Hooks with every callback a no-op (OnError returns
// its input unchanged). Embed it in a partial Hooks implementation to avoid
// writing out every method.
type NoopHooks struct{}

func (NoopHooks) OnGraphStart(context.Context, State, Shared) {}
func (NoopHooks) OnGraphEnd(context.Context, State, Shared)   {}

func (NoopHooks) OnStepStart(context.Context, State, Shared, []NextNode) {}
func (NoopHooks) OnStepEnd(context.Context, State, Shared, []NextNode)   {}

func (NoopHooks) OnSpawnBranchStart(context.Context, State, Shared, *BranchContainer) {}
func (NoopHooks) OnSpawnBranchEnd(context.Context, State, Shared, *Branch, *NextNode) {}

func (NoopHooks) OnMergeStart(context.Context, State, []State, []ChangeSet) {}
func (NoopHooks) OnMergeConflict(context.Context, State, []ChangeSet, map[string][]Change) {
}
func (NoopHooks) OnMergeEnd(context.Context, State, []State, []ChangeSet, State) {}

func (NoopHooks) OnError(_ context.Context, err error, _ State, _ Shared) error {
	return err
}

// multiHooks awaits every registered Hooks implementation in registration
// order, chaining OnError's replace-or-absorb result into the next hook
// (spec.md §4.8 "all awaited sequentially in registration order").
type multiHooks []Hooks

func (m multiHooks) OnGraphStart(ctx context.Context, s State, sh Shared) {
	for _, h := range m {
		h.OnGraphStart(ctx, s, sh)
	}
}

func (m multiHooks) OnGraphEnd(ctx context.Context, s State, sh Shared) {
	for _, h := range m {
		h.OnGraphEnd(ctx, s, sh)
	}
}

func (m multiHooks) OnStepStart(ctx context.Context, s State, sh Shared, nn []NextNode) {
	for _, h := range m {
		h.OnStepStart(ctx, s, sh, nn)
	}
}

func (m multiHooks) OnStepEnd(ctx context.Context, s State, sh Shared, nn []NextNode) {
	for _, h := range m {
		h.OnStepEnd(ctx, s, sh, nn)
	}
}

func (m multiHooks) OnSpawnBranchStart(ctx context.Context, s State, sh Shared, c *BranchContainer) {
	for _, h := range m {
		h.OnSpawnBranchStart(ctx, s, sh, c)
	}
}

func (m multiHooks) OnSpawnBranchEnd(ctx context.Context, s State, sh Shared, b *Branch, trigger *NextNode) {
	for _, h := range m {
		h.OnSpawnBranchEnd(ctx, s, sh, b, trigger)
	}
}

func (m multiHooks) OnMergeStart(ctx context.Context, s State, results []State, changes []ChangeSet) {
	for _, h := range m {
		h.OnMergeStart(ctx, s, results, changes)
	}
}

func (m multiHooks) OnMergeConflict(ctx context.Context, s State, changes []ChangeSet, conflicts map[string][]Change) {
	for _, h := range m {
		h.OnMergeConflict(ctx, s, changes, conflicts)
	}
}

func (m multiHooks) OnMergeEnd(ctx context.Context, s State, results []State, changes []ChangeSet, merged State) {
	for _, h := range m {
		h.OnMergeEnd(ctx, s, results, changes, merged)
	}
}

func (m multiHooks) OnError(ctx context.Context, err error, s State, sh Shared) error {
	for _, h := range m {
		if err == nil {
			return nil
		}
		err = h.OnError(ctx, err, s, sh)
	}
	return err
}
