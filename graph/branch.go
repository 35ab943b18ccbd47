package graph

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Branch is the runtime object driving one concurrent unit of execution:
// its container's routing index, a channel delivering its eventual result
// changeset, and a handle back to the orchestrator for spawning further
// sub-branches and consuming join waiters (spec.md §3 "Branch").
type Branch struct {
	id        int
	container *BranchContainer
	idx       *branchIndex
	startSrcs []any

	orch          spawner
	resultCh      chan branchResult
	recoverPanics bool
}

type branchResult struct {
	changes []PathChange
	err     error
}

// spawner is the subset of the orchestrator (C7) a branch needs at runtime:
// creating new sub-branches, consuming waiters registered to join at a
// node, and reaching the graph's hook chain.
type spawner interface {
	spawnBranch(ctx context.Context, state State, shared Shared, container *BranchContainer, reachedBy *Entry)
	takeJoins(target any) []*Branch
	hooks() Hooks
}

func newBranch(id int, container *BranchContainer, orch spawner) (*Branch, error) {
	idx, err := newBranchIndex(container.Edges)
	if err != nil {
		return nil, err
	}
	sources, isError, err := sourceList(container.Start)
	if err != nil {
		return nil, err
	}
	if isError {
		return nil, &InvalidEdgeError{Reason: "branch start source cannot be an error source"}
	}
	return &Branch{
		id:        id,
		container: container,
		idx:       idx,
		startSrcs: sources,
		orch:      orch,
		resultCh:  make(chan branchResult, 1),
	}, nil
}

// start runs the branch to completion in the caller's goroutine, delivers
// its result on the channel wait reads from, and returns the same error so
// the caller's errgroup observes a fatal branch failure instead of treating
// every branch task as unconditionally successful (spec.md §5: "a fatal
// error inside a fan-out cancels its sibling tasks in the same task
// group"). recoverPanics converts a panicking node into an ordinary error
// rather than crashing the process, per the WithPanicRecovery option
// (spec.md's engine core makes no mention of recovery; this is ambient
// hardening around it). Recovery has to reach every fan-out goroutine step
// spawns per node, not just this call's own stack, since a panic never
// crosses a goroutine boundary on its own — recoverPanics is stashed on the
// Branch so step can wrap each node's goroutine individually.
func (b *Branch) start(ctx context.Context, state State, shared Shared, recoverPanics bool) error {
	b.recoverPanics = recoverPanics
	changes, err := b.runRecovered(ctx, state, shared)
	b.resultCh <- branchResult{changes: changes, err: err}
	return err
}

func (b *Branch) runRecovered(ctx context.Context, state State, shared Shared) (changes []PathChange, err error) {
	if b.recoverPanics {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("graph: panic in branch: %v", r)
			}
		}()
	}
	return b.Run(ctx, state, shared)
}

// wait blocks for this branch's result, consuming it exactly once (the
// join-registry's ownership invariant: each waiting sub-branch is consumed
// by exactly one branch that reaches its join target — spec.md §3
// invariant 5).
func (b *Branch) wait(ctx context.Context) ([]PathChange, error) {
	select {
	case res := <-b.resultCh:
		return res.changes, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run drives the branch's state machine to termination: resolve the first
// step from the start source, loop steps while any next nodes remain, and
// diff the terminal state against the initial snapshot to produce the
// branch's result changeset (spec.md §4.6).
func (b *Branch) Run(ctx context.Context, state State, shared Shared) ([]PathChange, error) {
	hooks := b.orch.hooks()
	initialDump := state.Dump()

	res, err := resolveNext(ctx, state, shared, b.startSrcs, b.idx)
	cur := state
	if err != nil {
		if absorbed := hooks.OnError(ctx, err, cur, shared); absorbed != nil {
			return nil, absorbed
		}
		res = resolution{}
	}
	b.dispatchSpawns(ctx, cur, shared, res.spawns)
	nextNodes := res.nextNodes

	for len(nextNodes) > 0 {
		newState, step, stepErr := b.step(ctx, hooks, cur, shared, nextNodes)
		if stepErr != nil {
			if absorbed := hooks.OnError(ctx, stepErr, cur, shared); absorbed != nil {
				return nil, absorbed
			}
			break
		}
		cur = newState
		b.dispatchSpawns(ctx, cur, shared, step.spawns)
		nextNodes = step.nextNodes
	}

	final := Diff(initialDump, cur.Dump())
	return final.Entries(), nil
}

func (b *Branch) dispatchSpawns(ctx context.Context, state State, shared Shared, spawns []*spawnRequest) {
	for _, sp := range spawns {
		b.orch.spawnBranch(ctx, state.Clone(), shared, sp.Container, sp.ReachedBy)
	}
}

// step runs one iteration of the branch's main loop: join, fan out, merge,
// and resolve the following step's targets (or route a raised error group
// instead). Any error returned here is "uncaught": the caller offers it to
// on_error hooks (spec.md §4.6, §7).
func (b *Branch) step(ctx context.Context, hooks Hooks, state State, shared Shared, nextNodes []NextNode) (State, resolution, error) {
	hooks.OnStepStart(ctx, state, shared, nextNodes)

	joined, err := b.runJoins(ctx, state, nextNodes)
	if err != nil {
		return nil, resolution{}, err
	}

	baseDump := cloneDump(joined.Dump())
	snapshots := make([]State, len(nextNodes))
	nodeErrs := make([]*NodeError, len(nextNodes))

	g, gctx := errgroup.WithContext(ctx)
	for i, nn := range nextNodes {
		i, nn := i, nn
		snap := joined.Clone()
		snapshots[i] = snap
		g.Go(func() (err error) {
			if b.recoverPanics {
				defer func() {
					if r := recover(); r != nil {
						ne := &NodeError{Node: nn.Node, Cause: fmt.Errorf("graph: panic in node: %v", r), ReachedBy: nn.ReachedBy}
						nodeErrs[i] = ne
						err = ne
					}
				}()
			}
			if runErr := nn.Node.Run(gctx, snap, shared); runErr != nil {
				ne := &NodeError{Node: nn.Node, Cause: runErr, ReachedBy: nn.ReachedBy}
				nodeErrs[i] = ne
				return ne
			}
			return nil
		})
	}
	_ = g.Wait()

	var group []*NodeError
	for _, ne := range nodeErrs {
		if ne != nil {
			group = append(group, ne)
		}
	}
	if len(group) > 0 {
		res, rerr := routeErrors(ctx, joined, shared, group, b.idx)
		if rerr != nil {
			return nil, resolution{}, rerr
		}
		hooks.OnStepEnd(ctx, joined, shared, res.nextNodes)
		return joined, res, nil
	}

	changesets := make([]ChangeSet, len(snapshots))
	for i, snap := range snapshots {
		changesets[i] = Diff(baseDump, snap.Dump())
	}
	hooks.OnMergeStart(ctx, joined, snapshots, changesets)

	conflicts := FindConflicts(changesets)
	if len(conflicts) > 0 {
		hooks.OnMergeConflict(ctx, joined, changesets, conflicts)
		return nil, resolution{}, &ConflictError{Conflicts: conflicts, Paths: conflictPaths(changesets)}
	}

	merged := cloneDump(baseDump)
	for _, cs := range changesets {
		if aerr := Apply(merged, cs.Entries()); aerr != nil {
			return nil, resolution{}, aerr
		}
	}
	newState, verr := joined.Validate(merged)
	if verr != nil {
		return nil, resolution{}, verr
	}
	hooks.OnMergeEnd(ctx, joined, snapshots, changesets, newState)

	nodes := make([]any, len(nextNodes))
	for i, nn := range nextNodes {
		nodes[i] = nn.Node
	}
	res, rerr := resolveNext(ctx, newState, shared, nodes, b.idx)
	if rerr != nil {
		return nil, resolution{}, rerr
	}
	hooks.OnStepEnd(ctx, newState, shared, res.nextNodes)
	return newState, res, nil
}

// runJoins absorbs every sub-branch currently registered to join at one of
// nextNodes, awaiting each and applying its changeset in registration
// order before the step's own join target runs (spec.md §4.6 join-phase).
func (b *Branch) runJoins(ctx context.Context, state State, nextNodes []NextNode) (State, error) {
	cur := state
	for _, nn := range nextNodes {
		waiters := b.orch.takeJoins(nn.Node)
		for _, wb := range waiters {
			changes, err := wb.wait(ctx)
			if err != nil {
				return nil, err
			}
			dump := cloneDump(cur.Dump())
			if err := Apply(dump, changes); err != nil {
				return nil, err
			}
			validated, err := cur.Validate(dump)
			if err != nil {
				return nil, err
			}
			cur = validated
		}
	}
	return cur, nil
}

// cloneDump deep-copies a dumped state mapping down through nested maps so
// Apply never mutates a mapping a State implementation might still hold a
// reference to.
func cloneDump(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneDump(nested)
		} else {
			out[k] = v
		}
	}
	return out
}
