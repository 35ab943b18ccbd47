package graph

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Graph is the orchestrator (C7): it owns the task group scoped to one Run
// invocation, the arena of live Branch instances, and the join-registry of
// sub-branches waiting to be absorbed at a node (spec.md §4.7, §9
// "Sub-branch recursion").
type Graph struct {
	root *BranchContainer
	opts graphOptions

	mu       sync.Mutex
	joins    map[any][]*Branch
	nextID   int
	branches map[int]*Branch

	// group is the task group scoped to the in-flight Run call. It is set
	// at the start of Run and used by spawnBranch to launch sub-branches
	// as siblings of the root branch, so a fatal error in any of them
	// cancels the others through the same errgroup-derived context
	// (spec.md §5 cancellation).
	group *errgroup.Group
}

// New constructs a Graph rooted at the given start source and edge
// sequence, joining back at End (spec.md §3: "the outermost graph is
// itself a BranchContainer with start=START and join=END"). Construction
// eagerly indexes the root container; a malformed edge list fails here
// rather than at Run time (spec.md §4.3 rule 4, §7 InvalidEdge).
func New(start any, edges []RawEdge, options ...Option) (*Graph, error) {
	if _, err := newBranchIndex(edges); err != nil {
		return nil, err
	}

	opts := defaultGraphOptions()
	for _, opt := range options {
		opt(&opts)
	}

	return &Graph{
		root:     &BranchContainer{Start: start, Edges: edges, Join: End},
		opts:     opts,
		joins:    make(map[any][]*Branch),
		branches: make(map[int]*Branch),
	}, nil
}

// Run executes the graph: spawn the branch rooted at START inside a task
// group, await every live branch the run transitively spawns, then join
// every branch registered to finish at End into the final state
// (spec.md §4.7, §6.2).
func (g *Graph) Run(ctx context.Context, state State, shared Shared) (State, Shared, error) {
	g.opts.hooks.OnGraphStart(ctx, state, shared)

	group, gctx := errgroup.WithContext(ctx)
	g.group = group

	root, err := newBranch(g.nextBranchID(), g.root, g)
	if err != nil {
		return nil, shared, err
	}
	g.trackBranch(root)
	g.registerJoin(End, root)

	group.Go(func() error {
		return root.start(gctx, state, shared, g.opts.recoverPanics)
	})

	if err := group.Wait(); err != nil {
		return nil, shared, err
	}

	final, err := g.joinAtEnd(gctx, state, shared)
	if err != nil {
		return nil, shared, err
	}

	g.opts.hooks.OnGraphEnd(gctx, final, shared)
	return final, shared, nil
}

// joinAtEnd awaits every branch registered to join at End — the top-level
// run's own root branch plus any sub-branch whose container.Join is
// End — applying each one's changeset to a fresh mapping in registration
// order, then revalidates the merged mapping into a new State
// (spec.md §4.7).
func (g *Graph) joinAtEnd(ctx context.Context, seed State, shared Shared) (State, error) {
	waiters := g.takeJoins(End)
	merged := cloneDump(seed.Dump())
	for _, b := range waiters {
		changes, err := b.wait(ctx)
		if err != nil {
			return nil, err
		}
		if err := Apply(merged, changes); err != nil {
			return nil, err
		}
	}
	return seed.Validate(merged)
}

// spawnBranch implements spawner: it indexes container, registers the new
// branch under its join target immediately (spec.md §4.6 "registers it
// under its join target"), and launches it as a task in the run's task
// group so a failing sub-branch still cancels its siblings through the
// same errgroup the root branch runs under (spec.md §5 cancellation).
func (g *Graph) spawnBranch(ctx context.Context, state State, shared Shared, container *BranchContainer, reachedBy *Entry) {
	b, err := newBranch(g.nextBranchID(), container, g)
	if err != nil {
		// A malformed sub-branch container is reported through the
		// offending branch's own result slot, so the eventual join still
		// surfaces it as an ordinary error rather than dropping it
		// (spec.md §3 invariant 5: every waiter is consumed by exactly
		// one join).
		b = &Branch{resultCh: make(chan branchResult, 1)}
		b.resultCh <- branchResult{err: err}
		g.registerJoin(container.Join, b)
		return
	}
	g.trackBranch(b)
	g.registerJoin(container.Join, b)

	g.opts.hooks.OnSpawnBranchStart(ctx, state, shared, container)
	g.group.Go(func() error {
		err := b.start(ctx, state, shared, g.opts.recoverPanics)
		g.opts.hooks.OnSpawnBranchEnd(ctx, state, shared, b, &NextNode{ReachedBy: reachedBy})
		return err
	})
}

// registerJoin records b as waiting to join at target. Registration and
// the corresponding removal in takeJoins both happen under g.mu, standing
// in for spec.md §5's single-threaded scheduler guarantee that the
// join-registry is mutated by exactly one branch at a time.
func (g *Graph) registerJoin(target any, b *Branch) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joins[target] = append(g.joins[target], b)
}

// takeJoins removes and returns every branch registered to join at
// target, so exactly one caller ever consumes a given waiter (spec.md §3
// invariant 5).
func (g *Graph) takeJoins(target any) []*Branch {
	g.mu.Lock()
	defer g.mu.Unlock()
	waiters := g.joins[target]
	delete(g.joins, target)
	return waiters
}

func (g *Graph) hooks() Hooks {
	return g.opts.hooks
}

func (g *Graph) nextBranchID() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	return id
}

func (g *Graph) trackBranch(b *Branch) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.branches[b.id] = b
}
