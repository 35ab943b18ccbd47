package graph

import "context"

// spawnRequest pairs a BranchContainer next descriptor resolved mid-step
// with the Entry that produced it, mirroring NextNode for the branch-spawn
// case (spec.md §4.6 "Spawning a sub-branch").
type spawnRequest struct {
	Container *BranchContainer
	ReachedBy *Entry
}

// resolution is the output of resolveNext: the ordered NextNode list for
// the following step, plus any sub-branches that should be spawned rather
// than scheduled as step-local nodes (spec.md §4.6: a BranchContainer
// target "does not schedule it as a step-local node").
type resolution struct {
	nextNodes []NextNode
	spawns    []*spawnRequest
}

// resolveNext computes the next step's target nodes from the current
// source set, invoking dynamic routers sequentially and walking the
// "instant" closure until no new instant entries remain (spec.md §4.4).
func resolveNext(ctx context.Context, state State, shared Shared, sources []any, idx *branchIndex) (resolution, error) {
	var res resolution

	// Primary pass: every entry registered under each current source.
	var primary []*Entry
	for _, s := range sources {
		primary = append(primary, idx.edgeIndex[s]...)
	}
	added, err := resolveEntries(ctx, state, shared, primary, &res)
	if err != nil {
		return resolution{}, err
	}

	// Instant closure: repeatedly resolve instant-marked entries reachable
	// from the targets just added, until a pass adds nothing new
	// (spec.md §4.4.3, testable property 7).
	pending := added
	for len(pending) > 0 {
		var instantEntries []*Entry
		for _, nn := range pending {
			for _, e := range idx.edgeIndex[nn.Node] {
				if cfg, ok := e.Config.(NodeConfig); ok && cfg.Instant {
					instantEntries = append(instantEntries, e)
				}
			}
		}
		if len(instantEntries) == 0 {
			break
		}
		next, err := resolveEntries(ctx, state, shared, instantEntries, &res)
		if err != nil {
			return resolution{}, err
		}
		pending = next
	}

	return res, nil
}

// resolveEntries resolves every entry in entries (in order, since dynamic
// routers must not race on shared), appends their targets to res, and
// returns the newly-added NextNodes so the instant-closure walk can look
// for further instant entries from them.
func resolveEntries(ctx context.Context, state State, shared Shared, entries []*Entry, res *resolution) ([]NextNode, error) {
	var added []NextNode
	for _, entry := range entries {
		targets, branches, err := resolveEntryTargets(ctx, state, shared, entry)
		if err != nil {
			return nil, err
		}
		for _, b := range branches {
			res.spawns = append(res.spawns, &spawnRequest{Container: b, ReachedBy: entry})
		}
		for _, t := range targets {
			if t == End {
				continue
			}
			nn := NextNode{Node: t.(Node), ReachedBy: entry}
			res.nextNodes = append(res.nextNodes, nn)
			added = append(added, nn)
		}
	}
	return added, nil
}

// resolveEntryTargets resolves one Entry's next descriptor: a static list
// is used as-is, a branch spawn is surfaced to the caller, and a dynamic
// router is invoked with (state, shared) and its result normalized as a
// resolved-next (spec.md §4.4.2).
func resolveEntryTargets(ctx context.Context, state State, shared Shared, entry *Entry) (targets []any, branches []*BranchContainer, err error) {
	switch entry.Next.kind {
	case nextKindStatic:
		return entry.Next.static, nil, nil
	case nextKindBranch:
		return nil, []*BranchContainer{entry.Next.branch}, nil
	case nextKindDynamic:
		raw, err := entry.Next.router(ctx, state, shared)
		if err != nil {
			return nil, nil, err
		}
		flat, err := resolvedNextTargets(raw)
		if err != nil {
			return nil, nil, err
		}
		return flat, nil, nil
	default:
		return nil, nil, &InvalidEdgeError{Reason: "entry has no resolvable next descriptor"}
	}
}

// resolvedNextTargets normalizes the value returned by a RouteFunc into
// zero or more single-next targets. A router's return value must itself be
// a resolved-next (single-next or sequence thereof): it may not return a
// further callable or a BranchContainer (spec.md §4.2 "next").
func resolvedNextTargets(raw any) ([]any, error) {
	switch v := raw.(type) {
	case []Node:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, el := range v {
			flat, err := flattenStaticNext(el)
			if err != nil {
				return nil, err
			}
			out = append(out, flat...)
		}
		return out, nil
	default:
		return flattenStaticNext(v)
	}
}
