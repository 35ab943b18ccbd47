package graph

// branchIndex is the result of indexing one BranchContainer's edge list:
// per-source routing tables ready for the next resolver (C4) and the error
// router (C5) to consult without re-walking the raw edge list
// (spec.md §4.3).
type branchIndex struct {
	edgeIndex      map[any][]*Entry
	errorEdgeIndex map[ErrorKey][]*Entry
}

// newBranchIndex builds a branchIndex from a raw edge list, preserving each
// original edge's position as Entry.Index (spec.md §4.3).
//
// Node-tuple edges expand into their constituent pair edges, all sharing
// the original list position i. Every other edge destructures into
// (source, next[, config]); an omitted config defaults per source kind,
// and a present config whose kind does not match the source kind is an
// InvalidConfigKindError. Unrecognized source/next shapes are an
// InvalidEdgeError (spec.md §4.3 rules 1-4).
func newBranchIndex(edges []RawEdge) (*branchIndex, error) {
	idx := &branchIndex{
		edgeIndex:      make(map[any][]*Entry),
		errorEdgeIndex: make(map[ErrorKey][]*Entry),
	}
	for i, e := range edges {
		switch e.kind {
		case edgeKindPair:
			if err := idx.addPair(i, e.source, e.next, e.config); err != nil {
				return nil, err
			}
		case edgeKindChain:
			if err := idx.addChain(i, e); err != nil {
				return nil, err
			}
		default:
			return nil, &InvalidEdgeError{Reason: "unrecognized edge kind"}
		}
	}
	return idx, nil
}

func (idx *branchIndex) addPair(i int, rawSource, rawNext, rawConfig any) error {
	sources, isError, err := sourceList(rawSource)
	if err != nil {
		return err
	}
	nd, err := classifyNext(rawNext)
	if err != nil {
		return err
	}
	config, err := resolveConfig(rawConfig, isError)
	if err != nil {
		return err
	}
	entry := &Entry{Next: nd, Config: config, Index: i}
	idx.register(sources, isError, entry)
	return nil
}

func (idx *branchIndex) addChain(i int, e RawEdge) error {
	sources, isError, err := sourceList(e.source)
	if err != nil {
		return err
	}
	if isError {
		return &InvalidEdgeError{Reason: "node-tuple chains cannot start from an error source"}
	}
	if len(e.chainNodes) == 0 {
		return &InvalidEdgeError{Reason: "node-tuple chain has no intermediate nodes"}
	}

	// source -> chainNodes[0]
	head := &Entry{
		Next:   nextDescriptor{kind: nextKindStatic, static: []any{e.chainNodes[0]}},
		Config: DefaultNodeConfig,
		Index:  i,
	}
	idx.register(sources, false, head)

	// chainNodes[k] -> chainNodes[k+1]
	for k := 0; k < len(e.chainNodes)-1; k++ {
		link := &Entry{
			Next:   nextDescriptor{kind: nextKindStatic, static: []any{e.chainNodes[k+1]}},
			Config: DefaultNodeConfig,
			Index:  i,
		}
		idx.edgeIndex[e.chainNodes[k]] = append(idx.edgeIndex[e.chainNodes[k]], link)
	}

	// chainNodes[last] -> chainNext, if given.
	if e.chainNext != nil {
		nd, err := classifyNext(e.chainNext)
		if err != nil {
			return err
		}
		tail := &Entry{Next: nd, Config: DefaultNodeConfig, Index: i}
		last := e.chainNodes[len(e.chainNodes)-1]
		idx.edgeIndex[last] = append(idx.edgeIndex[last], tail)
	}
	return nil
}

func resolveConfig(raw any, isError bool) (Config, error) {
	if raw == nil {
		return defaultConfigFor(isError), nil
	}
	config, ok := raw.(Config)
	if !ok {
		return nil, &InvalidConfigKindError{Reason: "config value does not implement Config"}
	}
	if err := checkConfigKind(config, isError); err != nil {
		return nil, err
	}
	return config, nil
}

// register appends entry under every element of sources (spec.md §4.3
// rule 3: sequence sources share the same entry under every element).
func (idx *branchIndex) register(sources []any, isError bool, entry *Entry) {
	for _, s := range sources {
		if isError {
			key := asErrorKey(s)
			idx.errorEdgeIndex[key] = append(idx.errorEdgeIndex[key], entry)
		} else {
			idx.edgeIndex[s] = append(idx.edgeIndex[s], entry)
		}
	}
}
