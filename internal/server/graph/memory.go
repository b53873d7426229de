package graph

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStore keeps the graph in process memory. Transactions are serialized:
// a Tx owns the store from Begin until Commit or Rollback and works on a
// copy-on-write view of the committed state.
type MemoryStore struct {
	sem   chan struct{}
	mu    sync.Mutex
	state *memState
	geo   Geocoder
}

type memState struct {
	nodes map[string]memNode
	rels  map[string]memRel
	seq   uint64
}

type memNode struct {
	node *Node
	seq  uint64
}

type memRel struct {
	rel *Relationship
	seq uint64
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryGeocoder sets the geocoder used for distance predicates.
func WithMemoryGeocoder(g Geocoder) MemoryOption {
	return func(s *MemoryStore) { s.geo = g }
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sem: make(chan struct{}, 1),
		state: &memState{
			nodes: make(map[string]memNode),
			rels:  make(map[string]memRel),
		},
		geo: CoordinateGeocoder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	committed := s.state
	s.mu.Unlock()

	return &memTx{
		store: s,
		state: &memState{
			nodes: maps.Clone(committed.nodes),
			rels:  maps.Clone(committed.rels),
			seq:   committed.seq,
		},
	}, nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// Counts returns the number of committed nodes and relationships.
func (s *MemoryStore) Counts() (nodes, rels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.nodes), len(s.state.rels)
}

type memTx struct {
	store *MemoryStore
	state *memState
	done  bool
}

func (t *memTx) check(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	return ctx.Err()
}

func (t *memTx) next() uint64 {
	t.state.seq++
	return t.state.seq
}

func (t *memTx) CreateNode(ctx context.Context, nodeType string, props map[string]any) (*Node, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	n := &Node{ID: NewID(), Type: nodeType, Props: cloneProps(props)}
	t.state.nodes[n.ID] = memNode{node: n, seq: t.next()}
	return n.Clone(), nil
}

func (t *memTx) CreateRelationship(ctx context.Context, relType, startID, endID string, props map[string]any) (*Relationship, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := t.state.nodes[startID]; !ok {
		return nil, notFound("node", startID)
	}
	if _, ok := t.state.nodes[endID]; !ok {
		return nil, notFound("node", endID)
	}
	r := &Relationship{ID: NewID(), Type: relType, StartID: startID, EndID: endID, Props: cloneProps(props)}
	t.state.rels[r.ID] = memRel{rel: r, seq: t.next()}
	return r.Clone(), nil
}

func (t *memTx) GetNode(ctx context.Context, id string) (*Node, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	e, ok := t.state.nodes[id]
	if !ok {
		return nil, notFound("node", id)
	}
	return e.node.Clone(), nil
}

func (t *memTx) GetRelationship(ctx context.Context, id string) (*Relationship, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	e, ok := t.state.rels[id]
	if !ok {
		return nil, notFound("relationship", id)
	}
	return e.rel.Clone(), nil
}

func (t *memTx) FindNodes(ctx context.Context, preds []Predicate) ([]*Node, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	entries := slices.Collect(maps.Values(t.state.nodes))
	slices.SortFunc(entries, func(a, b memNode) int { return cmpSeq(a.seq, b.seq) })

	nodes := make([]*Node, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, e.node.Clone())
	}
	return Filter(ctx, nodes, preds, t.store.geo)
}

func (t *memTx) Relationships(ctx context.Context, nodeID, relType string, dir Direction) ([]*Relationship, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := t.state.nodes[nodeID]; !ok {
		return nil, notFound("node", nodeID)
	}
	var entries []memRel
	for _, e := range t.state.rels {
		if relType != "" && e.rel.Type != relType {
			continue
		}
		if matchesDirection(e.rel, nodeID, dir) {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, func(a, b memRel) int { return cmpSeq(a.seq, b.seq) })

	rels := make([]*Relationship, 0, len(entries))
	for _, e := range entries {
		rels = append(rels, e.rel.Clone())
	}
	return rels, nil
}

func (t *memTx) SetProperties(ctx context.Context, obj Object, props map[string]any) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if obj.IsRelationship() {
		e, ok := t.state.rels[obj.ObjectID()]
		if !ok {
			return notFound("relationship", obj.ObjectID())
		}
		r := e.rel.Clone()
		maps.Copy(r.Props, props)
		t.state.rels[r.ID] = memRel{rel: r, seq: e.seq}
		return nil
	}
	e, ok := t.state.nodes[obj.ObjectID()]
	if !ok {
		return notFound("node", obj.ObjectID())
	}
	n := e.node.Clone()
	maps.Copy(n.Props, props)
	t.state.nodes[n.ID] = memNode{node: n, seq: e.seq}
	return nil
}

func (t *memTx) DeleteNode(ctx context.Context, id string, cascade bool) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.state.nodes[id]; !ok {
		return notFound("node", id)
	}
	var attached []string
	for rid, e := range t.state.rels {
		if e.rel.StartID == id || e.rel.EndID == id {
			attached = append(attached, rid)
		}
	}
	if len(attached) > 0 && !cascade {
		return ErrHasRelationships
	}
	for _, rid := range attached {
		delete(t.state.rels, rid)
	}
	delete(t.state.nodes, id)
	return nil
}

func (t *memTx) DeleteRelationship(ctx context.Context, id string) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.state.rels[id]; !ok {
		return notFound("relationship", id)
	}
	delete(t.state.rels, id)
	return nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.store.mu.Lock()
	t.store.state = t.state
	t.store.mu.Unlock()
	<-t.store.sem
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	<-t.store.sem
	return nil
}

func cmpSeq(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
