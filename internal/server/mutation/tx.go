package mutation

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"go.uber.org/zap"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/schema"
	"github.com/systemshift/graphrest/internal/server/subscriptions"
)

// Tx is the handle a unit of work writes through. It is only valid inside the
// function passed to Executor.Run.
type Tx struct {
	exec *Executor
	tx   graph.Tx

	queue   []*touched
	touches map[string]*touched
	deleted []subscriptions.Event
	held    map[string]bool

	nodesCreated, relsCreated int
	nodesDeleted, relsDeleted int
}

// touched is an object created or modified in this transaction.
type touched struct {
	obj      graph.Object
	created  bool
	modified bool
	removed  bool
}

var _ schema.Mutator = (*Tx)(nil)

func newTx(e *Executor, gtx graph.Tx) *Tx {
	return &Tx{
		exec:    e,
		tx:      gtx,
		touches: make(map[string]*touched),
		held:    make(map[string]bool),
	}
}

func (t *Tx) touch(obj graph.Object, created bool) {
	if entry, ok := t.touches[obj.ObjectID()]; ok {
		entry.obj = obj
		entry.modified = entry.modified || !created
		return
	}
	entry := &touched{obj: obj, created: created, modified: !created}
	t.touches[obj.ObjectID()] = entry
	t.queue = append(t.queue, entry)
}

// CreateNode creates a node with props. Read-only and write-once keys may be
// set here, once; the bookkeeping timestamps are always set by the executor.
func (t *Tx) CreateNode(ctx context.Context, typeName string, props *graph.PropertySet) (*graph.Node, error) {
	values, err := t.creationValues(typeName, props)
	if err != nil {
		return nil, err
	}
	n, err := t.tx.CreateNode(ctx, typeName, values)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", typeName, err)
	}
	t.nodesCreated++
	t.touch(n, true)
	return n, nil
}

// CreateRelationship links start to end. With checkDuplicates an equal
// relationship suppresses the creation and (nil, nil) is returned.
func (t *Tx) CreateRelationship(ctx context.Context, start, end *graph.Node, relType string, props *graph.PropertySet, checkDuplicates bool) (*graph.Relationship, error) {
	if checkDuplicates {
		ok, err := t.ShouldCreate(ctx, start, end, relType, props)
		if err != nil {
			return nil, err
		}
		if !ok {
			t.exec.metrics.RecordDuplicate()
			t.exec.logger.Debug("relationship already exists",
				zap.String("type", relType), zap.String("start", start.ID), zap.String("end", end.ID))
			return nil, nil
		}
	}

	values, err := t.creationValues(relType, props)
	if err != nil {
		return nil, err
	}
	r, err := t.tx.CreateRelationship(ctx, relType, start.ID, end.ID, values)
	if err != nil {
		return nil, fmt.Errorf("creating %s relationship: %w", relType, err)
	}
	t.relsCreated++
	t.touch(r, true)
	return r, nil
}

// creationValues is the privileged writer of the creation path: it is the only
// place where immutable keys are accepted from a caller.
func (t *Tx) creationValues(typeName string, props *graph.PropertySet) (map[string]any, error) {
	values := props.Map()
	for _, key := range []string{graph.KeyID, graph.KeyType} {
		if _, ok := values[key]; ok {
			return nil, &PropertyError{Type: typeName, Key: key, Err: ErrReadOnlyProperty}
		}
	}
	now := t.exec.timestamp()
	values[schema.KeyCreatedDate] = now
	values[schema.KeyLastModifiedDate] = now
	return values, nil
}

// SetProperty writes one property through the property policy.
func (t *Tx) SetProperty(ctx context.Context, obj graph.Object, key string, value any) error {
	if k, ok := t.exec.registry.PropertyKey(obj.ObjectType(), key); ok {
		switch {
		case k.ReadOnly:
			return &PropertyError{Type: obj.ObjectType(), Key: key, Err: ErrReadOnlyProperty}
		case k.WriteOnce:
			return &PropertyError{Type: obj.ObjectType(), Key: key, Err: ErrWriteOnceProperty}
		}
	}
	if err := t.write(ctx, obj, map[string]any{key: value}); err != nil {
		return err
	}
	t.touch(obj, false)
	return nil
}

// write stores props and mirrors them onto obj so later hooks see them.
func (t *Tx) write(ctx context.Context, obj graph.Object, props map[string]any) error {
	if err := t.tx.SetProperties(ctx, obj, props); err != nil {
		return fmt.Errorf("updating %s %s: %w", obj.ObjectType(), obj.ObjectID(), err)
	}
	switch o := obj.(type) {
	case *graph.Node:
		if o.Props == nil {
			o.Props = make(map[string]any)
		}
		maps.Copy(o.Props, props)
	case *graph.Relationship:
		if o.Props == nil {
			o.Props = make(map[string]any)
		}
		maps.Copy(o.Props, props)
	}
	return nil
}

// Update applies every property of props to every object, in order.
func (t *Tx) Update(ctx context.Context, objs []graph.Object, props *graph.PropertySet) error {
	for _, obj := range objs {
		for _, key := range props.Keys() {
			value, _ := props.Get(key)
			if err := t.SetProperty(ctx, obj, key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete removes every object. Relationships go directly, nodes take their
// relationships with them. A relationship already removed by an earlier
// node in objs is skipped.
func (t *Tx) Delete(ctx context.Context, objs []graph.Object) error {
	gone := make(map[string]bool)
	for _, obj := range objs {
		id := obj.ObjectID()
		if gone[id] {
			continue
		}

		if obj.IsRelationship() {
			if err := t.tx.DeleteRelationship(ctx, id); err != nil {
				return fmt.Errorf("deleting relationship %s: %w", id, err)
			}
			t.recordDeletion(obj)
			gone[id] = true
			continue
		}

		attached, err := t.tx.Relationships(ctx, id, "", graph.Both)
		if err != nil {
			return fmt.Errorf("listing relationships of %s: %w", id, err)
		}
		if err := t.tx.DeleteNode(ctx, id, true); err != nil {
			return fmt.Errorf("deleting node %s: %w", id, err)
		}
		for _, r := range attached {
			if !gone[r.ID] {
				t.recordDeletion(r)
				gone[r.ID] = true
			}
		}
		t.recordDeletion(obj)
		gone[id] = true
	}
	return nil
}

func (t *Tx) recordDeletion(obj graph.Object) {
	if obj.IsRelationship() {
		t.relsDeleted++
	} else {
		t.nodesDeleted++
	}
	if entry, ok := t.touches[obj.ObjectID()]; ok {
		entry.removed = true
	}
	t.deleted = append(t.deleted, subscriptions.NewEvent(subscriptions.ActionDeleted, obj))
}

// drain fires the lifecycle side effects in first-touch order. Objects touched
// by a hook are appended and drained as well, each object exactly once.
func (t *Tx) drain(ctx context.Context) error {
	reg := t.exec.registry
	for i := 0; i < len(t.queue); i++ {
		entry := t.queue[i]
		if entry.removed {
			continue
		}
		obj := entry.obj
		typeName := obj.ObjectType()

		if entry.created {
			for _, hook := range reg.InstantiationHooks(typeName) {
				if err := hook(ctx, t, obj); err != nil {
					return fmt.Errorf("instantiating %s %s: %w", typeName, obj.ObjectID(), err)
				}
			}
			for _, tr := range reg.PostCreationTransformations(typeName) {
				if err := tr.Apply(ctx, t, obj); err != nil {
					return fmt.Errorf("transforming %s %s: %w", typeName, obj.ObjectID(), err)
				}
			}
			continue
		}

		if err := t.write(ctx, obj, map[string]any{schema.KeyLastModifiedDate: t.exec.timestamp()}); err != nil {
			return err
		}
		for _, hook := range reg.ModificationHooks(typeName) {
			if err := hook(ctx, t, obj); err != nil {
				return fmt.Errorf("modifying %s %s: %w", typeName, obj.ObjectID(), err)
			}
		}
	}
	return nil
}

func (t *Tx) events() []subscriptions.Event {
	var out []subscriptions.Event
	for _, entry := range t.queue {
		switch {
		case entry.removed:
		case entry.created:
			out = append(out, subscriptions.NewEvent(subscriptions.ActionCreated, entry.obj))
		default:
			out = append(out, subscriptions.NewEvent(subscriptions.ActionUpdated, entry.obj))
		}
	}
	return append(out, t.deleted...)
}

func (t *Tx) recordCounts() {
	t.exec.metrics.RecordObjects("node", t.nodesCreated, t.nodesDeleted)
	t.exec.metrics.RecordObjects("relationship", t.relsCreated, t.relsDeleted)
}

// lock takes the process-wide lock for key once per transaction.
func (t *Tx) lock(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}
	if err := t.exec.locks.acquire(ctx, key); err != nil {
		return fmt.Errorf("waiting for lock %s: %w", key, err)
	}
	t.held[key] = true
	return nil
}

func (t *Tx) releaseLocks() {
	for key := range t.held {
		t.exec.locks.release(key)
	}
	clear(t.held)
}

func (t *Tx) GetNode(ctx context.Context, id string) (*graph.Node, error) {
	return t.tx.GetNode(ctx, id)
}

func (t *Tx) GetRelationship(ctx context.Context, id string) (*graph.Relationship, error) {
	return t.tx.GetRelationship(ctx, id)
}

// GetObject finds a node or relationship by id.
func (t *Tx) GetObject(ctx context.Context, id string) (graph.Object, error) {
	return graph.GetObject(ctx, t.tx, id)
}

func (t *Tx) FindNodes(ctx context.Context, preds []graph.Predicate) ([]*graph.Node, error) {
	return t.tx.FindNodes(ctx, preds)
}

func (t *Tx) Relationships(ctx context.Context, nodeID, relType string, dir graph.Direction) ([]*graph.Relationship, error) {
	return t.tx.Relationships(ctx, nodeID, relType, dir)
}

// IsNotFound reports whether err means a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, graph.ErrNotFound)
}
