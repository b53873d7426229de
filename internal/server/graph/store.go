package graph

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrHasRelationships = fmt.Errorf("node has relationships")
	ErrTxDone           = fmt.Errorf("transaction already finished")
	ErrGeocode          = fmt.Errorf("cannot geocode")
)

// Store is a graph storage backend. Memory, SQLite and Neo4j implement it.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close(ctx context.Context) error
}

// Tx is one unit of work against a Store. Nothing written through a Tx is
// visible to other transactions before Commit; Rollback after Commit is a no-op.
type Tx interface {
	CreateNode(ctx context.Context, nodeType string, props map[string]any) (*Node, error)
	CreateRelationship(ctx context.Context, relType, startID, endID string, props map[string]any) (*Relationship, error)

	GetNode(ctx context.Context, id string) (*Node, error)
	GetRelationship(ctx context.Context, id string) (*Relationship, error)
	FindNodes(ctx context.Context, preds []Predicate) ([]*Node, error)

	// Relationships lists the relationships of nodeID in dir. An empty relType
	// matches every type.
	Relationships(ctx context.Context, nodeID, relType string, dir Direction) ([]*Relationship, error)

	// SetProperties merges props into the stored properties of obj.
	SetProperties(ctx context.Context, obj Object, props map[string]any) error

	// DeleteNode removes a node. With cascade its relationships are removed in
	// the same transaction; without it a connected node yields ErrHasRelationships.
	DeleteNode(ctx context.Context, id string, cascade bool) error
	DeleteRelationship(ctx context.Context, id string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// GetObject looks an id up as a node first and then as a relationship.
func GetObject(ctx context.Context, tx Tx, id string) (Object, error) {
	n, err := tx.GetNode(ctx, id)
	if err == nil {
		return n, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	r, err := tx.GetRelationship(ctx, id)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func matchesDirection(r *Relationship, nodeID string, dir Direction) bool {
	switch dir {
	case Outgoing:
		return r.StartID == nodeID
	case Incoming:
		return r.EndID == nodeID
	default:
		return r.StartID == nodeID || r.EndID == nodeID
	}
}
