package mutation

import (
	"context"
	"fmt"

	"github.com/systemshift/graphrest/internal/server/graph"
)

// ShouldCreate reports whether a relType relationship from start to end with
// props would be new. Candidates are the incoming relationships of end that
// start at start. Without props any candidate is a duplicate; with props a
// candidate is a duplicate when its values for the keys of props hash equal.
//
// The (start, end, type) key stays locked until the transaction finishes, so
// a check and the insert that follows it cannot interleave with another
// transaction doing the same.
func (t *Tx) ShouldCreate(ctx context.Context, start, end *graph.Node, relType string, props *graph.PropertySet) (bool, error) {
	if err := t.lock(ctx, relationshipKey(start.ID, end.ID, relType)); err != nil {
		return false, err
	}

	candidates, err := t.tx.Relationships(ctx, end.ID, relType, graph.Incoming)
	if err != nil {
		return false, fmt.Errorf("listing %s relationships of %s: %w", relType, end.ID, err)
	}

	keys := props.Keys()
	hash := props.ContentHash(keys)
	for _, r := range candidates {
		if r.StartID != start.ID {
			continue
		}
		if len(keys) == 0 {
			return false, nil
		}
		if graph.HashProperties(r.Props, keys) == hash {
			return false, nil
		}
	}
	return true, nil
}
