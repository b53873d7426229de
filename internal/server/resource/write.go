package resource

import (
	"context"
	"fmt"
	"net/http"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/mutation"
	"github.com/systemshift/graphrest/internal/server/schema"
	"github.com/systemshift/graphrest/internal/server/search"
)

func (s *Service) post(ctx context.Context, res Resource, body *graph.PropertySet) (*Result, error) {
	inner, view := unview(res)

	switch x := inner.(type) {
	case TypeResource:
		name, err := s.typeName(x)
		if err != nil {
			return nil, err
		}
		n, err := mutation.Do(ctx, s.exec, func(tx *mutation.Tx) (*graph.Node, error) {
			return tx.CreateNode(ctx, name, body)
		})
		if err != nil {
			return nil, err
		}
		return &Result{
			Status:   http.StatusCreated,
			Objects:  []graph.Object{n},
			Single:   true,
			View:     view,
			Location: s.location(x, n),
		}, nil

	case RelatedResource:
		return s.postRelated(ctx, x, view, body)
	}
	return nil, &MethodError{Method: http.MethodPost, Allow: Allowed(res)}
}

// postRelated links an existing node when body carries its id and creates a
// new related node otherwise.
func (s *Service) postRelated(ctx context.Context, res RelatedResource, view string, body *graph.PropertySet) (*Result, error) {
	type outcome struct {
		node    *graph.Node
		created bool
	}

	out, err := mutation.Do(ctx, s.exec, func(tx *mutation.Tx) (outcome, error) {
		source, rc, err := s.related(ctx, tx, res)
		if err != nil {
			return outcome{}, err
		}

		if raw, ok := body.Get(graph.KeyID); ok {
			id := graph.FormatValue(raw)
			target, err := tx.GetNode(ctx, id)
			if err != nil {
				return outcome{}, err
			}
			if target.Type != rc.Target {
				return outcome{}, fmt.Errorf("%w: %s is a %s, %s expects %s", ErrBadRequest, id, target.Type, res.Raw, rc.Target)
			}
			props := graph.PropertySetOf()
			for _, k := range body.Keys() {
				if k != graph.KeyID {
					v, _ := body.Get(k)
					props.Set(k, v)
				}
			}
			start, end := orient(source, target, rc)
			rel, err := tx.CreateRelationship(ctx, start, end, rc.RelType, props, true)
			if err != nil {
				return outcome{}, err
			}
			return outcome{node: target, created: rel != nil}, nil
		}

		target, err := tx.CreateNode(ctx, rc.Target, body)
		if err != nil {
			return outcome{}, err
		}
		start, end := orient(source, target, rc)
		if _, err := tx.CreateRelationship(ctx, start, end, rc.RelType, nil, false); err != nil {
			return outcome{}, err
		}
		return outcome{node: target, created: true}, nil
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		Status:   http.StatusOK,
		Objects:  []graph.Object{out.node},
		Single:   true,
		View:     view,
		Location: s.location(res, out.node),
	}
	if out.created {
		result.Status = http.StatusCreated
	}
	return result, nil
}

// orient returns the start and end of a relationship of class rc between the
// source of a related path and the node it reaches.
func orient(source, target *graph.Node, rc schema.RelationClass) (start, end *graph.Node) {
	if rc.Direction == graph.Incoming {
		return target, source
	}
	return source, target
}

func (s *Service) put(ctx context.Context, res Resource, params search.Params, body *graph.PropertySet) (*Result, error) {
	if body.Len() == 0 {
		return nil, fmt.Errorf("%w: no properties to update", ErrBadRequest)
	}
	inner, view := unview(res)

	var objs []graph.Object
	var single bool
	err := s.exec.Run(ctx, func(tx *mutation.Tx) error {
		var err error
		objs, single, err = s.collect(ctx, tx, inner, params)
		if err != nil {
			return err
		}
		return tx.Update(ctx, objs, body)
	})
	if err != nil {
		return nil, err
	}
	return &Result{Status: http.StatusOK, Objects: objs, Single: single, View: view, Total: len(objs)}, nil
}

func (s *Service) delete(ctx context.Context, res Resource, params search.Params) (*Result, error) {
	inner, _ := unview(res)

	var count int
	err := s.exec.Run(ctx, func(tx *mutation.Tx) error {
		objs, _, err := s.collect(ctx, tx, inner, params)
		if err != nil {
			return err
		}
		count = len(objs)
		return tx.Delete(ctx, objs)
	})
	if err != nil {
		return nil, err
	}
	return &Result{Status: http.StatusOK, Total: count}, nil
}
