package resource

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/mutation"
	"github.com/systemshift/graphrest/internal/server/schema"
	"github.com/systemshift/graphrest/internal/server/search"
)

func (s *Service) get(ctx context.Context, res Resource, params search.Params) (*Result, error) {
	inner, view := unview(res)

	var objs []graph.Object
	var single bool
	err := s.exec.Read(ctx, func(r mutation.Reader) error {
		var err error
		objs, single, err = s.collect(ctx, r, inner, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &Result{Status: http.StatusOK, Objects: objs, Single: single, View: view, Total: len(objs)}
	if single {
		return out, nil
	}
	if err := s.arrange(out, params); err != nil {
		return nil, err
	}
	return out, nil
}

// collect loads the objects a resource denotes. Search parameters narrow the
// type and related collections; other resources ignore them.
func (s *Service) collect(ctx context.Context, r mutation.Reader, res Resource, params search.Params) ([]graph.Object, bool, error) {
	switch x := res.(type) {
	case TypeResource:
		name, err := s.typeName(x)
		if err != nil {
			return nil, false, err
		}
		preds, err := s.builder.Build(name, params)
		if err != nil {
			return nil, false, err
		}
		nodes, err := r.FindNodes(ctx, append([]graph.Predicate{graph.TypeIs(name)}, preds...))
		if err != nil {
			return nil, false, err
		}
		return nodeObjects(nodes), false, nil

	case IDResource:
		obj, err := lookup(ctx, r, x.ID)
		if err != nil {
			return nil, false, err
		}
		return []graph.Object{obj}, true, nil

	case TypedIDResource:
		n, err := s.node(ctx, r, x)
		if err != nil {
			return nil, false, err
		}
		return []graph.Object{n}, true, nil

	case RelatedResource:
		source, rc, err := s.related(ctx, r, x)
		if err != nil {
			return nil, false, err
		}
		preds, err := s.builder.Build(rc.Target, params)
		if err != nil {
			return nil, false, err
		}
		nodes, err := relatedNodes(ctx, r, source, rc)
		if err != nil {
			return nil, false, err
		}
		nodes, err = graph.Filter(ctx, nodes, preds, nil)
		if err != nil {
			return nil, false, err
		}
		return nodeObjects(nodes), false, nil

	case RelatedNodeResource:
		source, rc, err := s.related(ctx, r, x.Related)
		if err != nil {
			return nil, false, err
		}
		nodes, err := relatedNodes(ctx, r, source, rc)
		if err != nil {
			return nil, false, err
		}
		for _, n := range nodes {
			if n.ID == x.ID {
				return []graph.Object{n}, true, nil
			}
		}
		return nil, false, fmt.Errorf("%w: %s is not related to %s through %s", ErrNotFound, x.ID, source.ID, x.Related.Raw)

	case StaticRelationshipResource:
		n, err := s.node(ctx, r, x.Node)
		if err != nil {
			return nil, false, err
		}
		rels, err := r.Relationships(ctx, n.ID, "", x.Direction)
		if err != nil {
			return nil, false, err
		}
		return relObjects(rels), false, nil

	case TypeRelationshipResource:
		name, err := s.typeName(x.Type)
		if err != nil {
			return nil, false, err
		}
		nodes, err := r.FindNodes(ctx, []graph.Predicate{graph.TypeIs(name)})
		if err != nil {
			return nil, false, err
		}
		var objs []graph.Object
		seen := make(map[string]bool)
		for _, n := range nodes {
			rels, err := r.Relationships(ctx, n.ID, "", x.Direction)
			if err != nil {
				return nil, false, err
			}
			for _, rel := range rels {
				if !seen[rel.ID] {
					seen[rel.ID] = true
					objs = append(objs, rel)
				}
			}
		}
		return objs, false, nil

	case RelationshipEndpointResource:
		rel, err := r.GetRelationship(ctx, x.RelationshipID)
		if err != nil {
			return nil, false, err
		}
		id := rel.StartID
		if x.End == EndpointEnd {
			id = rel.EndID
		}
		n, err := r.GetNode(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return []graph.Object{n}, true, nil
	}
	return nil, false, illegalPath(res.URIPart(), "incomplete path")
}

// node loads the node of r and checks its type when the path named one.
func (s *Service) node(ctx context.Context, r mutation.Reader, res TypedIDResource) (*graph.Node, error) {
	n, err := r.GetNode(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	if res.Type.Raw != "" {
		name, err := s.typeName(res.Type)
		if err != nil {
			return nil, err
		}
		if n.Type != name {
			return nil, fmt.Errorf("%w: %s is not a %s", ErrNotFound, res.ID, name)
		}
	}
	return n, nil
}

// related loads the source node and the relation class the segment names.
func (s *Service) related(ctx context.Context, r mutation.Reader, res RelatedResource) (*graph.Node, schema.RelationClass, error) {
	source, err := s.node(ctx, r, res.Source)
	if err != nil {
		return nil, schema.RelationClass{}, err
	}
	rc, ok := s.registry.RelationClassForProperty(source.Type, res.Raw)
	if !ok {
		return nil, schema.RelationClass{}, notFoundPath(res.Raw, "no relation "+res.Raw+" on "+source.Type)
	}
	if s.isRelationshipType(rc.Target) {
		return nil, schema.RelationClass{}, notFoundPath(res.Raw, rc.Target+" is a relationship type")
	}
	return source, rc, nil
}

func relatedNodes(ctx context.Context, r mutation.Reader, source *graph.Node, rc schema.RelationClass) ([]*graph.Node, error) {
	rels, err := r.Relationships(ctx, source.ID, rc.RelType, rc.Direction)
	if err != nil {
		return nil, err
	}
	var out []*graph.Node
	for _, rel := range rels {
		n, err := r.GetNode(ctx, rel.Other(source.ID))
		if err != nil {
			return nil, err
		}
		if n.Type == rc.Target {
			out = append(out, n)
		}
	}
	return out, nil
}

func lookup(ctx context.Context, r mutation.Reader, id string) (graph.Object, error) {
	n, err := r.GetNode(ctx, id)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, graph.ErrNotFound) {
		return nil, err
	}
	return r.GetRelationship(ctx, id)
}

func nodeObjects(nodes []*graph.Node) []graph.Object {
	out := make([]graph.Object, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out
}

func relObjects(rels []*graph.Relationship) []graph.Object {
	out := make([]graph.Object, len(rels))
	for i, r := range rels {
		out[i] = r
	}
	return out
}

// arrange sorts and pages a list result. Without a sort parameter the default
// sort of the listed type applies when all objects share one type.
func (s *Service) arrange(out *Result, params search.Params) error {
	key, _ := params.Get(search.ParamSort)
	order, _ := params.Get(search.ParamOrder)
	if key == "" {
		if t, ok := s.commonType(out.Objects); ok && t.DefaultSort != "" {
			key = t.DefaultSort
			if order == "" {
				order = t.DefaultOrder
			}
		}
	}

	switch strings.ToLower(order) {
	case "", "asc", "desc":
	default:
		return fmt.Errorf("%w: order must be asc or desc", ErrBadRequest)
	}
	if key != "" {
		desc := strings.EqualFold(order, "desc")
		slices.SortStableFunc(out.Objects, func(a, b graph.Object) int {
			va, _ := a.Property(key)
			vb, _ := b.Property(key)
			c := compareValues(va, vb)
			if desc {
				return -c
			}
			return c
		})
	}

	page, err := params.Int(search.ParamPage, 1)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	size, err := params.Int(search.ParamPageSize, s.defaultPageSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if page < 1 || size < 0 {
		return fmt.Errorf("%w: page must be at least 1 and pageSize not negative", ErrBadRequest)
	}
	if s.maxPageSize > 0 && (size == 0 || size > s.maxPageSize) {
		size = s.maxPageSize
	}
	if size == 0 {
		return nil
	}

	out.Page, out.PageSize = page, size
	start := (page - 1) * size
	if start >= len(out.Objects) {
		out.Objects = nil
		return nil
	}
	end := min(start+size, len(out.Objects))
	out.Objects = out.Objects[start:end]
	return nil
}

func (s *Service) commonType(objs []graph.Object) (*schema.Type, bool) {
	if len(objs) == 0 {
		return nil, false
	}
	name := objs[0].ObjectType()
	for _, o := range objs[1:] {
		if o.ObjectType() != name {
			return nil, false
		}
	}
	return s.registry.Type(name)
}

// compareValues orders missing values first, numbers numerically and
// everything else by its string form.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}
	fa, okA := number(a)
	fb, okB := number(b)
	if okA && okB {
		return cmp.Compare(fa, fb)
	}
	return strings.Compare(graph.FormatValue(a), graph.FormatValue(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
