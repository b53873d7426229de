package api

import (
	"slices"

	"github.com/systemshift/graphrest/internal/server/graph"
)

// Views with a fixed meaning. Any other view name is looked up on the type;
// a type without that view renders every property.
const (
	ViewPublic = "public"
	ViewAll    = "all"
	ViewIDs    = "ids"
)

// render writes obj as an ordered property set: id and type first, the
// endpoints of a relationship next, then the properties of view by name.
func (s *Server) render(obj graph.Object, view string) *graph.PropertySet {
	out := graph.NewPropertySet()
	out.Set(graph.KeyID, obj.ObjectID())
	if view == ViewIDs {
		return out
	}
	out.Set(graph.KeyType, obj.ObjectType())
	if r, ok := obj.(*graph.Relationship); ok {
		out.Set("startId", r.StartID)
		out.Set("endId", r.EndID)
	}

	props := obj.Properties()
	var keys []string
	if view == "" {
		view = ViewPublic
	}
	if view != ViewAll && s.registry != nil {
		keys, _ = s.registry.View(obj.ObjectType(), view)
	}
	if keys == nil {
		for k := range props {
			keys = append(keys, k)
		}
		slices.Sort(keys)
	}
	for _, k := range keys {
		if k == graph.KeyID || k == graph.KeyType {
			continue
		}
		if v, ok := props[k]; ok {
			out.Set(k, v)
		}
	}
	return out
}
