// Package resource resolves request paths into a single combined resource and
// runs the REST verbs against it.
package resource

import (
	"github.com/systemshift/graphrest/internal/server/graph"
)

// Resource is one resolved path segment or the combination of several.
type Resource interface {
	// URIPart is the path the resource was resolved from, views excluded.
	URIPart() string
	resource()
}

// Endpoint selects one end of a relationship.
type Endpoint string

const (
	EndpointStart Endpoint = "start"
	EndpointEnd   Endpoint = "end"
)

// TypeResource is a collection segment such as "persons". Raw is kept as sent;
// the type name is resolved against the registry.
type TypeResource struct {
	Raw string
}

// IDResource is an opaque object id.
type IDResource struct {
	ID string
}

// TypedIDResource is an id narrowed to a type. An empty Type.Raw means the
// type is not known until the object is loaded.
type TypedIDResource struct {
	Type TypeResource
	ID   string
}

type DirectionResource struct {
	Direction graph.Direction
}

type EndpointResource struct {
	End Endpoint
}

// ViewResource selects the rendered property view.
type ViewResource struct {
	Name string
}

// RelatedResource is the collection of nodes reached from Source through the
// relation named by Raw.
type RelatedResource struct {
	Source TypedIDResource
	Raw    string
}

// RelatedNodeResource is one node of a related collection.
type RelatedNodeResource struct {
	Related RelatedResource
	ID      string
}

// StaticRelationshipResource lists the relationships of one node in a direction.
type StaticRelationshipResource struct {
	Node      TypedIDResource
	Direction graph.Direction
}

// TypeRelationshipResource lists the relationships of every node of a type in
// a direction.
type TypeRelationshipResource struct {
	Type      TypeResource
	Direction graph.Direction
}

// RelationshipEndpointResource is the start or end node of a relationship.
type RelationshipEndpointResource struct {
	RelationshipID string
	End            Endpoint
}

// ViewedResource is any non-view resource followed by a view segment.
type ViewedResource struct {
	Inner Resource
	View  string
}

func (r TypeResource) URIPart() string      { return r.Raw }
func (r IDResource) URIPart() string        { return r.ID }
func (r DirectionResource) URIPart() string { return r.Direction.String() }
func (r EndpointResource) URIPart() string  { return string(r.End) }
func (r ViewResource) URIPart() string      { return r.Name }
func (r ViewedResource) URIPart() string    { return r.Inner.URIPart() }

func (r TypedIDResource) URIPart() string {
	if r.Type.Raw == "" {
		return r.ID
	}
	return r.Type.Raw + "/" + r.ID
}

func (r RelatedResource) URIPart() string     { return r.Source.URIPart() + "/" + r.Raw }
func (r RelatedNodeResource) URIPart() string { return r.Related.URIPart() + "/" + r.ID }

func (r StaticRelationshipResource) URIPart() string {
	return r.Node.URIPart() + "/" + r.Direction.String()
}

func (r TypeRelationshipResource) URIPart() string {
	return r.Type.Raw + "/" + r.Direction.String()
}

func (r RelationshipEndpointResource) URIPart() string {
	return r.RelationshipID + "/" + string(r.End)
}

func (TypeResource) resource()                 {}
func (IDResource) resource()                   {}
func (TypedIDResource) resource()              {}
func (DirectionResource) resource()            {}
func (EndpointResource) resource()             {}
func (ViewResource) resource()                 {}
func (RelatedResource) resource()              {}
func (RelatedNodeResource) resource()          {}
func (StaticRelationshipResource) resource()   {}
func (TypeRelationshipResource) resource()     {}
func (RelationshipEndpointResource) resource() {}
func (ViewedResource) resource()               {}

// unview strips a trailing view.
func unview(r Resource) (Resource, string) {
	if v, ok := r.(ViewedResource); ok {
		return v.Inner, v.View
	}
	return r, ""
}

func bare(r Resource) Resource {
	inner, _ := unview(r)
	return inner
}
