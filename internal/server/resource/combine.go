package resource

import "fmt"

// OutcomeKind classifies the result of combining two resources.
type OutcomeKind int

const (
	// Undefined means the pair has no combination; both stay on the stack.
	Undefined OutcomeKind = iota
	Combined
	Incompatible
)

type Outcome struct {
	Kind     OutcomeKind
	Resource Resource
	Err      error
}

func combined(r Resource) Outcome { return Outcome{Kind: Combined, Resource: r} }

func incompatible(a, b Resource) Outcome {
	return Outcome{Kind: Incompatible, Err: fmt.Errorf("%q cannot be followed by %q", a.URIPart(), b.URIPart())}
}

// Combine merges a with the resource b that follows it. It is defined for
// every pair of variants.
func Combine(a, b Resource) Outcome {
	if v, ok := b.(ViewResource); ok {
		switch a.(type) {
		case ViewResource, ViewedResource:
			return incompatible(a, b)
		}
		return combined(ViewedResource{Inner: a, View: v.Name})
	}

	switch x := a.(type) {
	case ViewResource, ViewedResource, DirectionResource, EndpointResource:
		return incompatible(a, b)

	case RelatedNodeResource, StaticRelationshipResource, TypeRelationshipResource, RelationshipEndpointResource:
		return incompatible(a, b)

	case TypeResource:
		switch y := b.(type) {
		case IDResource:
			return combined(TypedIDResource{Type: x, ID: y.ID})
		case DirectionResource:
			return combined(TypeRelationshipResource{Type: x, Direction: y.Direction})
		case TypeResource:
			return incompatible(a, b)
		}

	case IDResource:
		node := TypedIDResource{ID: x.ID}
		switch y := b.(type) {
		case TypeResource:
			return combined(RelatedResource{Source: node, Raw: y.Raw})
		case DirectionResource:
			return combined(StaticRelationshipResource{Node: node, Direction: y.Direction})
		case EndpointResource:
			return combined(RelationshipEndpointResource{RelationshipID: x.ID, End: y.End})
		case IDResource:
			return incompatible(a, b)
		}

	case TypedIDResource:
		switch y := b.(type) {
		case TypeResource:
			return combined(RelatedResource{Source: x, Raw: y.Raw})
		case DirectionResource:
			return combined(StaticRelationshipResource{Node: x, Direction: y.Direction})
		}

	case RelatedResource:
		if y, ok := b.(IDResource); ok {
			return combined(RelatedNodeResource{Related: x, ID: y.ID})
		}
	}
	return Outcome{Kind: Undefined}
}
