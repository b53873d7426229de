package schema

import (
	"context"

	"github.com/systemshift/graphrest/internal/server/graph"
)

// IndexKind names the index a property is searchable in.
type IndexKind string

const (
	IndexKeyword  IndexKind = "keyword"
	IndexFulltext IndexKind = "fulltext"
	IndexBoth     IndexKind = "both"
)

// Kind tells node types from relationship types.
type Kind string

const (
	KindNode         Kind = "node"
	KindRelationship Kind = "relationship"
)

// Bookkeeping keys present on every type.
const (
	KeyCreatedDate      = "createdDate"
	KeyLastModifiedDate = "lastModifiedDate"

	// TimestampLayout has a fixed width so stored timestamps sort as strings.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Built-in grant type.
const (
	ResourceAccessType = "ResourceAccess"
	KeySignature       = "signature"
	KeyFlags           = "flags"
)

// PropertyKey describes a named attribute of a type and its write policy.
type PropertyKey struct {
	Name             string    `yaml:"name"`
	ReadOnly         bool      `yaml:"readOnly"`
	WriteOnce        bool      `yaml:"writeOnce"`
	Indexed          bool      `yaml:"indexed"`
	IndexedWhenEmpty bool      `yaml:"indexedWhenEmpty"`
	Index            IndexKind `yaml:"index"`
}

// InIndex reports whether the key is searchable in the given index.
func (k PropertyKey) InIndex(kind IndexKind) bool {
	if !k.Indexed {
		return false
	}
	switch k.Index {
	case "", IndexBoth:
		return true
	}
	return k.Index == kind
}

// Immutable reports whether the key may only be written on creation.
func (k PropertyKey) Immutable() bool {
	return k.ReadOnly || k.WriteOnce
}

// RelationClass describes how a node type reaches a related node type.
type RelationClass struct {
	Property  string          // path segment naming the relation, e.g. "friends"
	Target    string          // related node type
	RelType   string          // relationship type
	Direction graph.Direction // seen from the source node
}

// Type is a registered node or relationship type.
type Type struct {
	Name         string
	Kind         Kind
	Properties   []PropertyKey
	Relations    []RelationClass
	Views        map[string][]string
	DefaultSort  string
	DefaultOrder string
}

// Property returns the key named name.
func (t *Type) Property(name string) (PropertyKey, bool) {
	for _, k := range t.Properties {
		if k.Name == name {
			return k, true
		}
	}
	return PropertyKey{}, false
}

// Mutator is the write surface handed to hooks and transformations. It is
// implemented by the mutation transaction.
type Mutator interface {
	SetProperty(ctx context.Context, obj graph.Object, key string, value any) error
}

// Transformation runs against every newly created object of a type, inside the
// creating transaction. An error aborts that transaction.
type Transformation interface {
	Apply(ctx context.Context, m Mutator, obj graph.Object) error
}

// TransformationFunc adapts a function to Transformation.
type TransformationFunc func(ctx context.Context, m Mutator, obj graph.Object) error

func (f TransformationFunc) Apply(ctx context.Context, m Mutator, obj graph.Object) error {
	return f(ctx, m, obj)
}

// Hook is a lifecycle notification for an object of a registered type.
type Hook func(ctx context.Context, m Mutator, obj graph.Object) error

func builtinKeys() []PropertyKey {
	return []PropertyKey{
		{Name: graph.KeyID, ReadOnly: true, Indexed: true, Index: IndexKeyword},
		{Name: graph.KeyType, ReadOnly: true, Indexed: true, Index: IndexKeyword},
		{Name: KeyCreatedDate, ReadOnly: true, Indexed: true, Index: IndexKeyword},
		{Name: KeyLastModifiedDate, ReadOnly: true, Indexed: true, Index: IndexKeyword},
	}
}

func resourceAccessDef() Type {
	return Type{
		Name: ResourceAccessType,
		Kind: KindNode,
		Properties: []PropertyKey{
			{Name: KeySignature, Indexed: true, Index: IndexKeyword},
			{Name: KeyFlags, Indexed: true, Index: IndexKeyword},
		},
		Views: map[string][]string{
			"public": {KeySignature, KeyFlags},
		},
		DefaultSort: KeySignature,
	}
}
