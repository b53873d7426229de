package graph

import (
	"maps"
	"strings"

	"github.com/google/uuid"
)

// Direction selects which relationships of a node are traversed.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "out"
	case Incoming:
		return "in"
	default:
		return "both"
	}
}

// Reserved property keys held outside the property map by every backend.
const (
	KeyID   = "id"
	KeyType = "type"
)

// Object is a node or a relationship read from a Store.
type Object interface {
	ObjectID() string
	ObjectType() string
	Properties() map[string]any
	Property(key string) (any, bool)
	IsRelationship() bool
}

// Node is a graph vertex.
type Node struct {
	ID    string
	Type  string
	Props map[string]any
}

func (n *Node) ObjectID() string           { return n.ID }
func (n *Node) ObjectType() string         { return n.Type }
func (n *Node) Properties() map[string]any { return n.Props }
func (n *Node) IsRelationship() bool       { return false }

func (n *Node) Property(key string) (any, bool) {
	switch key {
	case KeyID:
		return n.ID, true
	case KeyType:
		return n.Type, true
	}
	v, ok := n.Props[key]
	return v, ok
}

// Clone returns a deep copy of the node's top-level property map.
func (n *Node) Clone() *Node {
	c := *n
	c.Props = cloneProps(n.Props)
	return &c
}

// Relationship is a directed, typed edge from StartID to EndID.
type Relationship struct {
	ID      string
	Type    string
	StartID string
	EndID   string
	Props   map[string]any
}

func (r *Relationship) ObjectID() string           { return r.ID }
func (r *Relationship) ObjectType() string         { return r.Type }
func (r *Relationship) Properties() map[string]any { return r.Props }
func (r *Relationship) IsRelationship() bool       { return true }

func (r *Relationship) Property(key string) (any, bool) {
	switch key {
	case KeyID:
		return r.ID, true
	case KeyType:
		return r.Type, true
	}
	v, ok := r.Props[key]
	return v, ok
}

func (r *Relationship) Clone() *Relationship {
	c := *r
	c.Props = cloneProps(r.Props)
	return &c
}

// Other returns the endpoint of r that is not nodeID.
func (r *Relationship) Other(nodeID string) string {
	if r.StartID == nodeID {
		return r.EndID
	}
	return r.StartID
}

// NewID returns a 32 character opaque identifier (a uuid without dashes).
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func cloneProps(p map[string]any) map[string]any {
	if p == nil {
		return make(map[string]any)
	}
	return maps.Clone(p)
}
