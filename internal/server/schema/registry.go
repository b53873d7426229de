package schema

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Registry holds the type metadata: property policies, searchable sets, views,
// relation classes, and the per-type hooks and transformations. It is built at
// startup and only read while requests are served.
type Registry struct {
	types           map[string]*Type
	order           []string
	transformations map[string][]Transformation
	onInstantiation map[string][]Hook
	onModification  map[string][]Hook
}

// NewRegistry returns a registry containing the built-in ResourceAccess type.
func NewRegistry() *Registry {
	r := &Registry{
		types:           make(map[string]*Type),
		transformations: make(map[string][]Transformation),
		onInstantiation: make(map[string][]Hook),
		onModification:  make(map[string][]Hook),
	}
	if err := r.Register(resourceAccessDef()); err != nil {
		panic(err)
	}
	return r
}

// Register adds a type. The bookkeeping keys are prepended to its properties.
func (r *Registry) Register(t Type) error {
	if t.Name == "" {
		return fmt.Errorf("type name is required")
	}
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("type %s registered twice", t.Name)
	}
	switch t.Kind {
	case "":
		t.Kind = KindNode
	case KindNode, KindRelationship:
	default:
		return fmt.Errorf("type %s: unknown kind %q", t.Name, t.Kind)
	}

	props := builtinKeys()
	seen := make(map[string]bool)
	for _, k := range props {
		seen[k.Name] = true
	}
	for _, k := range t.Properties {
		if k.Name == "" {
			return fmt.Errorf("type %s: property without name", t.Name)
		}
		if seen[k.Name] {
			return fmt.Errorf("type %s: property %s declared twice or shadows a built-in key", t.Name, k.Name)
		}
		switch k.Index {
		case "", IndexKeyword, IndexFulltext, IndexBoth:
		default:
			return fmt.Errorf("type %s: property %s: unknown index %q", t.Name, k.Name, k.Index)
		}
		seen[k.Name] = true
		props = append(props, k)
	}
	t.Properties = props
	t.Relations = slices.Clone(t.Relations)

	r.types[t.Name] = &t
	r.order = append(r.order, t.Name)
	return nil
}

// Type returns the registered type named name.
func (r *Registry) Type(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Types returns the registered type names in registration order.
func (r *Registry) Types() []string {
	return slices.Clone(r.order)
}

// ResolveType maps a raw path segment ("persons", "test_ones", "Person") to a
// registered type name.
func (r *Registry) ResolveType(raw string) (string, bool) {
	if _, ok := r.types[raw]; ok {
		return raw, true
	}
	name := NormalizeEntityName(raw)
	if _, ok := r.types[name]; ok {
		return name, true
	}
	return "", false
}

// PropertyKey looks up key on typeName. Unregistered types still know the
// bookkeeping keys.
func (r *Registry) PropertyKey(typeName, key string) (PropertyKey, bool) {
	if t, ok := r.types[typeName]; ok {
		return t.Property(key)
	}
	for _, k := range builtinKeys() {
		if k.Name == key {
			return k, true
		}
	}
	return PropertyKey{}, false
}

// SearchableProperties returns the keys of typeName searchable in index kind.
func (r *Registry) SearchableProperties(typeName string, kind IndexKind) map[string]PropertyKey {
	out := make(map[string]PropertyKey)
	t, ok := r.types[typeName]
	if !ok {
		return out
	}
	for _, k := range t.Properties {
		if k.InIndex(kind) {
			out[k.Name] = k
		}
	}
	return out
}

// AddTransformation appends a post-creation transformation for typeName.
func (r *Registry) AddTransformation(typeName string, tr Transformation) {
	r.transformations[typeName] = append(r.transformations[typeName], tr)
}

// PostCreationTransformations returns the transformations of typeName in
// registration order.
func (r *Registry) PostCreationTransformations(typeName string) []Transformation {
	return slices.Clone(r.transformations[typeName])
}

// OnInstantiation registers a hook fired for each newly created object of typeName.
func (r *Registry) OnInstantiation(typeName string, h Hook) {
	r.onInstantiation[typeName] = append(r.onInstantiation[typeName], h)
}

func (r *Registry) InstantiationHooks(typeName string) []Hook {
	return slices.Clone(r.onInstantiation[typeName])
}

// OnModification registers a hook fired for each modified, pre-existing object of typeName.
func (r *Registry) OnModification(typeName string, h Hook) {
	r.onModification[typeName] = append(r.onModification[typeName], h)
}

func (r *Registry) ModificationHooks(typeName string) []Hook {
	return slices.Clone(r.onModification[typeName])
}

// RelationClassFor returns the relation from source to a node of type target.
func (r *Registry) RelationClassFor(source, target string) (RelationClass, bool) {
	t, ok := r.types[source]
	if !ok {
		return RelationClass{}, false
	}
	for _, rc := range t.Relations {
		if rc.Target == target {
			return rc, true
		}
	}
	return RelationClass{}, false
}

// RelationClassForProperty resolves a raw path segment following a node of
// type source: first as a relation property name, then as a target type.
func (r *Registry) RelationClassForProperty(source, raw string) (RelationClass, bool) {
	t, ok := r.types[source]
	if !ok {
		return RelationClass{}, false
	}
	for _, rc := range t.Relations {
		if rc.Property == raw {
			return rc, true
		}
	}
	if target, ok := r.ResolveType(raw); ok {
		return r.RelationClassFor(source, target)
	}
	return RelationClass{}, false
}

// View returns the property names of view on typeName.
func (r *Registry) View(typeName, view string) ([]string, bool) {
	t, ok := r.types[typeName]
	if !ok {
		return nil, false
	}
	keys, ok := t.Views[view]
	return keys, ok
}

// NormalizeEntityName turns a URI segment into a type name: underscore
// separated words are camel cased and the last word is singularized, so
// "test_ones" becomes "TestOne" and "persons" becomes "Person".
func NormalizeEntityName(raw string) string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '_' })
	if len(parts) == 0 {
		return raw
	}
	parts[len(parts)-1] = singular(parts[len(parts)-1])

	var b strings.Builder
	for _, p := range parts {
		runes := []rune(p)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

func singular(word string) string {
	lower := strings.ToLower(word)
	switch {
	case strings.HasSuffix(lower, "ies") && len(word) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(lower, "sses"), strings.HasSuffix(lower, "xes"), strings.HasSuffix(lower, "ches"), strings.HasSuffix(lower, "shes"):
		return word[:len(word)-2]
	case strings.HasSuffix(lower, "ss"):
		return word
	case strings.HasSuffix(lower, "s") && len(word) > 1:
		return word[:len(word)-1]
	}
	return word
}
