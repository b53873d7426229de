// Package search turns request parameters into graph predicates.
package search

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/schema"
)

var (
	ErrIllegalSearchField = errors.New("illegal search field")
	ErrInvalidDistance    = errors.New("invalid distance")
)

// IllegalSearchFieldError lists every parameter that is neither reserved nor
// searchable for the requested type.
type IllegalSearchFieldError struct {
	Type   string
	Fields []string
}

func (e *IllegalSearchFieldError) Error() string {
	return fmt.Sprintf("search fields not allowed on %s: %s", e.Type, strings.Join(e.Fields, ", "))
}

func (e *IllegalSearchFieldError) Unwrap() error { return ErrIllegalSearchField }

// Builder builds predicates against the registry's searchable sets.
type Builder struct {
	registry *schema.Registry
}

func NewBuilder(reg *schema.Registry) *Builder {
	return &Builder{registry: reg}
}

// Build returns the predicates for a search on typeName. The type predicate
// itself is not included.
func (b *Builder) Build(typeName string, params Params) ([]graph.Predicate, error) {
	loose := params.Loose()
	kind := schema.IndexKeyword
	if loose {
		kind = schema.IndexFulltext
	}
	searchable := b.registry.SearchableProperties(typeName, kind)

	var illegal []string
	seen := make(map[string]bool)
	for _, p := range params {
		if IsReserved(p.Name) || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		if _, ok := searchable[p.Name]; !ok {
			illegal = append(illegal, p.Name)
		}
	}
	if len(illegal) > 0 {
		return nil, &IllegalSearchFieldError{Type: typeName, Fields: illegal}
	}

	if raw, ok := params.Get(ParamDistance); ok && strings.TrimSpace(raw) != "" {
		return distancePredicate(raw, params)
	}

	var preds []graph.Predicate
	used := make(map[string]bool)
	for _, p := range params {
		if IsReserved(p.Name) || used[p.Name] {
			continue
		}
		used[p.Name] = true

		if loose {
			preds = append(preds, graph.Loose(p.Name, stripQuotes(p.Value)))
			continue
		}
		if p.Value == "" && searchable[p.Name].IndexedWhenEmpty {
			preds = append(preds, graph.ExactEmpty(p.Name))
			continue
		}
		preds = append(preds, graph.Exact(p.Name, p.Value))
	}
	return preds, nil
}

func distancePredicate(raw string, params Params) ([]graph.Predicate, error) {
	radius, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || radius < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDistance, raw)
	}
	var words []string
	for _, p := range params {
		if IsReserved(p.Name) || p.Value == "" {
			continue
		}
		words = append(words, p.Value)
	}
	return []graph.Predicate{graph.Distance(strings.Join(words, " "), radius)}, nil
}

// stripQuotes removes characters that would be read as query syntax by a
// fulltext index.
func stripQuotes(s string) string {
	return strings.NewReplacer(`"`, "", "'", "").Replace(s)
}
