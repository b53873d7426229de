package resource

import (
	"regexp"

	"github.com/systemshift/graphrest/internal/server/graph"
)

// Factory builds the resource for a matched segment.
type Factory func(segment string) Resource

// Pattern binds a full-match regular expression to a factory.
type Pattern struct {
	Name    string
	Regexp  *regexp.Regexp
	Factory Factory
}

// NewPattern compiles expr anchored at both ends.
func NewPattern(name, expr string, f Factory) Pattern {
	return Pattern{Name: name, Regexp: regexp.MustCompile(`^(?:` + expr + `)$`), Factory: f}
}

// DefaultTable returns the segment patterns in match order. The 32 character
// id pattern comes first so an opaque id never reads as a type name.
func DefaultTable() []Pattern {
	return []Pattern{
		NewPattern("uuid", `[a-zA-Z0-9]{32}`, func(s string) Resource { return IDResource{ID: s} }),
		NewPattern("direction", `in|out`, func(s string) Resource {
			if s == "in" {
				return DirectionResource{Direction: graph.Incoming}
			}
			return DirectionResource{Direction: graph.Outgoing}
		}),
		NewPattern("endpoint", `start|end`, func(s string) Resource { return EndpointResource{End: Endpoint(s)} }),
		NewPattern("view", `public|protected|private|owner|admin|all|ids|ui|html`, func(s string) Resource {
			return ViewResource{Name: s}
		}),
		NewPattern("type", `[a-zA-Z_]+`, func(s string) Resource { return TypeResource{Raw: s} }),
		NewPattern("id", `[0-9]+`, func(s string) Resource { return IDResource{ID: s} }),
	}
}

// Match returns the resource of the first pattern matching segment.
func Match(table []Pattern, segment string) (Resource, bool) {
	for _, p := range table {
		if p.Regexp.MatchString(segment) {
			return p.Factory(segment), true
		}
	}
	return nil, false
}
