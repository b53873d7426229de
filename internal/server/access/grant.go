// Package access looks up the grant governing a resource signature and decides
// whether a request method may proceed.
package access

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/schema"
)

var ErrForbidden = errors.New("forbidden")

// Flag is one permission bit of a grant.
type Flag int

const (
	FlagGet Flag = 1 << iota
	FlagPut
	FlagPost
	FlagDelete
	FlagHead
	FlagOptions
)

// FlagsAll permits every method.
const FlagsAll = FlagGet | FlagPut | FlagPost | FlagDelete | FlagHead | FlagOptions

var methodFlags = map[string]Flag{
	http.MethodGet:     FlagGet,
	http.MethodPut:     FlagPut,
	http.MethodPost:    FlagPost,
	http.MethodDelete:  FlagDelete,
	http.MethodHead:    FlagHead,
	http.MethodOptions: FlagOptions,
}

// FlagFor returns the permission bit of an HTTP method.
func FlagFor(method string) (Flag, bool) {
	f, ok := methodFlags[strings.ToUpper(method)]
	return f, ok
}

// Grant is a ResourceAccess node.
type Grant struct {
	ID        string
	Signature string
	Flags     Flag
}

// Allows reports whether the grant permits method.
func (g *Grant) Allows(method string) bool {
	f, ok := FlagFor(method)
	return ok && g.Flags&f != 0
}

// Props returns the properties that store g as a node.
func (g *Grant) Props() *graph.PropertySet {
	return graph.PropertySetOf(schema.KeySignature, g.Signature, schema.KeyFlags, int(g.Flags))
}

func grantFromNode(n *graph.Node) (*Grant, error) {
	sig, _ := n.Props[schema.KeySignature].(string)
	flags, err := flagValue(n.Props[schema.KeyFlags])
	if err != nil {
		return nil, fmt.Errorf("grant %s: %w", n.ID, err)
	}
	return &Grant{ID: n.ID, Signature: sig, Flags: flags}, nil
}

func flagValue(v any) (Flag, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int:
		return Flag(t), nil
	case int64:
		return Flag(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("flags must be an integer, got %v", t)
		}
		return Flag(t), nil
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("flags must be an integer: %w", err)
		}
		return Flag(n), nil
	}
	return 0, fmt.Errorf("flags has unsupported type %T", v)
}

// DefaultPolicy decides requests for signatures without a usable grant.
type DefaultPolicy string

const (
	Allow DefaultPolicy = "allow"
	Deny  DefaultPolicy = "deny"
)
