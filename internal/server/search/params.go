package search

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Reserved request parameters. They steer paging, sorting and the search mode
// and are never treated as search fields.
const (
	ParamPage        = "page"
	ParamPageSize    = "pageSize"
	ParamSort        = "sort"
	ParamOrder       = "order"
	ParamLoose       = "loose"
	ParamLooseSearch = "looseSearch"
	ParamDistance    = "distance"
)

var reserved = map[string]bool{
	ParamPage:        true,
	ParamPageSize:    true,
	ParamSort:        true,
	ParamOrder:       true,
	ParamLoose:       true,
	ParamLooseSearch: true,
	ParamDistance:    true,
}

// IsReserved reports whether name is a reserved parameter.
func IsReserved(name string) bool {
	return reserved[name]
}

// Param is a single name=value pair from a query string.
type Param struct {
	Name  string
	Value string
}

// Params keeps query parameters in request order.
type Params []Param

// ParseParams splits a raw query string, keeping the order the client sent.
func ParseParams(rawQuery string) (Params, error) {
	var out Params
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		n, err := url.QueryUnescape(name)
		if err != nil {
			return nil, fmt.Errorf("invalid query parameter %q: %w", name, err)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", n, err)
		}
		out = append(out, Param{Name: n, Value: v})
	}
	return out, nil
}

// ParamsOf builds Params from name, value pairs.
func ParamsOf(kv ...string) Params {
	out := make(Params, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, Param{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

// Get returns the first value of name.
func (p Params) Get(name string) (string, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return "", false
}

// Int returns the first value of name as an int, or def when absent or blank.
func (p Params) Int(name string, def int) (int, error) {
	v, ok := p.Get(name)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parameter %s must be an integer: %w", name, err)
	}
	return n, nil
}

// Loose reports whether substring search was requested.
func (p Params) Loose() bool {
	for _, name := range []string{ParamLoose, ParamLooseSearch} {
		if v, ok := p.Get(name); ok && strings.TrimSpace(v) == "1" {
			return true
		}
	}
	return false
}
