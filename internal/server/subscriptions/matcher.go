package subscriptions

import (
	"reflect"
	"slices"
	"strings"
)

// Match reports whether event satisfies every criterion of pattern. A list
// value under Match accepts any of its elements.
func Match(event Event, pattern Pattern) bool {
	if len(pattern.EventTypes) > 0 && !slices.Contains(pattern.EventTypes, event.Type) {
		return false
	}
	if len(pattern.ObjectTypes) > 0 && !slices.Contains(pattern.ObjectTypes, event.ObjectType) {
		return false
	}
	for key, want := range pattern.Match {
		got, ok := event.Properties[key]
		if !ok {
			return false
		}
		if alternatives, isList := want.([]any); isList {
			if !slices.ContainsFunc(alternatives, func(alt any) bool { return sameValue(alt, got) }) {
				return false
			}
			continue
		}
		if !sameValue(want, got) {
			return false
		}
	}
	return true
}

// sameValue compares property values the way they arrive from decoded JSON
// or YAML: strings case-insensitively, numbers by value.
func sameValue(want, got any) bool {
	if ws, ok := want.(string); ok {
		gs, ok := got.(string)
		return ok && strings.EqualFold(ws, gs)
	}
	wn, ok1 := number(want)
	gn, ok2 := number(got)
	if ok1 && ok2 {
		return wn == gn
	}
	return reflect.DeepEqual(want, got)
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
