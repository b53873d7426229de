package graph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// PredicateKind enumerates the supported search predicates.
type PredicateKind int

const (
	PredicateType PredicateKind = iota
	PredicateExact
	PredicateLoose
	PredicateDistance
)

// Predicate filters objects on a single property. A list of predicates is an
// implicit AND.
type Predicate struct {
	Kind  PredicateKind
	Key   string
	Value string

	// MatchEmpty makes an exact predicate with an empty value match objects
	// where the key is missing or empty.
	MatchEmpty bool

	// Radius in kilometres for distance predicates; Value holds the search key.
	Radius float64
}

func TypeIs(typeName string) Predicate {
	return Predicate{Kind: PredicateType, Key: KeyType, Value: typeName}
}

func Exact(key, value string) Predicate {
	return Predicate{Kind: PredicateExact, Key: key, Value: value}
}

// ExactEmpty matches objects whose key is missing or empty.
func ExactEmpty(key string) Predicate {
	return Predicate{Kind: PredicateExact, Key: key, MatchEmpty: true}
}

func Loose(key, value string) Predicate {
	return Predicate{Kind: PredicateLoose, Key: key, Value: value}
}

func Distance(searchKey string, radius float64) Predicate {
	return Predicate{Kind: PredicateDistance, Value: searchKey, Radius: radius}
}

func (p Predicate) String() string {
	switch p.Kind {
	case PredicateType:
		return "type=" + p.Value
	case PredicateExact:
		return p.Key + "==" + strconv.Quote(p.Value)
	case PredicateLoose:
		return p.Key + "~" + strconv.Quote(p.Value)
	default:
		return fmt.Sprintf("distance(%q)<=%gkm", p.Value, p.Radius)
	}
}

// TypeOf returns the type named by the first type predicate, if any.
func TypeOf(preds []Predicate) (string, bool) {
	for _, p := range preds {
		if p.Kind == PredicateType {
			return p.Value, true
		}
	}
	return "", false
}

// Property keys holding node coordinates for distance predicates.
const (
	KeyLatitude  = "latitude"
	KeyLongitude = "longitude"
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Geocoder resolves the free text key of a distance predicate.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Coordinates, error)
}

// CoordinateGeocoder accepts queries of the form "<lat> <lon>" or "<lat>,<lon>".
type CoordinateGeocoder struct{}

func (CoordinateGeocoder) Geocode(_ context.Context, query string) (Coordinates, error) {
	fields := strings.FieldsFunc(query, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) != 2 {
		return Coordinates{}, fmt.Errorf("%w %q", ErrGeocode, query)
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("%w %q: %w", ErrGeocode, query, err)
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("%w %q: %w", ErrGeocode, query, err)
	}
	return Coordinates{Latitude: lat, Longitude: lon}, nil
}

// Filter returns the nodes matching every predicate, keeping their order.
func Filter(ctx context.Context, nodes []*Node, preds []Predicate, geo Geocoder) ([]*Node, error) {
	origins := make(map[int]Coordinates)
	for i, p := range preds {
		if p.Kind != PredicateDistance {
			continue
		}
		if geo == nil {
			geo = CoordinateGeocoder{}
		}
		c, err := geo.Geocode(ctx, p.Value)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, ErrGeocode) {
				err = fmt.Errorf("%w %q: %w", ErrGeocode, p.Value, err)
			}
			return nil, err
		}
		origins[i] = c
	}

	var out []*Node
	for _, n := range nodes {
		if matchAll(n, preds, origins) {
			out = append(out, n)
		}
	}
	return out, nil
}

func matchAll(obj Object, preds []Predicate, origins map[int]Coordinates) bool {
	for i, p := range preds {
		if !matchOne(obj, p, origins[i]) {
			return false
		}
	}
	return true
}

func matchOne(obj Object, p Predicate, origin Coordinates) bool {
	switch p.Kind {
	case PredicateType:
		return obj.ObjectType() == p.Value
	case PredicateExact:
		v, ok := obj.Property(p.Key)
		s := FormatValue(v)
		if p.MatchEmpty {
			return !ok || v == nil || s == ""
		}
		if p.Value == "" {
			return false
		}
		return ok && s == p.Value
	case PredicateLoose:
		v, _ := obj.Property(p.Key)
		return strings.Contains(strings.ToLower(FormatValue(v)), strings.ToLower(p.Value))
	case PredicateDistance:
		lat, ok1 := floatProperty(obj, KeyLatitude)
		lon, ok2 := floatProperty(obj, KeyLongitude)
		if !ok1 || !ok2 {
			return false
		}
		return haversineKm(origin, Coordinates{Latitude: lat, Longitude: lon}) <= p.Radius
	}
	return false
}

// FormatValue renders a property value the way search predicates compare it.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}

func floatProperty(obj Object, key string) (float64, bool) {
	v, ok := obj.Property(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

const earthRadiusKm = 6371.0

func haversineKm(a, b Coordinates) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(b.Latitude - a.Latitude)
	dLon := rad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Latitude))*math.Cos(rad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
