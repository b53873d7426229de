package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter(t *testing.T) {
	nodes := []*Node{
		{ID: "1", Type: "Person", Props: map[string]any{"name": "Ada Lovelace", "age": 36.0}},
		{ID: "2", Type: "Person", Props: map[string]any{"name": "Alan Turing", "nick": ""}},
		{ID: "3", Type: "Robot", Props: map[string]any{"name": "Ada"}},
	}

	tests := []struct {
		name  string
		preds []Predicate
		want  []string
	}{
		{"no predicates", nil, []string{"1", "2", "3"}},
		{"type", []Predicate{TypeIs("Person")}, []string{"1", "2"}},
		{"exact string", []Predicate{Exact("name", "Ada")}, []string{"3"}},
		{"exact number", []Predicate{Exact("age", "36")}, []string{"1"}},
		{"exact empty value matches nothing", []Predicate{Exact("nick", "")}, nil},
		{"empty match", []Predicate{TypeIs("Person"), ExactEmpty("nick")}, []string{"2"}},
		{"loose is case insensitive", []Predicate{Loose("name", "ADA")}, []string{"1", "3"}},
		{"and semantics", []Predicate{TypeIs("Person"), Loose("name", "ada")}, []string{"1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filter(context.Background(), nodes, tt.preds, nil)
			require.NoError(t, err)
			var ids []string
			for _, n := range got {
				ids = append(ids, n.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestCoordinateGeocoder(t *testing.T) {
	c, err := CoordinateGeocoder{}.Geocode(context.Background(), "52.52, 13.405")
	require.NoError(t, err)
	assert.InDelta(t, 52.52, c.Latitude, 1e-9)
	assert.InDelta(t, 13.405, c.Longitude, 1e-9)

	_, err = CoordinateGeocoder{}.Geocode(context.Background(), "Main Street Springfield")
	assert.ErrorIs(t, err, ErrGeocode)
}

type geocoderFunc func(ctx context.Context, query string) (Coordinates, error)

func (f geocoderFunc) Geocode(ctx context.Context, query string) (Coordinates, error) {
	return f(ctx, query)
}

func TestFilterPropagatesGeocodeFailure(t *testing.T) {
	_, err := Filter(context.Background(), nil, []Predicate{Distance("nowhere", 10)}, nil)
	assert.ErrorIs(t, err, ErrGeocode)

	lookupFailed := errors.New("lookup service down")
	failing := geocoderFunc(func(context.Context, string) (Coordinates, error) {
		return Coordinates{}, lookupFailed
	})
	_, err = Filter(context.Background(), nil, []Predicate{Distance("Berlin", 10)}, failing)
	assert.ErrorIs(t, err, ErrGeocode)
	assert.ErrorIs(t, err, lookupFailed)
}

func TestHaversine(t *testing.T) {
	berlin := Coordinates{Latitude: 52.5200, Longitude: 13.4050}
	munich := Coordinates{Latitude: 48.1372, Longitude: 11.5756}
	assert.InDelta(t, 504, haversineKm(berlin, munich), 5)
	assert.InDelta(t, 0, haversineKm(berlin, berlin), 1e-9)
}
