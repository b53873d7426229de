package resource

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphrest/internal/server/graph"
)

const (
	idA = "0123456789abcdef0123456789abcdef"
	idB = "fedcba9876543210fedcba9876543210"
)

// lettersID is a 32 character id that the type pattern would also accept.
var lettersID = strings.Repeat("ab", 16)

func TestMatchOrder(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		seg  string
		want Resource
	}{
		{idA, IDResource{ID: idA}},
		{lettersID, IDResource{ID: lettersID}},
		{"in", DirectionResource{Direction: graph.Incoming}},
		{"out", DirectionResource{Direction: graph.Outgoing}},
		{"start", EndpointResource{End: EndpointStart}},
		{"all", ViewResource{Name: "all"}},
		{"persons", TypeResource{Raw: "persons"}},
		{"resource_access", TypeResource{Raw: "resource_access"}},
		{"42", IDResource{ID: "42"}},
	}
	for _, tt := range tests {
		got, ok := Match(table, tt.seg)
		require.True(t, ok, tt.seg)
		assert.Equal(t, tt.want, got, tt.seg)
	}

	_, ok := Match(table, "not-a-segment!")
	assert.False(t, ok)
}

func TestReduce(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		path string
		want Resource
	}{
		{"/persons", TypeResource{Raw: "persons"}},
		{"/persons/" + idA, TypedIDResource{Type: TypeResource{Raw: "persons"}, ID: idA}},
		{"/" + idA, IDResource{ID: idA}},
		{"/Person/" + lettersID, TypedIDResource{Type: TypeResource{Raw: "Person"}, ID: lettersID}},
		{"/persons/" + lettersID + "/friends", RelatedResource{
			Source: TypedIDResource{Type: TypeResource{Raw: "persons"}, ID: lettersID},
			Raw:    "friends",
		}},
		{"/persons/" + idA + "/friends", RelatedResource{
			Source: TypedIDResource{Type: TypeResource{Raw: "persons"}, ID: idA},
			Raw:    "friends",
		}},
		{"/" + idA + "/friends/" + idB, RelatedNodeResource{
			Related: RelatedResource{Source: TypedIDResource{ID: idA}, Raw: "friends"},
			ID:      idB,
		}},
		{"/persons/" + idA + "/out", StaticRelationshipResource{
			Node:      TypedIDResource{Type: TypeResource{Raw: "persons"}, ID: idA},
			Direction: graph.Outgoing,
		}},
		{"/persons/in", TypeRelationshipResource{Type: TypeResource{Raw: "persons"}, Direction: graph.Incoming}},
		{"/" + idA + "/end", RelationshipEndpointResource{RelationshipID: idA, End: EndpointEnd}},
		{"/persons/all", ViewedResource{Inner: TypeResource{Raw: "persons"}, View: "all"}},
		{"/persons/" + idA + "/friends/ids", ViewedResource{
			Inner: RelatedResource{Source: TypedIDResource{Type: TypeResource{Raw: "persons"}, ID: idA}, Raw: "friends"},
			View:  "ids",
		}},
	}
	for _, tt := range tests {
		got, err := Reduce(table, SplitPath(tt.path))
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestReduceFailures(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		path   string
		status int
	}{
		{"/", http.StatusNotFound},
		{"/persons/bad-segment!", http.StatusNotFound},
		{"/persons/companies", http.StatusBadRequest},
		{"/" + idA + "/" + idB, http.StatusBadRequest},
		{"/persons/all/ids", http.StatusBadRequest},
		{"/persons/" + idA + "/out/" + idB, http.StatusBadRequest},
		{"/in/persons", http.StatusBadRequest},
	}
	for _, tt := range tests {
		_, err := Reduce(table, SplitPath(tt.path))
		require.Error(t, err, tt.path)
		assert.True(t, errors.Is(err, ErrUnresolvablePath), tt.path)

		var pe *PathError
		require.ErrorAs(t, err, &pe, tt.path)
		assert.Equal(t, tt.status, pe.Status, tt.path)
	}
}

func TestReduceLeavesTrailingSegment(t *testing.T) {
	// a typed id followed by another id has no combination and stays stacked
	_, err := Reduce(DefaultTable(), []string{"persons", idA, idB})
	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadRequest, pe.Status)
	assert.Equal(t, idB, pe.Segment)
}

func TestCombineIsTotal(t *testing.T) {
	samples := []Resource{
		TypeResource{Raw: "persons"},
		IDResource{ID: idA},
		TypedIDResource{Type: TypeResource{Raw: "persons"}, ID: idA},
		DirectionResource{Direction: graph.Outgoing},
		EndpointResource{End: EndpointStart},
		ViewResource{Name: "all"},
		RelatedResource{Source: TypedIDResource{ID: idA}, Raw: "friends"},
		RelatedNodeResource{Related: RelatedResource{Source: TypedIDResource{ID: idA}, Raw: "friends"}, ID: idB},
		StaticRelationshipResource{Node: TypedIDResource{ID: idA}, Direction: graph.Incoming},
		TypeRelationshipResource{Type: TypeResource{Raw: "persons"}, Direction: graph.Incoming},
		RelationshipEndpointResource{RelationshipID: idA, End: EndpointEnd},
		ViewedResource{Inner: TypeResource{Raw: "persons"}, View: "all"},
	}
	for _, a := range samples {
		for _, b := range samples {
			out := Combine(a, b)
			switch out.Kind {
			case Combined:
				assert.NotNil(t, out.Resource, "%T + %T", a, b)
			case Incompatible:
				assert.Error(t, out.Err, "%T + %T", a, b)
			case Undefined:
				assert.Nil(t, out.Resource, "%T + %T", a, b)
			default:
				t.Fatalf("unknown outcome %d for %T + %T", out.Kind, a, b)
			}
		}
	}
}

func TestCombineViews(t *testing.T) {
	out := Combine(IDResource{ID: idA}, ViewResource{Name: "public"})
	require.Equal(t, Combined, out.Kind)
	assert.Equal(t, ViewedResource{Inner: IDResource{ID: idA}, View: "public"}, out.Resource)

	out = Combine(ViewedResource{Inner: IDResource{ID: idA}, View: "public"}, TypeResource{Raw: "friends"})
	assert.Equal(t, Incompatible, out.Kind)
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"persons", idA}, SplitPath("/persons//"+idA+"/"))
	assert.Empty(t, SplitPath("/"))
}
