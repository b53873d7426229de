package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/schema"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(schema.Type{
		Name: "Person",
		Properties: []schema.PropertyKey{
			{Name: "name", Indexed: true},
			{Name: "email", Indexed: true, Index: schema.IndexKeyword},
			{Name: "bio", Indexed: true, Index: schema.IndexFulltext},
			{Name: "nickname", Indexed: true, Index: schema.IndexKeyword, IndexedWhenEmpty: true},
			{Name: "street", Indexed: true, Index: schema.IndexKeyword},
			{Name: "city", Indexed: true, Index: schema.IndexKeyword},
			{Name: "password"},
		},
	}))
	return NewBuilder(reg)
}

func TestBuildExact(t *testing.T) {
	b := newTestBuilder(t)

	preds, err := b.Build("Person", ParamsOf("name", "Ada", "page", "2", "sort", "name", "email", "ada@example.com"))
	require.NoError(t, err)
	assert.Equal(t, []graph.Predicate{
		graph.Exact("name", "Ada"),
		graph.Exact("email", "ada@example.com"),
	}, preds)
}

func TestBuildEmptyValues(t *testing.T) {
	b := newTestBuilder(t)

	preds, err := b.Build("Person", ParamsOf("nickname", "", "name", ""))
	require.NoError(t, err)
	assert.Equal(t, []graph.Predicate{
		graph.ExactEmpty("nickname"),
		graph.Exact("name", ""),
	}, preds)
}

func TestBuildLooseStripsQuotes(t *testing.T) {
	b := newTestBuilder(t)

	preds, err := b.Build("Person", ParamsOf("looseSearch", "1", "name", `O'Brien "Jr"`))
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, graph.PredicateLoose, preds[0].Kind)
	assert.Equal(t, "OBrien Jr", preds[0].Value)

	preds, err = b.Build("Person", ParamsOf("loose", "1", "bio", `"quoted"`))
	require.NoError(t, err)
	assert.Equal(t, []graph.Predicate{graph.Loose("bio", "quoted")}, preds)
}

func TestBuildCollectsEveryIllegalField(t *testing.T) {
	b := newTestBuilder(t)

	_, err := b.Build("Person", ParamsOf("foo", "1", "name", "Ada", "password", "x", "bar", "2", "foo", "3"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalSearchField)

	var illegal *IllegalSearchFieldError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, []string{"foo", "password", "bar"}, illegal.Fields)
	assert.Equal(t, "Person", illegal.Type)
}

func TestBuildLooseUsesFulltextSet(t *testing.T) {
	b := newTestBuilder(t)

	_, err := b.Build("Person", ParamsOf("loose", "1", "email", "ada"))
	var illegal *IllegalSearchFieldError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, []string{"email"}, illegal.Fields)

	_, err = b.Build("Person", ParamsOf("bio", "ada"))
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, []string{"bio"}, illegal.Fields)
}

func TestBuildDistance(t *testing.T) {
	b := newTestBuilder(t)

	preds, err := b.Build("Person", ParamsOf("street", "Unter den Linden 1", "distance", "2.5", "city", "Berlin", "page", "1"))
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, graph.Distance("Unter den Linden 1 Berlin", 2.5), preds[0])

	_, err = b.Build("Person", ParamsOf("city", "Berlin", "distance", "far"))
	assert.ErrorIs(t, err, ErrInvalidDistance)

	_, err = b.Build("Person", ParamsOf("distance", "5", "planet", "Earth"))
	assert.ErrorIs(t, err, ErrIllegalSearchField)
}

func TestBuildUnknownTypeRejectsAllFields(t *testing.T) {
	b := newTestBuilder(t)

	preds, err := b.Build("Robot", ParamsOf("page", "1"))
	require.NoError(t, err)
	assert.Empty(t, preds)

	_, err = b.Build("Robot", ParamsOf("name", "R2"))
	assert.ErrorIs(t, err, ErrIllegalSearchField)
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams("zeta=1&alpha=two+words&empty=&flag&name=O%27Brien")
	require.NoError(t, err)
	assert.Equal(t, Params{
		{Name: "zeta", Value: "1"},
		{Name: "alpha", Value: "two words"},
		{Name: "empty", Value: ""},
		{Name: "flag", Value: ""},
		{Name: "name", Value: "O'Brien"},
	}, params)

	_, err = ParseParams("bad=%zz")
	assert.Error(t, err)

	n, err := ParamsOf("page", "3").Int(ParamPage, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = Params{}.Int(ParamPageSize, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	_, err = ParamsOf("page", "x").Int(ParamPage, 1)
	assert.Error(t, err)
}
