package gqlnorm

import (
	"testing"

	"github.com/safareli/http-proxy/pkg/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_BatchedMixedOperations(t *testing.T) {
	requests := []Request{
		{Query: `query{user{id}}`},
		{Query: `mutation{deleteUser(id:"1"){ok}}`},
	}

	result, err := Normalize(requests)
	require.NoError(t, err)

	require.Len(t, result.Queries, 1)
	assert.Equal(t, "user", result.Queries[0].Name)

	require.Len(t, result.Mutations, 1)
	assert.Equal(t, "deleteUser", result.Mutations[0].Name)
	assert.Equal(t, pattern.FormatGraphQLKey("mutation", result.Mutations[0]), `GRAPHQL mutation deleteUser(id: "1")`)
}

func TestNormalize_VariableSubstitution(t *testing.T) {
	requests := []Request{
		{
			Query:     `query($id: ID!){ repository(id: $id) { name } }`,
			Variables: map[string]any{"id": "42"},
		},
	}

	result, err := Normalize(requests)
	require.NoError(t, err)
	require.Len(t, result.Queries, 1)
	assert.Equal(t, "repository", result.Queries[0].Name)
	require.Len(t, result.Queries[0].Args, 1)
	assert.Equal(t, "id", result.Queries[0].Args[0].Name)
	assert.Equal(t, "42", result.Queries[0].Args[0].Value)
}

func TestNormalize_MissingVariableResolvesToNull(t *testing.T) {
	requests := []Request{
		{Query: `query($id: ID){ repository(id: $id) { name } }`},
	}

	result, err := Normalize(requests)
	require.NoError(t, err)
	require.Len(t, result.Queries, 1)
	assert.Nil(t, result.Queries[0].Args[0].Value)
}

func TestNormalize_InlinesFragments(t *testing.T) {
	requests := []Request{
		{Query: `query { ...F } fragment F on Query { viewer { login } }`},
	}

	result, err := Normalize(requests)
	require.NoError(t, err)
	require.Len(t, result.Queries, 1)
	assert.Equal(t, "viewer", result.Queries[0].Name)
}

func TestNormalize_UnknownFragmentIsAnError(t *testing.T) {
	requests := []Request{
		{Query: `query { ...Missing }`},
	}

	_, err := Normalize(requests)
	assert.Error(t, err)
}

func TestNormalize_OperationNameSelectsOperation(t *testing.T) {
	requests := []Request{
		{
			Query:         `query A { viewer { login } } query B { repository { name } }`,
			OperationName: "B",
		},
	}

	result, err := Normalize(requests)
	require.NoError(t, err)
	require.Len(t, result.Queries, 1)
	assert.Equal(t, "repository", result.Queries[0].Name)
}

func TestNormalize_UnknownOperationNameIsAnError(t *testing.T) {
	requests := []Request{
		{Query: `query A { viewer { login } }`, OperationName: "DoesNotExist"},
	}

	_, err := Normalize(requests)
	assert.Error(t, err)
}

func TestNormalize_NumbersAreNormalizedToFloat64(t *testing.T) {
	requests := []Request{
		{Query: `mutation { createIssue(count: 3) { id } }`},
	}

	result, err := Normalize(requests)
	require.NoError(t, err)
	require.Len(t, result.Mutations, 1)
	assert.Equal(t, float64(3), result.Mutations[0].Args[0].Value)
}

func TestNormalize_DeduplicatesAcrossBatch(t *testing.T) {
	requests := []Request{
		{Query: `query{viewer{login}}`},
		{Query: `query{viewer{login}}`},
	}

	result, err := Normalize(requests)
	require.NoError(t, err)
	assert.Len(t, result.Queries, 1)
}

func TestNormalize_Determinism(t *testing.T) {
	requests := []Request{
		{Query: `query{user{id}}`},
		{Query: `mutation{deleteUser(id:"1"){ok}}`},
	}

	first, err := Normalize(requests)
	require.NoError(t, err)
	second, err := Normalize(requests)
	require.NoError(t, err)

	assert.Equal(t, first.Queries, second.Queries)
	assert.Equal(t, first.Mutations, second.Mutations)
}

func TestParseBody_SingleAndBatch(t *testing.T) {
	single, err := ParseBody([]byte(`{"query":"query{viewer{login}}"}`))
	require.NoError(t, err)
	require.Len(t, single, 1)

	batch, err := ParseBody([]byte(`[{"query":"query{viewer{login}}"},{"query":"query{user{id}}"}]`))
	require.NoError(t, err)
	require.Len(t, batch, 2)
}
