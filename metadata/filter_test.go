package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantageinsurance/knowbase/codec"
)

func TestEqualsMatches(t *testing.T) {
	doc := Document{
		"source":      String("handbook.pdf"),
		"chunk_index": Int(3),
		"claim_id":    Null(),
	}

	tests := []struct {
		name     string
		filter   Filter
		expected bool
	}{
		{"Match", Eq("source", "handbook.pdf"), true},
		{"NoMatch", Eq("source", "other.pdf"), false},
		{"IntAsText", Eq("chunk_index", "3"), true},
		{"EmptyMatchesNull", Eq("claim_id", ""), true},
		{"EmptyMatchesAbsent", Eq("user_id", ""), true},
		{"AbsentKeyNonEmpty", Eq("user_id", "u1"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.filter.Matches(doc))
		})
	}
}

func TestAndOrMatches(t *testing.T) {
	doc := Document{
		"source":       String("handbook.pdf"),
		"section_type": String("faq"),
	}

	and := AndOf(Eq("source", "handbook.pdf"), Eq("section_type", "faq"))
	assert.True(t, and.Matches(doc))

	and = AndOf(Eq("source", "handbook.pdf"), Eq("section_type", "coverage"))
	assert.False(t, and.Matches(doc))

	or := OrOf(Eq("section_type", "coverage"), Eq("section_type", "faq"))
	assert.True(t, or.Matches(doc))

	or = OrOf(Eq("section_type", "coverage"), Eq("section_type", "exclusions"))
	assert.False(t, or.Matches(doc))

	// Vacuous truth for the empty conjunction, nothing for the empty
	// disjunction.
	assert.True(t, And{}.Matches(doc))
	assert.False(t, Or{}.Matches(doc))
}

func TestAndOfUnwrapsTrivialCases(t *testing.T) {
	assert.Nil(t, AndOf())
	assert.Equal(t, Eq("a", "1"), AndOf(Eq("a", "1")))
	assert.IsType(t, And{}, AndOf(Eq("a", "1"), Eq("b", "2")))

	assert.Nil(t, OrOf())
	assert.Equal(t, Eq("a", "1"), OrOf(Eq("a", "1")))
	assert.IsType(t, Or{}, OrOf(Eq("a", "1"), Eq("b", "2")))
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Filter
	}{
		{"Null", `null`, nil},
		{"Empty", ``, nil},
		{
			"SinglePair",
			`{"source": "handbook.pdf"}`,
			Eq("source", "handbook.pdf"),
		},
		{
			"NumberValueCanonicalized",
			`{"chunk_index": 3}`,
			Eq("chunk_index", "3"),
		},
		{
			"MultiPairSortedConjunction",
			`{"section_type": "faq", "source": "handbook.pdf"}`,
			And{Filters: []Filter{Eq("section_type", "faq"), Eq("source", "handbook.pdf")}},
		},
		{
			"ExplicitAnd",
			`{"$and": [{"source": "handbook.pdf"}, {"section_type": "faq"}]}`,
			And{Filters: []Filter{Eq("source", "handbook.pdf"), Eq("section_type", "faq")}},
		},
		{
			"ExplicitOr",
			`{"$or": [{"category": "billing"}, {"category": "claims"}]}`,
			Or{Filters: []Filter{Eq("category", "billing"), Eq("category", "claims")}},
		},
		{
			"NestedCombinators",
			`{"$and": [{"source": "handbook.pdf"}, {"$or": [{"section_type": "faq"}, {"section_type": "coverage"}]}]}`,
			And{Filters: []Filter{
				Eq("source", "handbook.pdf"),
				Or{Filters: []Filter{Eq("section_type", "faq"), Eq("section_type", "coverage")}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestParseFilterErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"NotAnObject", `[1, 2]`},
		{"AndNotArray", `{"$and": {"a": 1}}`},
		{"NestedObjectValue", `{"source": {"bad": 1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilter([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestFilterMarshalJSON(t *testing.T) {
	data, err := codec.Default.Marshal(Eq("source", "handbook.pdf"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"source": "handbook.pdf"}`, string(data))

	var f Filter = And{Filters: []Filter{Eq("a", "1"), Eq("b", "2")}}
	data, err = codec.Default.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"$and": [{"a": "1"}, {"b": "2"}]}`, string(data))

	f = Or{Filters: []Filter{Eq("a", "1")}}
	data, err = codec.Default.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"$or": [{"a": "1"}]}`, string(data))
}

func TestFilterJSONRoundTrip(t *testing.T) {
	original := And{Filters: []Filter{
		Eq("source", "handbook.pdf"),
		Or{Filters: []Filter{Eq("section_type", "faq"), Eq("section_type", "coverage")}},
	}}

	data, err := codec.Default.Marshal(original)
	require.NoError(t, err)

	parsed, err := ParseFilter(data)
	require.NoError(t, err)
	assert.Equal(t, Filter(original), parsed)
}

func TestFilterFromMap(t *testing.T) {
	f, err := FilterFromMap(map[string]any{"source": "handbook.pdf"})
	require.NoError(t, err)
	assert.Equal(t, Eq("source", "handbook.pdf"), f)

	f, err = FilterFromMap(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
}
