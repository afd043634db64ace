package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantageinsurance/knowbase/codec"
)

func TestValueText(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected string
	}{
		{"Null", Null(), ""},
		{"Int", Int(42), "42"},
		{"NegativeInt", Int(-7), "-7"},
		{"Float", Float(3.5), "3.5"},
		{"String", String("handbook.pdf"), "handbook.pdf"},
		{"EmptyString", String(""), ""},
		{"BoolTrue", Bool(true), "true"},
		{"BoolFalse", Bool(false), "false"},
		{"Array", Array([]Value{String("a"), Int(2)}), "[a 2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.value.Text())
		})
	}
}

func TestValueEqual(t *testing.T) {
	// Comparison is on canonical text form across kinds.
	assert.True(t, Int(3).Equal(String("3")))
	assert.True(t, Float(3).Equal(Int(3)))
	assert.True(t, Null().Equal(String("")))
	assert.False(t, Int(3).Equal(Int(4)))
}

func TestValueJSONNaturalForm(t *testing.T) {
	doc := Document{
		"source":      String("handbook.pdf"),
		"chunk_index": Int(3),
		"score":       Float(0.25),
		"active":      Bool(true),
		"missing":     Null(),
		"tags":        Array([]Value{String("faq"), String("claims")}),
	}

	data, err := codec.Default.Marshal(doc)
	require.NoError(t, err)

	// The wire form is a plain JSON object, no type tags.
	var plain map[string]any
	require.NoError(t, codec.Default.Unmarshal(data, &plain))
	assert.Equal(t, "handbook.pdf", plain["source"])
	assert.Equal(t, float64(3), plain["chunk_index"])
	assert.Equal(t, 0.25, plain["score"])
	assert.Equal(t, true, plain["active"])
	assert.Nil(t, plain["missing"])

	var decoded Document
	require.NoError(t, codec.Default.Unmarshal(data, &decoded))
	assert.Equal(t, KindString, decoded["source"].Kind())
	assert.Equal(t, int64(3), decoded["chunk_index"].IntValue())
	assert.Equal(t, 0.25, decoded["score"].FloatValue())
	assert.True(t, decoded["active"].BoolValue())
	assert.True(t, decoded["missing"].IsNull())
	assert.Equal(t, KindArray, decoded["tags"].Kind())
}

func TestValueUnmarshalRejectsObjects(t *testing.T) {
	var v Value
	err := codec.Default.Unmarshal([]byte(`{"nested": 1}`), &v)
	assert.Error(t, err)
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected Value
	}{
		{"Nil", nil, Null()},
		{"String", "a", String("a")},
		{"Bool", true, Bool(true)},
		{"Int", 7, Int(7)},
		{"Int64", int64(7), Int(7)},
		{"IntegralFloat", float64(3), Int(3)},
		{"Float", 3.5, Float(3.5)},
		{"StringSlice", []string{"a", "b"}, Array([]Value{String("a"), String("b")})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromAny(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}

	_, err := FromAny(map[string]any{"nested": 1})
	assert.Error(t, err)
}

func TestDocumentText(t *testing.T) {
	doc := Document{
		"source": String("handbook.pdf"),
		"null":   Null(),
	}

	assert.Equal(t, "handbook.pdf", doc.Text("source"))
	assert.Equal(t, "", doc.Text("null"))
	assert.Equal(t, "", doc.Text("missing"))
	assert.True(t, doc.Has("null"))
	assert.False(t, doc.Has("missing"))
}

func TestDocumentClone(t *testing.T) {
	doc := Document{"source": String("a")}
	clone := doc.Clone()
	clone["source"] = String("b")
	assert.Equal(t, "a", doc.Text("source"))

	var nilDoc Document
	assert.Nil(t, nilDoc.Clone())
}

func TestFromAnyMap(t *testing.T) {
	doc, err := FromAnyMap(map[string]any{
		"source":      "handbook.pdf",
		"chunk_index": float64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, "handbook.pdf", doc.Text("source"))
	assert.Equal(t, "3", doc.Text("chunk_index"))

	_, err = FromAnyMap(map[string]any{"bad": map[string]any{}})
	assert.Error(t, err)
}
