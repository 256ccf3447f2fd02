package page

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 5, time.UTC)
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `{"string":"hello"}`},
		{"empty string", String(""), `{"string":""}`},
		{"html not escaped", String("<a&b>"), `{"string":"<a&b>"}`},
		{"control escaped", String("a\nb\x01"), `{"string":"a\nb\u0001"}`},
		{"int", Int(42), `{"int":42}`},
		{"min int64", Int(-9223372036854775808), `{"int":-9223372036854775808}`},
		{"bool", Bool(false), `{"bool":false}`},
		{"time", NewTime(ts), `{"time":"2024-03-01T12:30:00.000000005Z"}`},
		{"ref", Ref(MustParse("gmail/Email:a@2")), `{"ref":"gmail/Email:a@2"}`},
		{"blob", Blob([]byte{0xff, 0x00}), `{"blob":"/wA="}`},
		{"empty list", List{}, `{"list":[]}`},
		{"mixed list", List{Int(1), String("x")}, `{"list":[{"int":1},{"string":"x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))

			back, err := UnmarshalCanonical(result)
			require.NoError(t, err)
			assert.True(t, Equal(tt.input, back), "decoded %v, want %v", back, tt.input)
		})
	}
}

func TestMarshalCanonicalAttributesSortedKeys(t *testing.T) {
	attrs := Attributes{
		"zebra": Int(1),
		"alpha": Int(2),
		"beta":  Bool(true),
	}
	result, err := MarshalCanonicalAttributes(attrs)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"int":2},"beta":{"bool":true},"zebra":{"int":1}}`, string(result))

	back, err := UnmarshalCanonicalAttributes(result)
	require.NoError(t, err)
	assert.Len(t, back, 3)
	assert.Equal(t, Bool(true), back["beta"])
}

func TestCanonicalKeyOrderIsUTF16(t *testing.T) {
	// U+10000 encodes as a surrogate pair starting 0xD800, which sorts
	// before U+E000 in UTF-16 but after it in UTF-8.
	attrs := Attributes{
		"\uE000":     Int(1),
		"\U00010000": Int(2),
	}
	assert.Equal(t, []string{"\U00010000", "\uE000"}, attrs.SortedKeys())
}

func TestUnmarshalCanonicalRejectsUntagged(t *testing.T) {
	for _, input := range []string{`"plain"`, `{}`, `{"int":1,"bool":true}`, `{"float":1.5}`, `{"int":1.5}`} {
		_, err := UnmarshalCanonical([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestEqual(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	local := ts.In(time.FixedZone("x", 3600))

	assert.True(t, Equal(NewTime(ts), Time{local}))
	assert.True(t, Equal(Blob("ab"), Blob("ab")))
	assert.True(t, Equal(List{Int(1), List{String("a")}}, List{Int(1), List{String("a")}}))
	assert.False(t, Equal(Int(1), String("1")))
	assert.False(t, Equal(List{Int(1)}, List{Int(1), Int(2)}))
	assert.False(t, Equal(Int(1), nil))
	assert.True(t, Equal(nil, nil))
}

func TestAttributesMarshalJSONPlain(t *testing.T) {
	attrs := Attributes{
		"subject": String("hi"),
		"size":    Int(3),
		"thread":  Ref(MustParse("gmail/Thread:t1@1")),
		"tags":    List{String("a"), String("b")},
	}
	data, err := attrs.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"size":3,"subject":"hi","tags":["a","b"],"thread":"gmail/Thread:t1@1"}`, string(data))
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("float")
	assert.Error(t, err)
}
