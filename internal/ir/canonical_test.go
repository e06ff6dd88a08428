package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{"b": 1, "a": []any{true, nil, "x"}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null,"x"],"b":1}`, string(got))
}

func TestMarshalCanonical_UTF16Order(t *testing.T) {
	// U+E000 sorts before U+1F600 in UTF-8 but after it in UTF-16 (surrogates are 0xD8xx).
	got, err := MarshalCanonical(map[string]any{"\uE000": 2, "\U0001F600": 1})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":1,\"\uE000\":2}", string(got))
}

func TestMarshalCanonical_Numbers(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{3, "3"},
		{3.0, "3"},
		{int64(-7), "-7"},
		{0.8, "0.8"},
		{1e-7, "1e-7"},
		{1e21, "1e+21"},
	}
	for _, tt := range tests {
		got, err := MarshalCanonical(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(got), "in=%v", tt.in)
	}
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical("<a & b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(got))
}

func TestMarshalCanonical_LineSeparators(t *testing.T) {
	got, err := MarshalCanonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))

	literal, err := MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(literal), "escaped backslash must stay escaped")
}

func TestMarshalCanonical_NFC(t *testing.T) {
	decomposed, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	composed, err := MarshalCanonical("\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonical_Unsupported(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	assert.Error(t, err)

	_, err = MarshalCanonical(map[int]any{1: "x"})
	assert.Error(t, err)
}

func TestCatalogHash_StableAcrossEquivalentDocuments(t *testing.T) {
	a := MustCatalogHash(map[string]any{"moments": []any{map[string]any{"id": "m", "n": 3}}})
	b := MustCatalogHash(map[string]any{"moments": []any{map[string]any{"n": 3.0, "id": "m"}}})
	c := MustCatalogHash(map[string]any{"moments": []any{map[string]any{"n": 4, "id": "m"}}})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestParamsHash_DomainSeparated(t *testing.T) {
	p, err := ParamsHash("report", map[string]any{"tone": "warm"})
	require.NoError(t, err)
	c := MustCatalogHash(map[string]any{"artifact_id": "report", "params": map[string]any{"tone": "warm"}})

	assert.NotEqual(t, c, p, "same payload under different domains must differ")
}
