package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTripShapes(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want any
	}{
		{"string", "hello", "hello"},
		{"int", 42, float64(42)},
		{"float", 3.5, 3.5},
		{"bool", true, true},
		{"null", nil, nil},
		{"list", []any{"a", float64(1), true}, []any{"a", float64(1), true}},
		{"map", map[string]any{"k": "v", "n": float64(2)}, map[string]any{"k": "v", "n": float64(2)}},
		{"nested", map[string]any{"outer": map[string]any{"inner": []any{float64(1), float64(2)}}},
			map[string]any{"outer": map[string]any{"inner": []any{float64(1), float64(2)}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Encode(tc.in)
			require.NoError(t, err)
			got, ok := Decode(raw)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCodecTagSelection(t *testing.T) {
	raw, err := Encode("scalar")
	require.NoError(t, err)
	assert.EqualValues(t, tagJSON, raw[0])

	raw, err = Encode(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.EqualValues(t, tagStructured, raw[0])

	raw, err = Encode([]any{1, 2})
	require.NoError(t, err)
	assert.EqualValues(t, tagStructured, raw[0])

	type widget struct {
		Name string `json:"name"`
	}
	raw, err = Encode(widget{Name: "w"})
	require.NoError(t, err)
	assert.EqualValues(t, tagObject, raw[0])
}

func TestCodecCompressesLargeRepetitivePayloads(t *testing.T) {
	big := strings.Repeat("abcdefgh", 1024)
	raw, err := Encode(big)
	require.NoError(t, err)
	assert.EqualValues(t, tagCompressed, raw[0])
	assert.EqualValues(t, tagJSON, raw[1])
	assert.Less(t, len(raw), len(big))

	got, ok := Decode(raw)
	require.True(t, ok)
	assert.Equal(t, big, got)
}

func TestCodecSkipsUnprofitableCompression(t *testing.T) {
	// Small payloads stay uncompressed regardless of shape.
	raw, err := Encode("short")
	require.NoError(t, err)
	assert.EqualValues(t, tagJSON, raw[0])
}

func TestCodecLegacyChain(t *testing.T) {
	// Untagged JSON written by an older writer.
	got, ok := Decode([]byte(`{"legacy":true}`))
	require.True(t, ok)
	assert.Equal(t, map[string]any{"legacy": true}, got)

	// Untagged raw text falls through to string.
	got, ok = Decode([]byte("zzz raw text"))
	require.True(t, ok)
	assert.Equal(t, "zzz raw text", got)
}

func TestCodecCorruptDataIsAbsent(t *testing.T) {
	_, ok := Decode(nil)
	assert.False(t, ok)

	// Compressed tag with garbage body.
	_, ok = Decode([]byte{tagCompressed, tagJSON, 0x00, 0x01})
	assert.False(t, ok)

	// Tagged JSON with a truncated body.
	_, ok = Decode([]byte{tagJSON, '{', '"'})
	assert.False(t, ok)
}

func TestCodecStructuredUsesBinaryEncoding(t *testing.T) {
	raw, err := Encode(map[string]any{"k": "v"})
	require.NoError(t, err)
	require.EqualValues(t, tagStructured, raw[0])
	// The body is gob, not a second JSON rendering behind a different tag.
	assert.NotEqual(t, byte('{'), raw[1])

	got, ok := Decode(raw)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"k": "v"}, got)
}

func TestCodecObjectRequiresTypedDestination(t *testing.T) {
	type row struct{ Name string }
	raw, err := Encode(row{Name: "n"})
	require.NoError(t, err)
	require.EqualValues(t, tagObject, raw[0])

	// Object payloads carry no recoverable type, so the untyped reader
	// treats them as absent.
	_, ok := Decode(raw)
	assert.False(t, ok)

	var got row
	require.True(t, DecodeInto(raw, &got))
	assert.Equal(t, "n", got.Name)
}

func TestDecodeIntoStructuredContainer(t *testing.T) {
	raw, err := Encode([]int64{5, 9})
	require.NoError(t, err)
	require.EqualValues(t, tagStructured, raw[0])

	var got []int64
	require.True(t, DecodeInto(raw, &got))
	assert.Equal(t, []int64{5, 9}, got)
}

func TestDecodeInto(t *testing.T) {
	type session struct {
		Query string   `json:"query"`
		Files []string `json:"files"`
	}
	raw, err := Encode(session{Query: "matrix", Files: []string{"a", "b"}})
	require.NoError(t, err)

	var got session
	require.True(t, DecodeInto(raw, &got))
	assert.Equal(t, "matrix", got.Query)
	assert.Equal(t, []string{"a", "b"}, got.Files)
}
