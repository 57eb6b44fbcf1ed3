package vlq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A real coffeescript-bundler mappings string, three generated lines.
const s1Mappings = "AAAA;AAAA,EAAA,OAAO,CAAC,GAAR,CAAY,aAAZ,CAAA,CAAA;AAAA"

func TestDecodeEncodeRoundTrip(t *testing.T) {
	lines, err := DecodeMappings(s1Mappings)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, s1Mappings, EncodeMappings(lines))
}

func TestDecodeSegmentShapes(t *testing.T) {
	lines, err := DecodeMappings(s1Mappings)
	require.NoError(t, err)

	require.Len(t, lines[0], 1)
	assert.Equal(t, Field{GeneratedColumn: 0, Source: 0, OriginalLine: 0, OriginalColumn: 0, Name: -1}, lines[0][0])

	require.NotEmpty(t, lines[1])
	first := lines[1][0]
	assert.Equal(t, 0, first.GeneratedColumn)
	assert.Equal(t, 0, first.Source)
}

func TestDecodeRejectsBadFieldCount(t *testing.T) {
	// "AAAAAAA" is a single segment of seven fields, more than the five
	// the framing allows.
	_, err := DecodeMappings("AAAAAAA")
	assert.Error(t, err)
}

func TestDecodeRejectsInvalidDigit(t *testing.T) {
	_, err := DecodeMappings("A!AA")
	assert.Error(t, err)
}

func TestDecodeRejectsUnterminatedContinuation(t *testing.T) {
	// 'g' has the continuation bit set (index 32) with nothing after it.
	_, err := DecodeMappings("g")
	assert.Error(t, err)
}

func TestEncodeDeterministic(t *testing.T) {
	lines := [][]Field{
		{{GeneratedColumn: 0, Source: -1, OriginalLine: -1, OriginalColumn: -1, Name: -1}},
		{{GeneratedColumn: 4, Source: 0, OriginalLine: 2, OriginalColumn: 1, Name: 0}},
	}
	a := EncodeMappings(lines)
	b := EncodeMappings(lines)
	assert.Equal(t, a, b)
}

func TestSignedVLQRoundTrip(t *testing.T) {
	cases := []int{0, 1, -1, 15, -15, 16, -16, 1 << 20, -(1 << 20)}
	for _, c := range cases {
		dst := appendDigit(nil, c)
		got, next, err := decodeDigit(string(dst), 0)
		require.NoError(t, err)
		assert.Equal(t, len(dst), next)
		assert.Equal(t, c, got)
	}
}
