package deflate

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = []byte(strings.Repeat("Whan that Aprille with his shoures soote the droghte of March hath perced to the roote, ", 200))

// rebuild applies matches to src, resolving distances against everything
// rebuilt so far, including history from earlier calls.
func rebuild(history, src []byte, matches []Match) []byte {
	out := append([]byte{}, history...)
	pos := 0
	for _, m := range matches {
		out = append(out, src[pos:pos+m.Unmatched]...)
		pos += m.Unmatched
		for i := 0; i < m.Length; i++ {
			out = append(out, out[len(out)-m.Distance])
		}
		pos += m.Length
	}
	return out[len(history):]
}

func checkMatches(t *testing.T, matches []Match) {
	for _, m := range matches {
		if m.Length == 0 {
			continue
		}
		require.GreaterOrEqual(t, m.Length, 3)
		require.LessOrEqual(t, m.Length, 258)
		require.GreaterOrEqual(t, m.Distance, 1)
		require.LessOrEqual(t, m.Distance, 32768)
	}
}

func TestHashFinder(t *testing.T) {
	random := make([]byte, 50000)
	rand.New(rand.NewSource(1)).Read(random)

	for name, data := range map[string][]byte{
		"text":   sample,
		"random": random,
		"zeros":  make([]byte, 100000),
		"short":  []byte("abc"),
		"empty":  nil,
	} {
		h := &HashFinder{}
		matches := h.FindMatches(nil, data)
		require.Equal(t, len(data), Covered(matches), name)
		checkMatches(t, matches)
		assert.True(t, bytes.Equal(data, rebuild(nil, data, matches)), name)
	}
}

func TestHashFinderHistory(t *testing.T) {
	h := &HashFinder{}
	first := sample[:5000]
	second := sample[5000:10000]
	h.FindMatches(nil, first)

	matches := h.FindMatches(nil, second)
	require.Equal(t, len(second), Covered(matches))
	require.NotEmpty(t, matches)
	// The repeated text is found in the previous call's data right away.
	assert.Zero(t, matches[0].Unmatched)
	assert.Equal(t, second, rebuild(first, second, matches))

	h.Reset()
	matches = h.FindMatches(nil, second)
	assert.Positive(t, matches[0].Unmatched)
}

func TestHashFinderMaxDistance(t *testing.T) {
	block := make([]byte, 1000)
	rand.New(rand.NewSource(2)).Read(block)
	data := append(append(append([]byte{}, block...), make([]byte, 2000)...), block...)

	h := &HashFinder{MaxDistance: 1500}
	matches := h.FindMatches(nil, data)
	for _, m := range matches {
		assert.LessOrEqual(t, m.Distance, 1500)
	}
	assert.Equal(t, data, rebuild(nil, data, matches))
}

func TestAppendMatch(t *testing.T) {
	for _, length := range []int{3, 258, 259, 260, 261, 516, 1000} {
		ms := appendMatch(nil, 7, length, 1)
		total := 0
		for i, m := range ms {
			assert.GreaterOrEqual(t, m.Length, 3)
			assert.LessOrEqual(t, m.Length, 258)
			if i > 0 {
				assert.Zero(t, m.Unmatched)
			}
			total += m.Length
		}
		assert.Equal(t, 7, ms[0].Unmatched)
		assert.Equal(t, length, total)
	}
}

func TestTextEncoder(t *testing.T) {
	src := []byte("abcabcabcX")
	matches := []Match{{Unmatched: 3, Length: 6, Distance: 3}, {Unmatched: 1}}
	enc := &TextEncoder{}
	out := enc.Encode(enc.Header(nil), src, matches, true)
	assert.Equal(t, "abc<6,3>X\n[block 1: 10 bytes, 2 matches final]\n", string(out))
	assert.Equal(t, "\n[sync]\n", string(enc.Sync(nil)))

	enc.Reset()
	out = enc.Encode(nil, src, matches, false)
	assert.Contains(t, string(out), "[block 1:")
}

func TestLevels(t *testing.T) {
	for l := DefaultCompression; l <= SmallestSize; l++ {
		assert.NoError(t, l.Validate())
		parsed, err := ParseLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l.Normalize(), parsed.Normalize(), "%v", l)
	}
	assert.Equal(t, ErrInvalidLevel, errors.Cause(Level(10).Validate()))
	assert.Equal(t, ErrInvalidLevel, errors.Cause(Level(-2).Validate()))
	assert.Equal(t, Optimal, DefaultCompression.Normalize())

	_, err := ParseLevel("11")
	assert.Equal(t, ErrInvalidLevel, errors.Cause(err))
	l, err := ParseLevel("3")
	require.NoError(t, err)
	assert.Equal(t, Level(3), l)
}

func TestBlockTypes(t *testing.T) {
	for _, bt := range []BlockType{StoredBlock, FixedBlock, DynamicBlock, AutoBlock} {
		parsed, err := ParseBlockType(bt.String())
		require.NoError(t, err)
		assert.Equal(t, bt, parsed)
	}
	assert.Equal(t, "reserved", BlockType(3).String())
	_, err := ParseBlockType("huffman")
	assert.Error(t, err)
}

func TestVariant(t *testing.T) {
	assert.Equal(t, 32768, Standard.WindowSize())
	assert.Equal(t, 65536, Deflate64.WindowSize())
	assert.Equal(t, "deflate64", Deflate64.String())
}

func TestErrorKinds(t *testing.T) {
	err := errors.Wrap(Corruptf("distance %d too far back", 40000), "reading block")
	assert.True(t, IsCorrupt(err))
	assert.False(t, IsTruncated(err))
	assert.Contains(t, err.Error(), "distance 40000 too far back")

	assert.True(t, IsTruncated(errors.Wrap(ErrTruncated, "eof")))
	assert.False(t, IsCorrupt(nil))
}
