package huffman

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/internal/bitio"
)

func encodeAll(lengths []uint8, symbols []int) []byte {
	codes := Codes(lengths, make([]Code, len(lengths)))
	var w bitio.Writer
	for _, s := range symbols {
		w.WriteBits(uint(codes[s].Len), uint64(codes[s].Bits))
	}
	w.AlignToByte()
	return w.Dst
}

func checkRoundTrip(t *testing.T, lengths []uint8, kind Kind) {
	t.Helper()
	tree, err := NewTree(lengths, kind)
	require.NoError(t, err)

	var symbols []int
	for sym, n := range lengths {
		if n != 0 {
			symbols = append(symbols, sym)
		}
	}
	var in bitio.InputBuffer
	require.NoError(t, in.SetInput(encodeAll(lengths, symbols)))
	for _, want := range symbols {
		assert.Equal(t, want, tree.Decode(&in))
	}
}

func checkPrefixFree(t *testing.T, lengths []uint8) {
	t.Helper()
	codes := Codes(lengths, make([]Code, len(lengths)))
	for a, ca := range codes {
		for b, cb := range codes {
			if a == b || ca.Len == 0 || cb.Len == 0 || ca.Len > cb.Len {
				continue
			}
			// Codes are stored reversed, so a prefix shows up in the low bits.
			mask := uint16(1)<<ca.Len - 1
			if ca.Bits == cb.Bits&mask {
				t.Errorf("code for %d is a prefix of code for %d", a, b)
			}
		}
	}
}

func TestStaticTrees(t *testing.T) {
	checkRoundTrip(t, StaticLiteralLengths(), LiteralTree)
	checkRoundTrip(t, StaticDistanceLengths(), DistanceTree)
	assert.Same(t, StaticLiteralTree(), StaticLiteralTree())

	// RFC 1951 section 3.2.6: literal 0 is 00110000, 144 is 110010000,
	// 256 is 0000000 and 280 is 11000000.
	codes := StaticLiteralCodes()
	assert.Equal(t, Code{Bits: reverse(0x30, 8), Len: 8}, codes[0])
	assert.Equal(t, Code{Bits: reverse(0x190, 9), Len: 9}, codes[144])
	assert.Equal(t, Code{Bits: 0, Len: 7}, codes[256])
	assert.Equal(t, Code{Bits: reverse(0xc0, 8), Len: 8}, codes[280])
}

func TestCanonicalExample(t *testing.T) {
	// The example from RFC 1951 section 3.2.2: ABCDEFGH with lengths
	// (3, 3, 3, 3, 3, 2, 4, 4) get codes 010 011 100 101 110 00 1110 1111.
	lengths := []uint8{3, 3, 3, 3, 3, 2, 4, 4}
	want := []uint16{0x2, 0x3, 0x4, 0x5, 0x6, 0x0, 0xe, 0xf}
	codes := Codes(lengths, make([]Code, len(lengths)))
	for i, c := range codes {
		assert.Equal(t, reverse(want[i], lengths[i]), c.Bits, "symbol %d", i)
	}
	checkPrefixFree(t, lengths)
	checkRoundTrip(t, lengths, DistanceTree)
}

func TestBuilderRandomFrequencies(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var b Builder
	for iter := 0; iter < 50; iter++ {
		n := 2 + rng.Intn(NumLiteralSymbols-2)
		freq := make([]uint32, n)
		for i := range freq {
			if rng.Intn(3) > 0 {
				freq[i] = uint32(rng.Intn(1000))
			}
		}
		freq[len(freq)-1] = 1
		lengths := b.Lengths(freq, MaxBits, make([]uint8, n))
		for sym, f := range freq {
			if f != 0 {
				assert.NotZero(t, lengths[sym], "symbol %d has frequency %d", sym, f)
			}
			assert.LessOrEqual(t, int(lengths[sym]), MaxBits)
		}
		checkKraftComplete(t, lengths)
		checkPrefixFree(t, lengths)
		checkRoundTrip(t, lengths, DistanceTree)
	}
}

func TestBuilderLimitsDepth(t *testing.T) {
	// Fibonacci frequencies produce the deepest possible tree.
	freq := make([]uint32, 30)
	a, b := uint32(1), uint32(1)
	for i := range freq {
		freq[i] = a
		a, b = b, a+b
	}
	var bld Builder
	lengths := bld.Lengths(freq, MaxCodeLengthBits, make([]uint8, len(freq)))
	for _, n := range lengths {
		assert.LessOrEqual(t, int(n), MaxCodeLengthBits)
		assert.NotZero(t, n)
	}
	checkKraftComplete(t, lengths)

	lengths = bld.Lengths(freq, MaxBits, make([]uint8, len(freq)))
	checkKraftComplete(t, lengths)
	for _, n := range lengths {
		assert.LessOrEqual(t, int(n), MaxBits)
	}
}

func TestBuilderFillsInSingleSymbol(t *testing.T) {
	var b Builder
	lengths := b.Lengths([]uint32{0, 0, 7, 0}, MaxBits, make([]uint8, 4))
	assert.Equal(t, []uint8{1, 0, 1, 0}, lengths)

	lengths = b.Lengths([]uint32{0, 0, 0}, MaxBits, make([]uint8, 3))
	assert.Equal(t, []uint8{1, 1, 0}, lengths)
}

func checkKraftComplete(t *testing.T, lengths []uint8) {
	t.Helper()
	sum := 0
	for _, n := range lengths {
		if n != 0 {
			sum += 1 << (MaxBits - n)
		}
	}
	assert.Equal(t, 1<<MaxBits, sum, "code is not complete")
}

func TestInvalidTables(t *testing.T) {
	cases := []struct {
		name    string
		lengths []uint8
		kind    Kind
	}{
		{"oversubscribed", []uint8{1, 1, 1}, DistanceTree},
		{"too long", []uint8{16, 1}, DistanceTree},
		{"code length too long", []uint8{8, 1}, CodeLengthTree},
		{"incomplete", []uint8{2, 2, 2}, DistanceTree},
		{"incomplete code lengths", []uint8{1, 0, 0}, CodeLengthTree},
		{"no end of block", append(make([]uint8, 256), 0, 1, 1), LiteralTree},
		{"empty literals", make([]uint8, 257), LiteralTree},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewTree(c.lengths, c.kind)
			require.Error(t, err)
			assert.True(t, deflate.IsCorrupt(err), "got %v", err)
		})
	}
}

func TestSingleCodeAndEmptyDistanceTree(t *testing.T) {
	tree, err := NewTree([]uint8{0, 1}, DistanceTree)
	require.NoError(t, err)
	var in bitio.InputBuffer
	require.NoError(t, in.SetInput([]byte{0x02}))
	assert.Equal(t, 1, tree.Decode(&in))
	assert.True(t, IsInvalid(tree.Decode(&in)), "code 1 is unassigned")

	empty, err := NewTree(make([]uint8, 30), DistanceTree)
	require.NoError(t, err)
	assert.True(t, IsInvalid(empty.Decode(&in)))
}

func TestDecodeSuspendsWithoutConsuming(t *testing.T) {
	lengths := StaticLiteralLengths()
	data := encodeAll(lengths, []int{200, 65, 256})
	tree := StaticLiteralTree()

	// Feed one byte at a time; a failed decode must not consume anything.
	var in bitio.InputBuffer
	var got []int
	for _, b := range data {
		require.NoError(t, in.SetInput([]byte{b}))
		for {
			before := in.AvailableBits()
			sym := tree.Decode(&in)
			if sym < 0 {
				assert.Equal(t, before, in.AvailableBits())
				break
			}
			got = append(got, sym)
		}
	}
	assert.Equal(t, []int{200, 65, 256}, got)
}

func TestLengthAndDistanceCodes(t *testing.T) {
	for length := MinMatchLength; length <= MaxMatchLength; length++ {
		code := LengthCode(length) - FirstLengthCode
		base := int(LengthBase[code])
		assert.True(t, length >= base && length < base+1<<LengthExtraBits[code] || length == 258,
			"length %d got code %d", length, code+FirstLengthCode)
	}
	assert.Equal(t, 285, LengthCode(258))
	assert.Equal(t, 284, LengthCode(257))

	for dist := 1; dist <= 32768; dist++ {
		code := DistanceCode(dist)
		base := int(DistanceBase[code])
		require.True(t, dist >= base && dist < base+1<<DistanceExtraBits[code], "distance %d got code %d", dist, code)
	}
}
