// Package huffman builds canonical Huffman codes from code lengths, the way
// RFC 1951 section 3.2.2 describes, for both decoding and encoding.
package huffman

import (
	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/internal/bitio"
)

// A Kind selects the validation rules for a code length table.
type Kind int

const (
	LiteralTree Kind = iota
	DistanceTree
	CodeLengthTree
)

func (k Kind) maxBits() int {
	if k == CodeLengthTree {
		return MaxCodeLengthBits
	}
	return MaxBits
}

func (k Kind) String() string {
	switch k {
	case LiteralTree:
		return "literal/length"
	case DistanceTree:
		return "distance"
	}
	return "code length"
}

// A Tree decodes one alphabet of a canonical Huffman code.
//
// Decoding walks the code one bit at a time: at each length it checks
// whether the code read so far falls among the codes of that length. This
// only peeks at the input until a whole symbol has been recognized, so an
// incomplete symbol leaves the input untouched and can be retried after
// more input arrives.
type Tree struct {
	count   [MaxBits + 1]uint16 // number of codes of each length
	symbols []uint16            // symbols ordered by code
	maxLen  int
	empty   bool
}

// NewTree builds a decoding tree from per-symbol code lengths.
//
// It fails with deflate.ErrCorrupt if the lengths are oversubscribed, if a
// length exceeds the alphabet's maximum, if a literal/length table lacks
// the end-of-block code, or if the code is incomplete. An incomplete code
// is accepted for literal/length and distance tables when it consists of a
// single one-bit code, and an all-zero distance table is accepted for
// blocks that contain only literals.
func NewTree(lengths []uint8, kind Kind) (*Tree, error) {
	t := new(Tree)
	if err := t.Init(lengths, kind); err != nil {
		return nil, err
	}
	return t, nil
}

// Init is like NewTree but reuses t.
func (t *Tree) Init(lengths []uint8, kind Kind) error {
	maxBits := kind.maxBits()
	t.count = [MaxBits + 1]uint16{}
	t.maxLen = 0
	t.empty = false

	for sym, n := range lengths {
		if int(n) > maxBits {
			return deflate.Corruptf("%s code for symbol %d has length %d", kind, sym, n)
		}
		t.count[n]++
		if int(n) > t.maxLen {
			t.maxLen = int(n)
		}
	}
	t.count[0] = 0

	if kind == LiteralTree && (len(lengths) <= EndOfBlock || lengths[EndOfBlock] == 0) {
		return deflate.Corruptf("literal/length code has no end-of-block code")
	}

	codes := 0
	left := 1
	for n := 1; n <= MaxBits; n++ {
		left <<= 1
		left -= int(t.count[n])
		if left < 0 {
			return deflate.Corruptf("%s code lengths are oversubscribed", kind)
		}
		codes += int(t.count[n])
	}

	switch {
	case codes == 0:
		if kind != DistanceTree {
			return deflate.Corruptf("%s code has no symbols", kind)
		}
		t.empty = true
	case left > 0:
		if kind == CodeLengthTree || codes != 1 || t.count[1] != 1 {
			return deflate.Corruptf("%s code lengths are incomplete", kind)
		}
	}

	// Symbols sorted by length, then by symbol value: this is the order of
	// the canonical codes.
	var offs [MaxBits + 2]uint16
	for n := 1; n <= MaxBits; n++ {
		offs[n+1] = offs[n] + t.count[n]
	}
	if cap(t.symbols) < codes {
		t.symbols = make([]uint16, codes)
	}
	t.symbols = t.symbols[:codes]
	for sym, n := range lengths {
		if n != 0 {
			t.symbols[offs[n]] = uint16(sym)
			offs[n]++
		}
	}
	return nil
}

// Decode reads one symbol from in. It returns -1 without consuming any
// input if in runs out before a whole code has been read.
func (t *Tree) Decode(in *bitio.InputBuffer) int {
	bits, nbits := in.Peek(t.maxLen)
	code := 0  // code bits read so far, first bit most significant
	first := 0 // first code of the current length
	index := 0 // index of the first symbol of the current length
	for n := 1; n <= t.maxLen; n++ {
		if n > nbits {
			return -1
		}
		code |= int(bits & 1)
		bits >>= 1
		count := int(t.count[n])
		if code-first < count {
			in.SkipBits(n)
			return int(t.symbols[index+code-first])
		}
		index += count
		first += count
		first <<= 1
		code <<= 1
	}
	// Only reachable for the unused half of a single one-bit code, or for
	// an empty distance table.
	if t.maxLen > nbits {
		return -1
	}
	return invalidSymbol
}

// invalidSymbol is returned by Decode for a bit sequence that is not a code.
const invalidSymbol = -2

// IsInvalid reports whether a value returned by Decode marks a bit sequence
// that is not assigned to any symbol.
func IsInvalid(sym int) bool {
	return sym == invalidSymbol
}
