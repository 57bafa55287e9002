package huffman

import "math/bits"

// A Code is the encoding of one symbol: Bits holds the code already
// bit-reversed, ready to be written least significant bit first.
type Code struct {
	Bits uint16
	Len  uint8
}

// Codes assigns canonical codes to lengths and stores them in codes, which
// must be at least as long as lengths. Symbols with length 0 get the zero
// Code.
func Codes(lengths []uint8, codes []Code) []Code {
	var count [MaxBits + 1]uint16
	for _, n := range lengths {
		count[n]++
	}
	count[0] = 0

	var next [MaxBits + 1]uint16
	code := uint16(0)
	for n := 1; n <= MaxBits; n++ {
		code = (code + count[n-1]) << 1
		next[n] = code
	}

	codes = codes[:len(lengths)]
	for sym, n := range lengths {
		if n == 0 {
			codes[sym] = Code{}
			continue
		}
		codes[sym] = Code{
			Bits: reverse(next[n], n),
			Len:  n,
		}
		next[n]++
	}
	return codes
}

func reverse(code uint16, n uint8) uint16 {
	return bits.Reverse16(code) >> (16 - n)
}

// Cost returns the number of bits needed to code freq with lengths.
func Cost(freq []uint32, lengths []uint8) int {
	total := 0
	for sym, f := range freq {
		total += int(f) * int(lengths[sym])
	}
	return total
}
