package huffman

const (
	// MaxBits is the longest code allowed in the literal/length and
	// distance alphabets.
	MaxBits = 15

	// MaxCodeLengthBits is the longest code allowed in the code length
	// alphabet.
	MaxCodeLengthBits = 7

	NumLiteralSymbols    = 288 // literal/length alphabet, including the two unused codes
	NumDistanceSymbols   = 32  // distance alphabet, including the two Deflate64 codes
	NumCodeLengthSymbols = 19

	// MaxLiteralCodes and MaxDistanceCodes bound HLIT+257 and HDIST+1.
	MaxLiteralCodes  = 286
	MaxDistanceCodes = 30

	EndOfBlock       = 256
	FirstLengthCode  = 257
	LastLengthCode   = 285
	NumLengthCodes   = LastLengthCode - FirstLengthCode + 1
	MinMatchLength   = 3
	MaxMatchLength   = 258
	MaxMatchLength64 = 65538
)

// LengthBase and LengthExtraBits describe length codes 257 through 285
// (RFC 1951 section 3.2.5), indexed by code-257.
var LengthBase = [NumLengthCodes]uint16{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13,
	15, 17, 19, 23, 27, 31, 35, 43, 51, 59,
	67, 83, 99, 115, 131, 163, 195, 227, 258,
}

var LengthExtraBits = [NumLengthCodes]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1,
	1, 1, 2, 2, 2, 2, 3, 3, 3, 3,
	4, 4, 4, 4, 5, 5, 5, 5, 0,
}

// Deflate64 redefines length code 285 as base 3 with 16 extra bits.
const (
	Deflate64LastLengthBase  = 3
	Deflate64LastLengthExtra = 16
)

// DistanceBase and DistanceExtraBits describe distance codes 0 through 31.
// Codes 30 and 31 only exist in Deflate64.
var DistanceBase = [NumDistanceSymbols]uint32{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25,
	33, 49, 65, 97, 129, 193, 257, 385, 513, 769,
	1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
	32769, 49153,
}

var DistanceExtraBits = [NumDistanceSymbols]uint8{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3,
	4, 4, 5, 5, 6, 6, 7, 7, 8, 8,
	9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
	14, 14,
}

// CodeLengthOrder is the odd order in which the code length code lengths
// are transmitted.
var CodeLengthOrder = [NumCodeLengthSymbols]uint8{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}

var (
	lengthCodes   [MaxMatchLength + 1]uint8 // length -> code-257
	distanceCodes [512]uint8                // see DistanceCode
)

func init() {
	for code := 0; code < NumLengthCodes-1; code++ {
		base := int(LengthBase[code])
		for i := 0; i < 1<<LengthExtraBits[code]; i++ {
			lengthCodes[base+i] = uint8(code)
		}
	}
	lengthCodes[MaxMatchLength] = NumLengthCodes - 1

	// distanceCodes[0:256] covers distances 1..256 directly,
	// distanceCodes[256:512] covers the rest by (distance-1)>>7.
	for code := 0; code < 16; code++ {
		base := int(DistanceBase[code]) - 1
		for i := 0; i < 1<<DistanceExtraBits[code]; i++ {
			distanceCodes[base+i] = uint8(code)
		}
	}
	for code := 16; code < MaxDistanceCodes; code++ {
		base := (int(DistanceBase[code]) - 1) >> 7
		for i := 0; i < 1<<(DistanceExtraBits[code]-7); i++ {
			distanceCodes[256+base+i] = uint8(code)
		}
	}
}

// LengthCode returns the literal/length symbol for a match length in
// [3, 258].
func LengthCode(length int) int {
	return FirstLengthCode + int(lengthCodes[length])
}

// DistanceCode returns the distance symbol for a distance in [1, 32768].
func DistanceCode(distance int) int {
	d := distance - 1
	if d < 256 {
		return int(distanceCodes[d])
	}
	return int(distanceCodes[256+(d>>7)])
}
