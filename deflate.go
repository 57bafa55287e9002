// Package deflate implements the DEFLATE compressed data format (RFC 1951)
// as a pair of resumable state machines.
//
// Compression has two main parts:
//  - Something that looks for repeated sequences of bytes (LZ77)
//  - An encoder that turns the matches into Huffman-coded blocks
//
// The subpackages do the work: compress holds the Deflater and its match
// window, inflate holds the Inflater and its sliding output window, and
// envelope adds the gzip and zlib framing. This package defines the types
// they share: the intermediate representation of LZ77 matches, the
// compression levels, and the error taxonomy.
package deflate

// A Match is the basic unit of LZ77 compression.
type Match struct {
	Unmatched int // the number of unmatched bytes since the previous match
	Length    int // the number of bytes in the matched string; it may be 0 at the end of the input
	Distance  int // how far back in the stream to copy from
}

// A MatchFinder performs the LZ77 stage of compression, looking for matches.
type MatchFinder interface {
	// FindMatches looks for matches in src, appends them to dst, and returns dst.
	FindMatches(dst []Match, src []byte) []Match

	// Reset clears any internal state, preparing the MatchFinder to be used with
	// a new stream.
	Reset()
}

// An Encoder encodes the data in its final format.
type Encoder interface {
	// Header appends the appropriate stream header to dst.
	Header(dst []byte) []byte

	// Encode appends the encoded format of src to dst, using the match
	// information from matches. The matches cover src exactly.
	Encode(dst []byte, src []byte, matches []Match, lastBlock bool) []byte

	// Sync appends whatever is needed to bring the output to a byte boundary
	// that a decoder can fully process without seeing the rest of the stream.
	Sync(dst []byte) []byte

	// Reset clears any internal state, preparing the Encoder to be used with
	// a new stream.
	Reset()
}

// Covered returns the number of source bytes described by matches.
func Covered(matches []Match) int {
	n := 0
	for _, m := range matches {
		n += m.Unmatched + m.Length
	}
	return n
}
