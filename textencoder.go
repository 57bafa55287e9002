package deflate

import "fmt"

// A TextEncoder is an Encoder that produces a human-readable representation of
// the LZ77 compression. Matches are replaced with <Length,Distance> symbols,
// and each block ends with a marker line.
type TextEncoder struct {
	blocks int
}

func (t *TextEncoder) Header(dst []byte) []byte {
	return dst
}

func (t *TextEncoder) Reset() {
	t.blocks = 0
}

func (t *TextEncoder) Sync(dst []byte) []byte {
	return append(dst, "\n[sync]\n"...)
}

func (t *TextEncoder) Encode(dst []byte, src []byte, matches []Match, lastBlock bool) []byte {
	pos := 0
	for _, m := range matches {
		if m.Unmatched > 0 {
			dst = append(dst, src[pos:pos+m.Unmatched]...)
			pos += m.Unmatched
		}
		if m.Length > 0 {
			dst = append(dst, fmt.Sprintf("<%d,%d>", m.Length, m.Distance)...)
			pos += m.Length
		}
	}
	if pos < len(src) {
		dst = append(dst, src[pos:]...)
	}
	t.blocks++
	final := ""
	if lastBlock {
		final = " final"
	}
	return append(dst, fmt.Sprintf("\n[block %d: %d bytes, %d matches%s]\n", t.blocks, len(src), len(matches), final)...)
}
