package deflate

import (
	"encoding/binary"
	"math/bits"
)

const (
	hashTableBits = 14
	hashTableSize = 1 << hashTableBits
	hashTableMask = hashTableSize - 1
	hashMul32     = 0x1e35a7bd

	minHistory = 1 << 15
	maxHistory = 1 << 18

	minMatch = 4
)

// HashFinder is a fast MatchFinder that looks up each position in a single
// table of 4-byte hashes and takes the first match it finds. It keeps the
// previous input as history, so matches may reach back into earlier calls
// to FindMatches. Its output respects the DEFLATE limits on length and
// distance, so it can feed any Encoder in this module.
type HashFinder struct {
	// MaxDistance is the maximum distance to look back for a match.
	// The default, and the largest value allowed, is 32768.
	MaxDistance int

	table   [hashTableSize]uint32
	history []byte
}

func (h *HashFinder) Reset() {
	h.table = [hashTableSize]uint32{}
	h.history = h.history[:0]
}

// FindMatches looks for matches in src, appends them to dst, and returns dst.
func (h *HashFinder) FindMatches(dst []Match, src []byte) []Match {
	if h.MaxDistance <= 0 || h.MaxDistance > 32768 {
		h.MaxDistance = 32768
	}

	if len(h.history) > maxHistory {
		delta := len(h.history) - minHistory
		copy(h.history, h.history[delta:])
		h.history = h.history[:minHistory]

		for i, v := range h.table {
			p := int(v) - delta
			if p < 0 {
				p = 0
			}
			h.table[i] = uint32(p)
		}
	}

	start := len(h.history)
	h.history = append(h.history, src...)
	return h.parse(dst, start, len(h.history))
}

func (h *HashFinder) parse(dst []Match, start, end int) []Match {
	s := start
	nextEmit := start

	for s < end {
		mStart, mEnd, mPos, ok := h.search(s, nextEmit, end)
		if !ok {
			s++
			continue
		}
		dst = appendMatch(dst, mStart-nextEmit, mEnd-mStart, mStart-mPos)
		nextEmit = mEnd
		s = nextEmit
	}

	if nextEmit < end {
		dst = append(dst, Match{Unmatched: end - nextEmit})
	}
	return dst
}

// appendMatch appends a match, splitting it into pieces no longer than 258
// bytes. No piece is left shorter than 3 bytes.
func appendMatch(dst []Match, unmatched, length, distance int) []Match {
	for length > 258 {
		n := 258
		if length-n < 3 {
			n = length - 3
		}
		dst = append(dst, Match{Unmatched: unmatched, Length: n, Distance: distance})
		unmatched = 0
		length -= n
	}
	return append(dst, Match{Unmatched: unmatched, Length: length, Distance: distance})
}

func hash4(u uint32) uint32 {
	return (u * hashMul32) >> (32 - hashTableBits)
}

// search returns the match found at pos, extended forward up to max and
// backward down to min.
func (h *HashFinder) search(pos, min, max int) (start, end, match int, ok bool) {
	src := h.history
	if pos+minMatch > len(src) {
		return 0, 0, 0, false
	}

	cur := binary.LittleEndian.Uint32(src[pos:])
	key := hash4(cur) & hashTableMask
	candidate := int(h.table[key])
	h.table[key] = uint32(pos)

	if candidate == 0 || pos-candidate > h.MaxDistance {
		return 0, 0, 0, false
	}
	if cur != binary.LittleEndian.Uint32(src[candidate:]) {
		return 0, 0, 0, false
	}

	start = pos
	match = candidate
	end = extendMatch(src[:max], match+minMatch, start+minMatch)
	for start > min && match > 0 && src[start-1] == src[match-1] {
		start--
		match--
	}
	return start, end, match, true
}

// extendMatch returns the largest k such that k <= len(src) and that
// src[i:i+k-j] and src[j:k] have the same contents. It assumes that
// 0 <= i && i < j && j <= len(src).
func extendMatch(src []byte, i, j int) int {
	for j+8 < len(src) {
		a := binary.LittleEndian.Uint64(src[i:])
		b := binary.LittleEndian.Uint64(src[j:])
		if a != b {
			return j + bits.TrailingZeros64(a^b)>>3
		}
		i, j = i+8, j+8
	}
	for ; j < len(src) && src[i] == src[j]; i, j = i+1, j+1 {
	}
	return j
}
