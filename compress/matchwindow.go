// Copyright 2009 The Go Authors. All rights reserved.
// Copyright (c) 2015 Klaus Post
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compress

import (
	"encoding/binary"
	"math/bits"

	"github.com/andybalholm/deflate"
)

const (
	logWindowSize = 15
	windowSize    = 1 << logWindowSize
	windowMask    = windowSize - 1

	minMatchLength = 3   // The smallest match that the compressor looks for
	maxMatchLength = 258 // The longest match for the compressor

	// minLookahead is how much unprocessed input the compressor wants
	// before it searches for matches, unless it is flushing.
	minLookahead = maxMatchLength + minMatchLength + 1

	// maxDistance keeps every match inside the bytes the window still
	// holds, even with a full look-ahead buffered.
	maxDistance = windowSize - minLookahead

	// Matches of minimum length that are farther away than tooFar cost
	// more than the literals they replace.
	tooFar = 4096

	hashBits      = 15
	hashSize      = 1 << hashBits
	hashMask      = hashSize - 1
	maxHashOffset = 1 << 24

	// maxTokens is the size of the symbol tally: a block is closed when it
	// holds this many literals and matches.
	maxTokens = 1 << 14
)

// A MatchWindow holds the uncompressed input the Deflater is working on,
// the hash chains that index it, and the tally of symbols chosen for the
// current block.
type MatchWindow struct {
	// input window: unprocessed data is window[index:windowEnd]
	window    []byte
	windowEnd int
	index     int

	// blockStart is where the bytes described by the tally begin.
	blockStart int

	// Input hash chains
	// hashHead[hashValue] contains the largest inputIndex with the specified hash value
	// If hashHead[hashValue] is within the current window, then
	// hashPrev[hashHead[hashValue] & windowMask] contains the previous index
	// with the same hash value.
	hashHead   [hashSize]uint32
	hashPrev   [windowSize]uint32
	hashOffset int

	// Symbol tally for the current block.
	matches   []deflate.Match
	unmatched int
	tokens    int
	covered   int
}

func newMatchWindow() *MatchWindow {
	w := &MatchWindow{
		window:  make([]byte, 2*windowSize),
		matches: make([]deflate.Match, 0, 1024),
	}
	w.Reset()
	return w
}

// Reset clears the window, the hash chains and the tally.
func (w *MatchWindow) Reset() {
	w.windowEnd, w.index, w.blockStart = 0, 0, 0
	for i := range w.hashHead {
		w.hashHead[i] = 0
	}
	for i := range w.hashPrev {
		w.hashPrev[i] = 0
	}
	w.hashOffset = 1
	w.resetTally()
}

func (w *MatchWindow) resetTally() {
	w.matches = w.matches[:0]
	w.unmatched = 0
	w.tokens = 0
	w.covered = 0
}

// lookahead returns the number of buffered bytes not yet processed.
func (w *MatchWindow) lookahead() int {
	return w.windowEnd - w.index
}

// needsShift reports whether the window has to slide before more input can
// be processed.
func (w *MatchWindow) needsShift() bool {
	return w.index >= 2*windowSize-minLookahead
}

// fill copies as much of b into the window as fits and returns the count.
func (w *MatchWindow) fill(b []byte) int {
	n := copy(w.window[w.windowEnd:], b)
	w.windowEnd += n
	return n
}

// shift slides the window down by windowSize. The tally must be empty.
func (w *MatchWindow) shift() {
	if w.covered != 0 {
		panic("compress: window shifted with a pending block")
	}
	copy(w.window, w.window[windowSize:w.windowEnd])
	w.index -= windowSize
	w.windowEnd -= windowSize
	w.blockStart -= windowSize

	w.hashOffset += windowSize
	if w.hashOffset > maxHashOffset {
		delta := w.hashOffset - 1
		w.hashOffset -= delta
		// Iterate over slices instead of arrays to avoid copying
		// the entire table onto the stack (Issue #18625).
		for i, v := range w.hashPrev[:] {
			if int(v) > delta {
				w.hashPrev[i] = uint32(int(v) - delta)
			} else {
				w.hashPrev[i] = 0
			}
		}
		for i, v := range w.hashHead[:] {
			if int(v) > delta {
				w.hashHead[i] = uint32(int(v) - delta)
			} else {
				w.hashHead[i] = 0
			}
		}
	}
}

const prime3bytes = 506832829

// hash3 returns the hash of the 3 bytes at the start of b.
func hash3(b []byte) uint32 {
	u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	return (u * prime3bytes) >> (32 - hashBits) & hashMask
}

// insert adds pos to the hash chains and returns the previous position with
// the same hash, or a negative number if there is none. The caller must
// ensure pos+minMatchLength <= windowEnd.
func (w *MatchWindow) insert(pos int) int {
	h := hash3(w.window[pos : pos+minMatchLength])
	head := w.hashHead[h]
	w.hashPrev[pos&windowMask] = head
	w.hashHead[h] = uint32(pos + w.hashOffset)
	return int(head) - w.hashOffset
}

// insertRange inserts the positions in [start, end) that have enough bytes
// after them to be hashed.
func (w *MatchWindow) insertRange(start, end int) {
	if limit := w.windowEnd - minMatchLength + 1; end > limit {
		end = limit
	}
	for pos := start; pos < end; pos++ {
		w.insert(pos)
	}
}

// Try to find a match starting at pos whose length is greater than prevLength.
// We only look at p.chain possibilities before giving up.
func (w *MatchWindow) findMatch(pos, prevHead, prevLength, lookahead int, p *compressionLevel) (length, offset int, ok bool) {
	minMatchLook := maxMatchLength
	if lookahead < minMatchLook {
		minMatchLook = lookahead
	}

	win := w.window[0 : pos+minMatchLook]

	// We quit when we get a match that's at least nice long
	nice := len(win) - pos
	if p.nice < nice {
		nice = p.nice
	}

	// If we've got a match that's good enough, only look in 1/4 the chain.
	tries := p.chain
	length = prevLength
	if length >= p.good {
		tries >>= 2
	}

	wEnd := win[pos+length]
	wPos := win[pos:]
	minIndex := pos - maxDistance

	for i := prevHead; tries > 0; tries-- {
		if wEnd == win[i+length] {
			n := matchLen(win[i:i+minMatchLook], wPos)

			if n > length && (n > minMatchLength || pos-i <= tooFar) {
				length = n
				offset = pos - i
				ok = true
				if n >= nice {
					// The match is good enough that we don't try to find a better one.
					break
				}
				wEnd = win[pos+n]
			}
		}
		if i == minIndex {
			// hashPrev[i & windowMask] has already been overwritten, so stop now.
			break
		}
		i = int(w.hashPrev[i&windowMask]) - w.hashOffset
		if i < minIndex || i < 0 {
			break
		}
	}
	return
}

// matchLen returns the maximum length.
// 'a' must be the shortest of the two.
func matchLen(a, b []byte) int {
	var checked int

	for len(a) >= 8 {
		if diff := binary.LittleEndian.Uint64(a) ^ binary.LittleEndian.Uint64(b); diff != 0 {
			return checked + (bits.TrailingZeros64(diff) >> 3)
		}
		checked += 8
		a = a[8:]
		b = b[8:]
	}
	b = b[:len(a)]
	for i := range a {
		if a[i] != b[i] {
			return i + checked
		}
	}
	return len(a) + checked
}

// tallyLiteral records the next unprocessed byte of the block as a literal.
func (w *MatchWindow) tallyLiteral() {
	w.unmatched++
	w.tokens++
	w.covered++
}

// tallyLiterals records n literals at once. It is used for stored blocks,
// where the whole tally is a single run and does not count against
// maxTokens.
func (w *MatchWindow) tallyLiterals(n int) {
	w.unmatched += n
	w.covered += n
}

// tallyMatch records a back-reference.
func (w *MatchWindow) tallyMatch(length, distance int) {
	w.matches = append(w.matches, deflate.Match{
		Unmatched: w.unmatched,
		Length:    length,
		Distance:  distance,
	})
	w.unmatched = 0
	w.tokens++
	w.covered += length
}

// tallyFull reports whether the current block should be closed.
func (w *MatchWindow) tallyFull() bool {
	return w.tokens >= maxTokens
}

// takeBlock returns the bytes and matches of the current block and starts a
// new one. The results are only valid until the window changes.
func (w *MatchWindow) takeBlock() (src []byte, matches []deflate.Match) {
	if w.unmatched > 0 {
		w.matches = append(w.matches, deflate.Match{Unmatched: w.unmatched})
	}
	src = w.window[w.blockStart : w.blockStart+w.covered]
	matches = w.matches
	w.blockStart += w.covered
	w.resetTally()
	return src, matches
}
