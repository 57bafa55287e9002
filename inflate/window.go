package inflate

import "github.com/andybalholm/deflate/internal/bitio"

// A Window is the sliding history of decompressed output: a ring buffer
// that literals and back-reference copies are written into, and that the
// caller drains. Bytes stay available as history after they are drained,
// until they are overwritten.
type Window struct {
	hist []byte
	mask int

	total  int64 // bytes written since Reset
	unread int   // bytes written but not yet drained
}

// NewWindow returns a Window holding size bytes of history. size must be a
// power of two.
func NewWindow(size int) *Window {
	return &Window{
		hist: make([]byte, size),
		mask: size - 1,
	}
}

// Size returns the capacity of the window.
func (w *Window) Size() int {
	return len(w.hist)
}

// Free returns the number of bytes that can be written before the window
// must be drained.
func (w *Window) Free() int {
	return len(w.hist) - w.unread
}

// Unread returns the number of bytes waiting to be drained.
func (w *Window) Unread() int {
	return w.unread
}

// HistSize returns how far back a copy may reach.
func (w *Window) HistSize() int {
	if w.total < int64(len(w.hist)) {
		return int(w.total)
	}
	return len(w.hist)
}

// Total returns the number of bytes written since the last Reset.
func (w *Window) Total() int64 {
	return w.total
}

func (w *Window) pos() int {
	return int(w.total) & w.mask
}

// WriteLiteral appends one literal. The caller must check Free first.
func (w *Window) WriteLiteral(b byte) {
	w.hist[w.pos()] = b
	w.total++
	w.unread++
}

// WriteCopy copies length bytes starting distance bytes back. It stops early
// when the window fills up, and returns the number of bytes copied.
//
// The caller must ensure 0 < distance <= HistSize().
func (w *Window) WriteCopy(length, distance int) int {
	if free := w.Free(); length > free {
		length = free
	}
	wr := w.pos()
	rd := (wr - distance) & w.mask
	if distance >= length && wr+length <= len(w.hist) && rd+length <= len(w.hist) {
		copy(w.hist[wr:wr+length], w.hist[rd:rd+length])
	} else {
		// Overlapping or wrapping: the copy may read bytes it has just
		// written, so it has to go one byte at a time.
		for i := 0; i < length; i++ {
			w.hist[wr] = w.hist[rd]
			wr = (wr + 1) & w.mask
			rd = (rd + 1) & w.mask
		}
	}
	w.total += int64(length)
	w.unread += length
	return length
}

// ReadFrom copies up to n byte-aligned bytes from in, as far as input and
// free space allow, and returns the number copied.
func (w *Window) ReadFrom(in *bitio.InputBuffer, n int) int {
	copied := 0
	for copied < n {
		limit := n - copied
		if free := w.Free(); limit > free {
			limit = free
		}
		wr := w.pos()
		if wr+limit > len(w.hist) {
			limit = len(w.hist) - wr
		}
		if limit == 0 {
			break
		}
		c := in.CopyTo(w.hist[wr : wr+limit])
		w.total += int64(c)
		w.unread += c
		copied += c
		if c < limit {
			break
		}
	}
	return copied
}

// CopyTo drains unread bytes into out and returns the number copied.
func (w *Window) CopyTo(out []byte) int {
	n := 0
	for n < len(out) && w.unread > 0 {
		start := (int(w.total) - w.unread) & w.mask
		end := start + w.unread
		if end > len(w.hist) {
			end = len(w.hist)
		}
		c := copy(out[n:], w.hist[start:end])
		n += c
		w.unread -= c
	}
	return n
}

// Reset clears the history.
func (w *Window) Reset() {
	w.total = 0
	w.unread = 0
}
