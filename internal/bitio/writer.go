package bitio

// A Writer packs variable-length bit fields into bytes, least significant
// bit first. Complete bytes are appended to Dst; up to 7 bits stay in the
// accumulator until more bits arrive or the writer is aligned.
type Writer struct {
	Dst []byte

	bits  uint64
	nbits uint
}

// WriteBits writes the low n bits of v. n must be at most 32.
func (w *Writer) WriteBits(n uint, v uint64) {
	w.bits |= (v & (1<<n - 1)) << w.nbits
	w.nbits += n
	for w.nbits >= 8 {
		w.Dst = append(w.Dst, byte(w.bits))
		w.bits >>= 8
		w.nbits -= 8
	}
}

// AlignToByte pads the accumulator with zero bits up to the next byte
// boundary and writes it out.
func (w *Writer) AlignToByte() {
	if w.nbits > 0 {
		w.Dst = append(w.Dst, byte(w.bits))
	}
	w.bits = 0
	w.nbits = 0
}

// WriteBytes writes b at a byte boundary. The caller must align first.
func (w *Writer) WriteBytes(b []byte) {
	if w.nbits != 0 {
		panic("bitio: WriteBytes called off a byte boundary")
	}
	w.Dst = append(w.Dst, b...)
}

// PendingBits returns the number of bits waiting in the accumulator.
func (w *Writer) PendingBits() int {
	return int(w.nbits)
}

// Reset discards all state, including Dst.
func (w *Writer) Reset() {
	*w = Writer{}
}
