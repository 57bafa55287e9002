// Package bitio provides the bit-level input and output buffers used by the
// DEFLATE engines. Bits are packed least significant bit first, as RFC 1951
// section 3.1.1 requires.
package bitio

import (
	"github.com/pkg/errors"
)

// ErrInputPending is returned by SetInput when the buffer still holds
// unconsumed bytes.
var ErrInputPending = errors.New("bitio: previous input not consumed")

// An InputBuffer holds compressed input supplied by the caller and hands it
// out a few bits at a time. Running out of bits is not an error: the
// methods report it so the caller can suspend and retry after SetInput.
type InputBuffer struct {
	buf   []byte // unconsumed input is buf[start:]
	start int

	bits  uint64 // bits loaded from buf but not yet consumed
	nbits uint

	consumed int64 // total bytes moved out of buf
}

// SetInput supplies the next chunk of input. The previous chunk must have
// been fully loaded first; the bit accumulator may still hold up to 7 bits
// of it. The buffer keeps a reference to b.
func (in *InputBuffer) SetInput(b []byte) error {
	if !in.NeedsInput() {
		return errors.Wrapf(ErrInputPending, "%d bytes left", len(in.buf)-in.start)
	}
	in.buf = b
	in.start = 0
	return nil
}

// NeedsInput reports whether every supplied byte has been moved into the
// bit accumulator.
func (in *InputBuffer) NeedsInput() bool {
	return in.start >= len(in.buf)
}

// AvailableBits returns the number of bits that can be read without more
// input.
func (in *InputBuffer) AvailableBits() int {
	return int(in.nbits) + 8*(len(in.buf)-in.start)
}

// AvailableBytes returns the number of whole bytes still buffered,
// counting the accumulator.
func (in *InputBuffer) AvailableBytes() int {
	return int(in.nbits/8) + len(in.buf) - in.start
}

// Offset returns the number of bytes consumed so far, across all inputs.
func (in *InputBuffer) Offset() int64 {
	return in.consumed - int64(in.nbits/8)
}

// EnsureBitsAvailable loads bytes into the accumulator until it holds at
// least n bits. It returns false if the input runs out first; the bytes
// that were loaded stay loaded. n must be at most 32.
func (in *InputBuffer) EnsureBitsAvailable(n int) bool {
	for in.nbits < uint(n) {
		if in.start >= len(in.buf) {
			return false
		}
		in.bits |= uint64(in.buf[in.start]) << in.nbits
		in.nbits += 8
		in.start++
		in.consumed++
	}
	return true
}

// Peek loads as many bits as it can, up to at least n, and returns the
// accumulator along with the number of valid bits in it. Nothing is
// consumed.
func (in *InputBuffer) Peek(n int) (bits uint64, nbits int) {
	in.EnsureBitsAvailable(n)
	return in.bits, int(in.nbits)
}

// GetBits consumes n bits and returns them, or returns -1 without consuming
// anything if fewer than n bits are available.
func (in *InputBuffer) GetBits(n int) int {
	if !in.EnsureBitsAvailable(n) {
		return -1
	}
	v := int(in.bits & (1<<uint(n) - 1))
	in.bits >>= uint(n)
	in.nbits -= uint(n)
	return v
}

// SkipBits drops n bits that a previous Peek showed to be available.
func (in *InputBuffer) SkipBits(n int) {
	if uint(n) > in.nbits {
		panic("bitio: skipping bits that are not loaded")
	}
	in.bits >>= uint(n)
	in.nbits -= uint(n)
}

// SkipToByteBoundary discards the bits left over from a partially consumed
// byte.
func (in *InputBuffer) SkipToByteBoundary() {
	drop := in.nbits % 8
	in.bits >>= drop
	in.nbits -= drop
}

// CopyTo copies byte-aligned input into dst and returns the count. It must
// only be called at a byte boundary.
func (in *InputBuffer) CopyTo(dst []byte) int {
	if in.nbits%8 != 0 {
		panic("bitio: CopyTo called off a byte boundary")
	}
	n := 0
	for n < len(dst) && in.nbits > 0 {
		dst[n] = byte(in.bits)
		in.bits >>= 8
		in.nbits -= 8
		n++
	}
	c := copy(dst[n:], in.buf[in.start:])
	in.start += c
	in.consumed += int64(c)
	return n + c
}

// Unconsumed returns the whole bytes that have not been consumed, after
// dropping any partial byte. The accumulator is emptied, so the returned
// slice may be a fresh copy.
func (in *InputBuffer) Unconsumed() []byte {
	in.SkipToByteBoundary()
	rest := in.buf[in.start:]
	if in.nbits > 0 {
		head := make([]byte, 0, int(in.nbits/8)+len(rest))
		for in.nbits > 0 {
			head = append(head, byte(in.bits))
			in.bits >>= 8
			in.nbits -= 8
		}
		rest = append(head, rest...)
	}
	in.consumed += int64(len(in.buf) - in.start)
	in.buf, in.start = nil, 0
	in.bits = 0
	return rest
}

// Reset drops all buffered input.
func (in *InputBuffer) Reset() {
	*in = InputBuffer{}
}
