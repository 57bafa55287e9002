package inflate

import (
	"bytes"
	"io"
	"sync"

	"github.com/pkg/errors"
)

const inputBufferSize = 32 << 10

// A Reader decompresses a DEFLATE stream read from an underlying io.Reader.
type Reader struct {
	r   io.Reader
	f   *Inflater
	buf []byte
	eof bool
	err error
}

// NewReader returns a Reader that decompresses data read from r. It reads
// in chunks, so it may read past the end of the compressed stream; callers
// that need the trailing bytes should drive an Inflater directly.
func NewReader(r io.Reader, opts ...Option) *Reader {
	return &Reader{
		r:   r,
		f:   New(opts...),
		buf: make([]byte, inputBufferSize),
	}
}

// Inflater returns the engine behind z.
func (z *Reader) Inflater() *Inflater {
	return z.f
}

func (z *Reader) Read(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := z.f.Inflate(p)
		if err != nil {
			z.err = err
			return n, err
		}
		if n > 0 {
			return n, nil
		}
		if z.f.Finished() {
			z.err = io.EOF
			return 0, io.EOF
		}
		if !z.f.NeedsInput() {
			z.err = errors.New("inflate: no progress with input pending")
			return 0, z.err
		}
		if z.eof {
			if err := z.f.EndOfInput(); err != nil {
				z.err = err
				return 0, err
			}
			z.err = io.EOF
			return 0, io.EOF
		}

		m, err := z.r.Read(z.buf)
		if m > 0 {
			if serr := z.f.SetInput(z.buf[:m]); serr != nil {
				z.err = serr
				return 0, serr
			}
		}
		switch {
		case err == io.EOF:
			z.eof = true
		case err != nil:
			z.err = errors.Wrap(err, "inflate: reading compressed data")
			return 0, z.err
		}
	}
}

// Close does not close the underlying reader.
func (z *Reader) Close() error {
	if z.err == io.EOF {
		return nil
	}
	return z.err
}

// Reset discards z's state and makes it read from r.
func (z *Reader) Reset(r io.Reader) {
	z.r = r
	z.f.Reset()
	z.eof = false
	z.err = nil
}

var outputPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 64<<10)
		return &b
	},
}

// Decompress decodes a complete DEFLATE stream held in memory.
func Decompress(src []byte, opts ...Option) ([]byte, error) {
	f := New(opts...)
	if err := f.SetInput(src); err != nil {
		return nil, err
	}
	bp := outputPool.Get().(*[]byte)
	defer outputPool.Put(bp)
	chunk := *bp

	var out bytes.Buffer
	for !f.Finished() {
		n, err := f.Inflate(chunk)
		out.Write(chunk[:n])
		if err != nil {
			return out.Bytes(), err
		}
		if n == 0 {
			if err := f.EndOfInput(); err != nil {
				return out.Bytes(), err
			}
			break
		}
	}
	return out.Bytes(), nil
}
