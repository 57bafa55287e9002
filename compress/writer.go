package compress

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/andybalholm/deflate"
)

const outputBufferSize = 32 << 10

// A Writer compresses the data written to it and writes the result to an
// underlying io.Writer.
type Writer struct {
	mu   sync.Mutex
	dest io.Writer
	d    *Deflater
	buf  []byte
	err  error
}

// NewWriter returns a Writer that compresses at the given level. The options
// are passed to New.
func NewWriter(w io.Writer, level deflate.Level, opts ...Option) (*Writer, error) {
	d, err := New(level, opts...)
	if err != nil {
		return nil, err
	}
	return &Writer{
		dest: w,
		d:    d,
		buf:  make([]byte, outputBufferSize),
	}, nil
}

// Deflater returns the engine behind w.
func (w *Writer) Deflater() *Deflater {
	return w.d
}

func (w *Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := w.d.SetInput(p); err != nil {
		w.err = err
		return 0, err
	}
	for !w.d.NeedsInput() {
		c := w.d.Deflate(w.buf)
		if err := w.output(c); err != nil {
			return 0, err
		}
	}
	// Anything still pending stays in the Deflater until the next call.
	return len(p), nil
}

// Flush writes everything written so far to the underlying writer in a form
// that a decoder can fully process.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	c := w.d.Flush(w.buf)
	for c > 0 {
		if err := w.output(c); err != nil {
			return err
		}
		c = w.d.Deflate(w.buf)
	}
	return nil
}

// Close finishes the stream. It does not close the underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		if w.err == errClosed {
			return nil
		}
		return w.err
	}
	for {
		c, done := w.d.Finish(w.buf)
		if err := w.output(c); err != nil {
			return err
		}
		if done {
			break
		}
	}
	w.err = errClosed
	return nil
}

var errClosed = errors.New("compress: Writer is closed")

// Reset discards w's state and makes it write to dest, with the same level
// and options.
func (w *Writer) Reset(dest io.Writer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dest = dest
	w.d.Reset()
	w.err = nil
}

func (w *Writer) output(n int) error {
	if n == 0 {
		return nil
	}
	if _, err := w.dest.Write(w.buf[:n]); err != nil {
		w.err = errors.Wrap(err, "compress: writing compressed data")
		return w.err
	}
	return nil
}

// Compress compresses src in one call.
func Compress(src []byte, level deflate.Level, opts ...Option) ([]byte, error) {
	d, err := New(level, opts...)
	if err != nil {
		return nil, err
	}
	if err := d.SetInput(src); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(src)/2+64)
	buf := make([]byte, outputBufferSize)
	for {
		n, done := d.Finish(buf)
		out = append(out, buf[:n]...)
		if done {
			return out, nil
		}
	}
}
