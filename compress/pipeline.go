package compress

import (
	"io"

	"github.com/pkg/errors"

	"github.com/andybalholm/deflate"
)

const defaultPipelineBlock = 1 << 16

// A Pipeline is an io.WriteCloser that compresses with any MatchFinder and
// any Encoder. Input is gathered into blocks of BlockSize bytes; each block
// goes through MatchFinder.FindMatches and then Encoder.Encode.
//
// The Deflater fuses both stages for speed. A Pipeline keeps them apart,
// so that for example a HashFinder can drive a gzip encoder, or the
// Deflater's matches can be printed with a TextEncoder.
type Pipeline struct {
	Dest        io.Writer
	MatchFinder deflate.MatchFinder
	Encoder     deflate.Encoder

	// BlockSize is the amount of input per block. The default is 64 KiB.
	BlockSize int

	inBuf       []byte
	outBuf      []byte
	matches     []deflate.Match
	wroteHeader bool
	err         error
}

// NewPipeline returns a Pipeline writing to w. If enc is nil, a
// BlockEncoder is used.
func NewPipeline(w io.Writer, mf deflate.MatchFinder, enc deflate.Encoder) *Pipeline {
	if enc == nil {
		enc = NewBlockEncoder()
	}
	return &Pipeline{Dest: w, MatchFinder: mf, Encoder: enc}
}

func (p *Pipeline) Write(b []byte) (n int, err error) {
	if p.err != nil {
		return 0, p.err
	}
	if p.BlockSize <= 0 {
		p.BlockSize = defaultPipelineBlock
	}
	for len(b) > 0 {
		take := p.BlockSize - len(p.inBuf)
		if take > len(b) {
			take = len(b)
		}
		p.inBuf = append(p.inBuf, b[:take]...)
		b = b[take:]
		n += take

		if len(p.inBuf) >= p.BlockSize {
			if err := p.encode(false); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

func (p *Pipeline) encode(last bool) error {
	p.outBuf = p.outBuf[:0]
	if !p.wroteHeader {
		p.outBuf = p.Encoder.Header(p.outBuf)
		p.wroteHeader = true
	}
	p.matches = p.MatchFinder.FindMatches(p.matches[:0], p.inBuf)
	p.outBuf = p.Encoder.Encode(p.outBuf, p.inBuf, p.matches, last)
	p.inBuf = p.inBuf[:0]
	return p.output()
}

func (p *Pipeline) output() error {
	if len(p.outBuf) == 0 {
		return nil
	}
	if _, err := p.Dest.Write(p.outBuf); err != nil {
		p.err = errors.Wrap(err, "compress: writing compressed data")
		return p.err
	}
	return nil
}

// Flush encodes any buffered input and then writes the Encoder's sync
// marker.
func (p *Pipeline) Flush() error {
	if p.err != nil {
		return p.err
	}
	if len(p.inBuf) > 0 {
		if err := p.encode(false); err != nil {
			return err
		}
	}
	p.outBuf = p.outBuf[:0]
	if !p.wroteHeader {
		p.outBuf = p.Encoder.Header(p.outBuf)
		p.wroteHeader = true
	}
	p.outBuf = p.Encoder.Sync(p.outBuf)
	return p.output()
}

// Close encodes the last block. It does not close Dest.
func (p *Pipeline) Close() error {
	if p.err != nil {
		if p.err == errClosed {
			return nil
		}
		return p.err
	}
	if err := p.encode(true); err != nil {
		return err
	}
	p.err = errClosed
	return nil
}

// Reset discards p's state and makes it write to w.
func (p *Pipeline) Reset(w io.Writer) {
	p.Dest = w
	p.MatchFinder.Reset()
	p.Encoder.Reset()
	p.inBuf = p.inBuf[:0]
	p.wroteHeader = false
	p.err = nil
}
