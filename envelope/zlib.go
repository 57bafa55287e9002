package envelope

import (
	"encoding/binary"
	"hash"
	"hash/adler32"
	"io"

	"github.com/pkg/errors"

	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/compress"
	"github.com/andybalholm/deflate/inflate"
)

const (
	zlibDeflate   = 8
	zlibMaxWindow = 7
	zlibDict      = 0x20
)

// A ZlibEncoder frames the blocks of another Encoder as a zlib stream.
type ZlibEncoder struct {
	Level deflate.Level

	f     deflate.Encoder
	adler hash.Hash32
}

// NewZlibEncoder returns an encoder that writes zlib framing around the
// blocks written by f. If f is nil, a compress.BlockEncoder is used.
func NewZlibEncoder(f deflate.Encoder, level deflate.Level) *ZlibEncoder {
	if f == nil {
		f = compress.NewBlockEncoder()
	}
	return &ZlibEncoder{Level: level.Normalize(), f: f, adler: adler32.New()}
}

func (z *ZlibEncoder) Unwrap() deflate.Encoder {
	return z.f
}

func (z *ZlibEncoder) Reset() {
	z.f.Reset()
	z.adler.Reset()
}

// Header writes CMF and FLG: deflate with a 32 KiB window, no preset
// dictionary, and FLEVEL derived from the level.
func (z *ZlibEncoder) Header(dst []byte) []byte {
	cmf := byte(zlibMaxWindow<<4 | zlibDeflate)
	var flevel byte
	switch {
	case z.Level <= deflate.Fastest:
		flevel = 0
	case z.Level < deflate.Optimal:
		flevel = 1
	case z.Level == deflate.Optimal:
		flevel = 2
	default:
		flevel = 3
	}
	flg := flevel << 6
	flg += byte(31 - (uint16(cmf)<<8|uint16(flg))%31)
	dst = append(dst, cmf, flg)
	return z.f.Header(dst)
}

func (z *ZlibEncoder) Encode(dst []byte, src []byte, matches []deflate.Match, lastBlock bool) []byte {
	dst = z.f.Encode(dst, src, matches, lastBlock)
	z.adler.Write(src)
	if lastBlock {
		dst = binary.BigEndian.AppendUint32(dst, z.adler.Sum32())
	}
	return dst
}

func (z *ZlibEncoder) Sync(dst []byte) []byte {
	return z.f.Sync(dst)
}

// NewZlibWriter returns a writer that compresses to a zlib stream.
func NewZlibWriter(w io.Writer, level deflate.Level, opts ...compress.Option) (*compress.Writer, error) {
	enc := NewZlibEncoder(nil, level)
	return compress.NewWriter(w, level, append(opts, compress.WithEncoder(enc))...)
}

// A ZlibReader decompresses a zlib stream and verifies its checksum.
type ZlibReader struct {
	src *source
	f   *inflate.Inflater
	buf []byte
	eof bool

	digest hash.Hash32
	err    error
}

// NewZlibReader reads the zlib header from r. Streams that need a preset
// dictionary are rejected.
func NewZlibReader(r io.Reader, opts ...inflate.Option) (*ZlibReader, error) {
	z := &ZlibReader{
		src:    &source{r: r},
		f:      inflate.New(opts...),
		buf:    make([]byte, 32<<10),
		digest: adler32.New(),
	}
	var h [2]byte
	if _, err := io.ReadFull(z.src, h[:]); err != nil {
		return nil, errors.Wrap(ErrHeader, "zlib: short header")
	}
	if h[0]&0x0f != zlibDeflate || h[0]>>4 > zlibMaxWindow || binary.BigEndian.Uint16(h[:])%31 != 0 {
		return nil, errors.Wrapf(ErrHeader, "zlib: bad header %#02x %#02x", h[0], h[1])
	}
	if h[1]&zlibDict != 0 {
		return nil, errors.Wrap(ErrHeader, "zlib: preset dictionaries are not supported")
	}
	return z, nil
}

func (z *ZlibReader) Read(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := z.f.Inflate(p)
		z.digest.Write(p[:n])
		if err != nil {
			z.err = err
			return n, err
		}
		if n > 0 {
			return n, nil
		}

		if z.f.Finished() {
			z.src.unread(z.f.Unconsumed())
			var t [4]byte
			if _, err := io.ReadFull(z.src, t[:]); err != nil {
				z.err = errors.Wrap(deflate.ErrTruncated, "zlib: missing checksum")
				return 0, z.err
			}
			if got, want := z.digest.Sum32(), binary.BigEndian.Uint32(t[:]); got != want {
				z.err = errors.Wrapf(ErrChecksum, "zlib: adler32 %#08x, want %#08x", got, want)
				return 0, z.err
			}
			z.err = io.EOF
			return 0, io.EOF
		}

		if z.eof {
			if err := z.f.EndOfInput(); err != nil {
				z.err = err
				return 0, err
			}
			z.err = errors.Wrap(deflate.ErrTruncated, "zlib: missing checksum")
			return 0, z.err
		}

		m, err := z.src.Read(z.buf)
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
			z.err = errors.Wrap(err, "zlib: reading compressed data")
			return 0, z.err
		}
	}
}

// Close does not close the underlying reader.
func (z *ZlibReader) Close() error {
	if z.err == io.EOF {
		return nil
	}
	return z.err
}
