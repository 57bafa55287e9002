// Package envelope adds the gzip (RFC 1952) and zlib (RFC 1950) framing
// around raw DEFLATE streams.
package envelope

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/compress"
	"github.com/andybalholm/deflate/inflate"
)

const (
	gzipID1     = 0x1f
	gzipID2     = 0x8b
	gzipDeflate = 8

	flagText    = 1 << 0
	flagHdrCrc  = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4

	// OSUnknown is the OS byte written when none is set.
	OSUnknown = 255
)

var (
	// ErrHeader reports a gzip or zlib header that cannot be decoded.
	ErrHeader = errors.New("envelope: invalid header")

	// ErrChecksum reports a trailer that does not match the decoded data.
	ErrChecksum = errors.New("envelope: checksum mismatch")
)

// GzipHeader holds the optional fields of a gzip member header.
type GzipHeader struct {
	Name    string
	Comment string
	Extra   []byte
	ModTime time.Time
	OS      byte
}

// A GzipEncoder frames the blocks of another Encoder as a gzip member.
type GzipEncoder struct {
	Info  GzipHeader
	Level deflate.Level

	f      deflate.Encoder
	length uint32
	crc    uint32
}

// NewGzipEncoder returns an encoder that writes gzip framing around the
// blocks written by f. If f is nil, a compress.BlockEncoder is used.
func NewGzipEncoder(f deflate.Encoder, level deflate.Level, h GzipHeader) *GzipEncoder {
	if f == nil {
		f = compress.NewBlockEncoder()
	}
	return &GzipEncoder{Info: h, Level: level.Normalize(), f: f}
}

func (g *GzipEncoder) Unwrap() deflate.Encoder {
	return g.f
}

func (g *GzipEncoder) Reset() {
	g.f.Reset()
	g.length = 0
	g.crc = 0
}

func (g *GzipEncoder) Header(dst []byte) []byte {
	h := g.Info
	var flags byte
	if h.Extra != nil {
		flags |= flagExtra
	}
	if h.Name != "" {
		flags |= flagName
	}
	if h.Comment != "" {
		flags |= flagComment
	}
	var mtime uint32
	if !h.ModTime.IsZero() && h.ModTime.Unix() > 0 {
		mtime = uint32(h.ModTime.Unix())
	}
	var xfl byte
	switch g.Level {
	case deflate.SmallestSize:
		xfl = 2
	case deflate.Fastest:
		xfl = 4
	}
	os := h.OS
	if os == 0 {
		os = OSUnknown
	}

	dst = append(dst, gzipID1, gzipID2, gzipDeflate, flags)
	dst = binary.LittleEndian.AppendUint32(dst, mtime)
	dst = append(dst, xfl, os)
	if h.Extra != nil {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(h.Extra)))
		dst = append(dst, h.Extra...)
	}
	if h.Name != "" {
		dst = appendLatin1(dst, h.Name)
	}
	if h.Comment != "" {
		dst = appendLatin1(dst, h.Comment)
	}
	return g.f.Header(dst)
}

// appendLatin1 appends s as a zero-terminated ISO 8859-1 string. Characters
// outside Latin-1, and NUL, become '?'.
func appendLatin1(dst []byte, s string) []byte {
	for _, r := range s {
		if r == 0 || r > 0xff {
			r = '?'
		}
		dst = append(dst, byte(r))
	}
	return append(dst, 0)
}

func (g *GzipEncoder) Encode(dst []byte, src []byte, matches []deflate.Match, lastBlock bool) []byte {
	dst = g.f.Encode(dst, src, matches, lastBlock)

	g.length += uint32(len(src))
	g.crc = crc32.Update(g.crc, crc32.IEEETable, src)

	if lastBlock {
		dst = binary.LittleEndian.AppendUint32(dst, g.crc)
		dst = binary.LittleEndian.AppendUint32(dst, g.length)
	}
	return dst
}

func (g *GzipEncoder) Sync(dst []byte) []byte {
	return g.f.Sync(dst)
}

// NewGzipWriter returns a writer that compresses to a single gzip member.
func NewGzipWriter(w io.Writer, level deflate.Level, h GzipHeader, opts ...compress.Option) (*compress.Writer, error) {
	enc := NewGzipEncoder(nil, level, h)
	return compress.NewWriter(w, level, append(opts, compress.WithEncoder(enc))...)
}

// A GzipReader decompresses gzip data. Concatenated members are decoded as
// one stream; anything after the last member that does not start with the
// gzip magic number is ignored.
type GzipReader struct {
	Header GzipHeader

	src         *source
	f           *inflate.Inflater
	buf         []byte
	eof         bool
	multistream bool
	members     int

	digest uint32
	size   uint32
	err    error
}

// NewGzipReader reads the first member header from r.
func NewGzipReader(r io.Reader, opts ...inflate.Option) (*GzipReader, error) {
	z := &GzipReader{
		src:         &source{r: r},
		f:           inflate.New(opts...),
		buf:         make([]byte, 32<<10),
		multistream: true,
	}
	if err := z.readHeader(); err != nil {
		return nil, err
	}
	return z, nil
}

// Multistream controls whether members after the first are decoded.
func (z *GzipReader) Multistream(ok bool) {
	z.multistream = ok
}

// Members returns the number of members whose headers have been read.
func (z *GzipReader) Members() int {
	return z.members
}

func (z *GzipReader) readHeader() error {
	var hdr [10]byte
	if _, err := io.ReadFull(z.src, hdr[:]); err != nil {
		if err == io.EOF {
			return err
		}
		return errors.Wrap(ErrHeader, "gzip: short header")
	}
	if hdr[0] != gzipID1 || hdr[1] != gzipID2 {
		return errors.Wrapf(ErrHeader, "gzip: bad magic %#02x %#02x", hdr[0], hdr[1])
	}
	if hdr[2] != gzipDeflate {
		return errors.Wrapf(ErrHeader, "gzip: compression method %d", hdr[2])
	}
	flags := hdr[3]
	digest := crc32.Update(0, crc32.IEEETable, hdr[:])

	h := GzipHeader{OS: hdr[9]}
	if t := int64(binary.LittleEndian.Uint32(hdr[4:8])); t > 0 {
		h.ModTime = time.Unix(t, 0)
	}

	if flags&flagExtra != 0 {
		var n [2]byte
		if _, err := io.ReadFull(z.src, n[:]); err != nil {
			return errors.Wrap(ErrHeader, "gzip: short extra field")
		}
		digest = crc32.Update(digest, crc32.IEEETable, n[:])
		h.Extra = make([]byte, binary.LittleEndian.Uint16(n[:]))
		if _, err := io.ReadFull(z.src, h.Extra); err != nil {
			return errors.Wrap(ErrHeader, "gzip: short extra field")
		}
		digest = crc32.Update(digest, crc32.IEEETable, h.Extra)
	}
	var err error
	if flags&flagName != 0 {
		if h.Name, digest, err = z.readString(digest); err != nil {
			return err
		}
	}
	if flags&flagComment != 0 {
		if h.Comment, digest, err = z.readString(digest); err != nil {
			return err
		}
	}
	if flags&flagHdrCrc != 0 {
		var c [2]byte
		if _, err := io.ReadFull(z.src, c[:]); err != nil {
			return errors.Wrap(ErrHeader, "gzip: short header checksum")
		}
		if binary.LittleEndian.Uint16(c[:]) != uint16(digest) {
			return errors.Wrap(ErrChecksum, "gzip: header checksum")
		}
	}

	z.Header = h
	z.members++
	z.digest = 0
	z.size = 0
	return nil
}

// readString reads a zero-terminated Latin-1 string.
func (z *GzipReader) readString(digest uint32) (string, uint32, error) {
	var s []rune
	var b [1]byte
	for {
		if _, err := io.ReadFull(z.src, b[:]); err != nil {
			return "", digest, errors.Wrap(ErrHeader, "gzip: unterminated string")
		}
		digest = crc32.Update(digest, crc32.IEEETable, b[:])
		if b[0] == 0 {
			return string(s), digest, nil
		}
		s = append(s, rune(b[0]))
	}
}

func (z *GzipReader) readTrailer() error {
	var t [8]byte
	if _, err := io.ReadFull(z.src, t[:]); err != nil {
		return errors.Wrap(deflate.ErrTruncated, "gzip: missing trailer")
	}
	if binary.LittleEndian.Uint32(t[:4]) != z.digest {
		return errors.Wrapf(ErrChecksum, "gzip: crc32 %#08x, want %#08x", z.digest, binary.LittleEndian.Uint32(t[:4]))
	}
	if binary.LittleEndian.Uint32(t[4:]) != z.size {
		return errors.Wrapf(ErrChecksum, "gzip: size %d, want %d", z.size, binary.LittleEndian.Uint32(t[4:]))
	}
	return nil
}

// nextMember reports whether another member follows, and reads its header.
func (z *GzipReader) nextMember() (bool, error) {
	if !z.multistream {
		return false, nil
	}
	magic, err := z.src.peek(2)
	if err != nil || magic[0] != gzipID1 || magic[1] != gzipID2 {
		return false, nil
	}
	if err := z.readHeader(); err != nil {
		return false, err
	}
	z.f.Reset()
	z.eof = false
	return true, nil
}

func (z *GzipReader) Read(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := z.f.Inflate(p)
		z.digest = crc32.Update(z.digest, crc32.IEEETable, p[:n])
		z.size += uint32(n)
		if err != nil {
			z.err = err
			return n, err
		}
		if n > 0 {
			return n, nil
		}

		if z.f.Finished() {
			z.src.unread(z.f.Unconsumed())
			if err := z.readTrailer(); err != nil {
				z.err = err
				return 0, err
			}
			more, err := z.nextMember()
			if err != nil {
				z.err = err
				return 0, err
			}
			if !more {
				z.err = io.EOF
				return 0, io.EOF
			}
			continue
		}

		if z.eof {
			if err := z.f.EndOfInput(); err != nil {
				z.err = err
				return 0, err
			}
			z.err = errors.Wrap(deflate.ErrTruncated, "gzip: missing trailer")
			return 0, z.err
		}
		if err := z.fill(); err != nil {
			z.err = err
			return 0, err
		}
	}
}

func (z *GzipReader) fill() error {
	m, err := z.src.Read(z.buf)
	if m > 0 {
		if serr := z.f.SetInput(z.buf[:m]); serr != nil {
			return serr
		}
	}
	switch {
	case err == io.EOF:
		z.eof = true
	case err != nil:
		return errors.Wrap(err, "gzip: reading compressed data")
	}
	return nil
}

// Close does not close the underlying reader.
func (z *GzipReader) Close() error {
	if z.err == io.EOF {
		return nil
	}
	return z.err
}
