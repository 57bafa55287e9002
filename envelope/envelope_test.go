package envelope

import (
	"bytes"
	"hash/crc32"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/compress"
	"github.com/andybalholm/deflate/inflate"
)

var sample = []byte(strings.Repeat("All that is gold does not glitter, not all those who wander are lost. ", 500))

func gzipData(t *testing.T, data []byte, level deflate.Level, h GzipHeader) []byte {
	var buf bytes.Buffer
	w, err := NewGzipWriter(&buf, level, h)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestGzipRoundTrip(t *testing.T) {
	h := GzipHeader{
		Name:    "poem.txt",
		Comment: "café",
		Extra:   []byte{'A', 'B', 2, 0, 1, 2},
		ModTime: time.Unix(1700000000, 0),
		OS:      3,
	}
	for _, level := range []deflate.Level{deflate.NoCompression, deflate.Fastest, deflate.Optimal, deflate.SmallestSize} {
		compressed := gzipData(t, sample, level, h)

		ref, err := gzip.NewReader(bytes.NewReader(compressed))
		require.NoError(t, err)
		got, err := io.ReadAll(ref)
		require.NoError(t, err)
		assert.Equal(t, sample, got)
		assert.Equal(t, h.Name, ref.Name)
		assert.Equal(t, h.Comment, ref.Comment)
		assert.Equal(t, h.Extra, ref.Extra)
		assert.True(t, h.ModTime.Equal(ref.ModTime))
		assert.Equal(t, h.OS, ref.OS)

		r, err := NewGzipReader(bytes.NewReader(compressed))
		require.NoError(t, err)
		got, err = io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, sample, got)
		assert.Equal(t, h.Name, r.Header.Name)
		assert.Equal(t, h.Comment, r.Header.Comment)
		assert.Equal(t, h.Extra, r.Header.Extra)
		assert.NoError(t, r.Close())
	}
}

func TestGzipReferenceStream(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Name = "ref"
	_, err := w.Write(sample)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewGzipReader(&buf)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, sample, got)
	assert.Equal(t, "ref", r.Header.Name)
}

func TestGzipMultiMember(t *testing.T) {
	first := gzipData(t, []byte("first member\n"), deflate.Optimal, GzipHeader{Name: "a"})
	second := gzipData(t, sample, deflate.Fastest, GzipHeader{Name: "b"})
	third := gzipData(t, nil, deflate.Optimal, GzipHeader{})

	stream := append(append(append([]byte{}, first...), second...), third...)
	want := append([]byte("first member\n"), sample...)

	r, err := NewGzipReader(bytes.NewReader(stream))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 3, r.Members())

	// Trailing bytes that are not a gzip member are ignored.
	r, err = NewGzipReader(io.MultiReader(bytes.NewReader(stream), strings.NewReader("garbage")))
	require.NoError(t, err)
	got, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	r, err = NewGzipReader(bytes.NewReader(stream))
	require.NoError(t, err)
	r.Multistream(false)
	got, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("first member\n"), got)
}

func TestGzipErrors(t *testing.T) {
	compressed := gzipData(t, sample, deflate.Optimal, GzipHeader{})

	_, err := NewGzipReader(bytes.NewReader([]byte("not gzip data")))
	assert.Equal(t, ErrHeader, errors.Cause(err))

	bad := append([]byte{}, compressed...)
	bad[len(bad)-5] ^= 0xff // CRC
	r, err := NewGzipReader(bytes.NewReader(bad))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.Equal(t, ErrChecksum, errors.Cause(err))

	r, err = NewGzipReader(bytes.NewReader(compressed[:len(compressed)-3]))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.True(t, deflate.IsTruncated(err), "got %v", err)

	r, err = NewGzipReader(bytes.NewReader(compressed[:len(compressed)/2]), inflate.WithStrict(false))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.True(t, deflate.IsTruncated(err), "got %v", err)
}

func TestGzipHeaderChecksum(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	plain := buf.Bytes()

	// Insert FHCRC: the low 16 bits of the CRC-32 of the 10 header bytes.
	hdr := append([]byte{}, plain[:10]...)
	hdr[3] |= flagHdrCrc
	var crc [4]byte
	c := crc32.ChecksumIEEE(hdr)
	crc[0], crc[1] = byte(c), byte(c>>8)
	withCRC := append(append(append([]byte{}, hdr...), crc[:2]...), plain[10:]...)

	r, err := NewGzipReader(bytes.NewReader(withCRC))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)

	withCRC[10] ^= 1
	_, err = NewGzipReader(bytes.NewReader(withCRC))
	assert.Equal(t, ErrChecksum, errors.Cause(err))
}

func TestZlibRoundTrip(t *testing.T) {
	for _, level := range []deflate.Level{deflate.NoCompression, deflate.Fastest, 4, deflate.Optimal, deflate.SmallestSize} {
		var buf bytes.Buffer
		w, err := NewZlibWriter(&buf, level)
		require.NoError(t, err)
		_, err = w.Write(sample)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		compressed := buf.Bytes()
		assert.Zero(t, (uint16(compressed[0])<<8|uint16(compressed[1]))%31)

		ref, err := zlib.NewReader(bytes.NewReader(compressed))
		require.NoError(t, err)
		got, err := io.ReadAll(ref)
		require.NoError(t, err)
		assert.Equal(t, sample, got)

		r, err := NewZlibReader(bytes.NewReader(compressed))
		require.NoError(t, err)
		got, err = io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, sample, got)
	}
}

func TestZlibReferenceStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	require.NoError(t, err)
	_, err = w.Write(sample)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	compressed := buf.Bytes()

	r, err := NewZlibReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, sample, got)

	bad := append([]byte{}, compressed...)
	bad[len(bad)-1] ^= 1
	r, err = NewZlibReader(bytes.NewReader(bad))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.Equal(t, ErrChecksum, errors.Cause(err))
}

func TestZlibHeaderErrors(t *testing.T) {
	_, err := NewZlibReader(bytes.NewReader([]byte{0x78}))
	assert.Equal(t, ErrHeader, errors.Cause(err))
	_, err = NewZlibReader(bytes.NewReader([]byte{0x78, 0x9d})) // bad FCHECK
	assert.Equal(t, ErrHeader, errors.Cause(err))
	_, err = NewZlibReader(bytes.NewReader([]byte{0x78, 0xbb, 0, 0, 0, 1})) // FDICT
	assert.Equal(t, ErrHeader, errors.Cause(err))
}

func TestEncoderWithDeflater(t *testing.T) {
	enc := NewGzipEncoder(nil, deflate.Optimal, GzipHeader{})
	d, err := compress.New(deflate.Optimal, compress.WithEncoder(enc), compress.WithBlockType(deflate.FixedBlock))
	require.NoError(t, err)
	assert.Equal(t, deflate.FixedBlock, enc.Unwrap().(*compress.BlockEncoder).BlockType)

	require.NoError(t, d.SetInput(sample))
	out := make([]byte, 64<<10)
	n, done := d.Finish(out)
	require.True(t, done)

	r, err := gzip.NewReader(bytes.NewReader(out[:n]))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, sample, got)
}
