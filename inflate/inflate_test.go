package inflate

import (
	"bytes"
	"io"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/huffman"
	"github.com/andybalholm/deflate/internal/bitio"
)

func testInputs() map[string][]byte {
	rng := rand.New(rand.NewSource(1))
	random := make([]byte, 100000)
	rng.Read(random)

	text := []byte(strings.Repeat("Go is an open source programming language that makes it simple to build secure, scalable systems. ", 700))

	skewed := make([]byte, 200000)
	for i := range skewed {
		skewed[i] = "aaaaaaaabbbbccd\n"[rng.Intn(16)]
	}

	return map[string][]byte{
		"empty":  {},
		"single": {'x'},
		"zeros":  make([]byte, 70000),
		"random": random,
		"text":   text,
		"skewed": skewed,
	}
}

func compressReference(t testing.TB, data []byte, level int) []byte {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecompressReference(t *testing.T) {
	for name, data := range testInputs() {
		for _, level := range []int{flate.HuffmanOnly, flate.NoCompression, flate.BestSpeed, 5, flate.BestCompression} {
			compressed := compressReference(t, data, level)
			got, err := Decompress(compressed)
			require.NoError(t, err, "%s at level %d", name, level)
			if !bytes.Equal(got, data) {
				t.Fatalf("%s at level %d: decompressed output doesn't match", name, level)
			}
		}
	}
}

// Feeding one byte at a time into a tiny output buffer exercises every
// suspension point of the state machine.
func TestInflateByteAtATime(t *testing.T) {
	data := testInputs()["text"][:20000]
	compressed := compressReference(t, data, 6)

	f := New()
	var got []byte
	out := make([]byte, 7)
	for i := 0; i < len(compressed); i++ {
		require.NoError(t, f.SetInput(compressed[i:i+1]))
		for {
			n, err := f.Inflate(out)
			require.NoError(t, err)
			got = append(got, out[:n]...)
			if n < len(out) {
				break
			}
		}
	}
	for !f.Finished() {
		n, err := f.Inflate(out)
		require.NoError(t, err)
		require.NotZero(t, n, "no progress before the end of the stream")
		got = append(got, out[:n]...)
	}
	assert.NoError(t, f.EndOfInput())
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), f.TotalOut())
	assert.Equal(t, int64(len(compressed)), f.Offset())
}

func TestReader(t *testing.T) {
	data := testInputs()["skewed"]
	compressed := compressReference(t, data, 9)

	got, err := io.ReadAll(NewReader(iotest.OneByteReader(bytes.NewReader(compressed))))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	r := NewReader(bytes.NewReader(compressed))
	got, err = io.ReadAll(iotest.HalfReader(r))
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.NoError(t, r.Close())

	text := testInputs()["text"]
	r.Reset(bytes.NewReader(compressReference(t, text, 1)))
	got, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestSetInputPending(t *testing.T) {
	f := New()
	require.NoError(t, f.SetInput([]byte{1, 2, 3}))
	err := f.SetInput([]byte{4})
	assert.Equal(t, deflate.ErrInputPending, err)
}

func TestUnconsumed(t *testing.T) {
	data := []byte("hello, hello, hello, hello")
	compressed := compressReference(t, data, 6)
	stream := append(append([]byte{}, compressed...), "TRAILER"...)

	f := New()
	require.NoError(t, f.SetInput(stream))
	out := make([]byte, 100)
	n, err := f.Inflate(out)
	require.NoError(t, err)
	assert.Equal(t, data, out[:n])
	require.True(t, f.Finished())
	assert.Equal(t, []byte("TRAILER"), f.Unconsumed())
}

func TestTruncated(t *testing.T) {
	data := testInputs()["skewed"]
	compressed := compressReference(t, data, 6)
	cut := compressed[:len(compressed)/2]

	got, err := Decompress(cut)
	assert.True(t, deflate.IsTruncated(err), "got %v", err)
	assert.True(t, bytes.HasPrefix(data, got))

	got, err = Decompress(cut, WithStrict(false))
	assert.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.True(t, bytes.HasPrefix(data, got))

	_, err = Decompress(nil)
	assert.True(t, deflate.IsTruncated(err))
}

// streamWriter builds DEFLATE streams bit by bit.
type streamWriter struct {
	bitio.Writer
}

func (w *streamWriter) header(final bool, t deflate.BlockType) {
	var f uint64
	if final {
		f = 1
	}
	w.WriteBits(1, f)
	w.WriteBits(2, uint64(t))
}

func (w *streamWriter) code(c huffman.Code) {
	w.WriteBits(uint(c.Len), uint64(c.Bits))
}

func (w *streamWriter) literal(b int) {
	w.code(huffman.StaticLiteralCodes()[b])
}

func (w *streamWriter) stored(final bool, data []byte) {
	w.header(final, deflate.StoredBlock)
	w.AlignToByte()
	w.WriteBits(16, uint64(len(data)))
	w.WriteBits(16, ^uint64(len(data)))
	w.WriteBytes(data)
}

// match writes a length code with its extra bits, and a fixed distance code
// with its extra bits.
func (w *streamWriter) match(lengthCode int, lengthExtra uint, lengthValue uint64, distCode int, distValue uint64) {
	w.literal(lengthCode)
	if lengthExtra > 0 {
		w.WriteBits(lengthExtra, lengthValue)
	}
	w.code(huffman.StaticDistanceCodes()[distCode])
	if n := huffman.DistanceExtraBits[distCode]; n > 0 {
		w.WriteBits(uint(n), distValue)
	}
}

func (w *streamWriter) bytes() []byte {
	w.AlignToByte()
	return w.Dst
}

func TestCorrupt(t *testing.T) {
	tests := map[string]func(w *streamWriter){
		"reserved block type": func(w *streamWriter) {
			w.header(true, 3)
		},
		"stored length mismatch": func(w *streamWriter) {
			w.header(true, deflate.StoredBlock)
			w.AlignToByte()
			w.WriteBits(16, 5)
			w.WriteBits(16, 0)
		},
		"distance beyond output": func(w *streamWriter) {
			w.header(true, deflate.FixedBlock)
			w.literal('a')
			w.match(257, 0, 0, 1, 0) // length 3, distance 2
			w.literal(huffman.EndOfBlock)
		},
		"distance code 30": func(w *streamWriter) {
			w.header(true, deflate.FixedBlock)
			w.literal('a')
			w.match(257, 0, 0, 30, 0)
			w.literal(huffman.EndOfBlock)
		},
		"length code 286": func(w *streamWriter) {
			w.header(true, deflate.FixedBlock)
			w.literal(286)
		},
		"too many literal codes": func(w *streamWriter) {
			w.header(true, deflate.DynamicBlock)
			w.WriteBits(5, 30)
		},
		"too many distance codes": func(w *streamWriter) {
			w.header(true, deflate.DynamicBlock)
			w.WriteBits(5, 0)
			w.WriteBits(5, 30)
		},
		"repeat with no previous length": func(w *streamWriter) {
			w.header(true, deflate.DynamicBlock)
			w.WriteBits(5, 0) // 257 literal codes
			w.WriteBits(5, 0) // 1 distance code
			w.WriteBits(4, 0) // 4 code length codes: 16, 17, 18, 0
			w.WriteBits(3, 1) // 16: length 1
			w.WriteBits(3, 0) // 17: unused
			w.WriteBits(3, 0) // 18: unused
			w.WriteBits(3, 1) // 0: length 1, so 0 is coded "0" and 16 is "1"
			w.WriteBits(1, 1) // 16 as the first symbol
			w.WriteBits(2, 0) // repeat 3
			w.WriteBits(16, 0)
			w.WriteBits(16, 0)
		},
		"oversubscribed code lengths": func(w *streamWriter) {
			w.header(true, deflate.DynamicBlock)
			w.WriteBits(5, 0)
			w.WriteBits(5, 0)
			w.WriteBits(4, 0)
			for i := 0; i < 4; i++ {
				w.WriteBits(3, 1) // four 1-bit codes
			}
		},
	}

	for name, build := range tests {
		t.Run(name, func(t *testing.T) {
			var w streamWriter
			build(&w)
			_, err := Decompress(w.bytes())
			assert.True(t, deflate.IsCorrupt(err), "got %v", err)
		})
	}
}

func TestErrorsAreSticky(t *testing.T) {
	var w streamWriter
	w.header(true, 3)
	f := New()
	require.NoError(t, f.SetInput(w.bytes()))
	_, err := f.Inflate(make([]byte, 10))
	require.Error(t, err)
	_, err2 := f.Inflate(make([]byte, 10))
	assert.Equal(t, err, err2)
}

func TestWindowBoundary(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	history := make([]byte, 1<<15)
	rng.Read(history)

	build := func(dist uint64) []byte {
		var w streamWriter
		w.stored(false, history)
		w.header(true, deflate.FixedBlock)
		// length 10 is code 264; distance 32768 is code 29 with base 24577
		w.match(264, 0, 0, 29, dist-24577)
		w.literal(huffman.EndOfBlock)
		return w.bytes()
	}

	got, err := Decompress(build(1 << 15))
	require.NoError(t, err)
	want := append(append([]byte{}, history...), history[:10]...)
	assert.Equal(t, want, got)

	// Small output buffers make the copy wrap around the ring.
	f := New()
	require.NoError(t, f.SetInput(build(1<<15-1)))
	var out []byte
	buf := make([]byte, 1000)
	for !f.Finished() {
		n, err := f.Inflate(buf)
		require.NoError(t, err)
		require.NotZero(t, n)
		out = append(out, buf[:n]...)
	}
	assert.Equal(t, append(append([]byte{}, history...), history[1:11]...), out)
}

func TestDeflate64(t *testing.T) {
	t.Run("long length", func(t *testing.T) {
		var w streamWriter
		w.header(true, deflate.FixedBlock)
		w.literal('a')
		w.match(285, 16, 997, 0, 0) // length 3+997, distance 1
		w.literal(huffman.EndOfBlock)
		stream := w.bytes()

		got, err := Decompress(stream, WithVariant(deflate.Deflate64))
		require.NoError(t, err)
		assert.Equal(t, bytes.Repeat([]byte{'a'}, 1001), got)
	})

	t.Run("long distance", func(t *testing.T) {
		rng := rand.New(rand.NewSource(3))
		history := make([]byte, 40000)
		rng.Read(history)

		var w streamWriter
		w.stored(false, history)
		w.header(true, deflate.FixedBlock)
		w.match(285, 16, 0, 30, 40000-32769) // length 3, distance 40000
		w.literal(huffman.EndOfBlock)
		stream := w.bytes()

		got, err := Decompress(stream, WithVariant(deflate.Deflate64))
		require.NoError(t, err)
		assert.Equal(t, append(append([]byte{}, history...), history[:3]...), got)

		_, err = Decompress(stream)
		assert.True(t, deflate.IsCorrupt(err), "got %v", err)
	})
}

func TestReset(t *testing.T) {
	a := compressReference(t, []byte("first stream"), 6)
	b := compressReference(t, []byte("second stream"), 6)

	f := New()
	out := make([]byte, 64)
	require.NoError(t, f.SetInput(a))
	n, err := f.Inflate(out)
	require.NoError(t, err)
	assert.Equal(t, "first stream", string(out[:n]))

	f.Reset()
	require.NoError(t, f.SetInput(b))
	n, err = f.Inflate(out)
	require.NoError(t, err)
	assert.Equal(t, "second stream", string(out[:n]))
	assert.True(t, f.Finished())
}

func BenchmarkDecompress(b *testing.B) {
	data := testInputs()["text"]
	compressed := compressReference(b, data, 6)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decompress(compressed); err != nil {
			b.Fatal(err)
		}
	}
}
