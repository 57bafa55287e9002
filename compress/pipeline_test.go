package compress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/inflate"
)

func TestPipelineHashFinder(t *testing.T) {
	for name, data := range testInputs() {
		var buf bytes.Buffer
		p := NewPipeline(&buf, &deflate.HashFinder{}, nil)
		p.BlockSize = 10000
		_, err := p.Write(data)
		require.NoError(t, err)
		require.NoError(t, p.Close())

		got, err := inflate.Decompress(buf.Bytes())
		require.NoError(t, err, name)
		assert.True(t, bytes.Equal(data, got), name)
		assert.True(t, bytes.Equal(data, referenceDecode(t, buf.Bytes())), name)
	}
}

func TestPipelineDeflaterMatches(t *testing.T) {
	var buf bytes.Buffer
	p := NewPipeline(&buf, &MatchFinder{Level: deflate.SmallestSize}, NewBlockEncoder())
	_, err := p.Write(opticks)
	require.NoError(t, err)
	require.NoError(t, p.Flush())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.Equal(t, opticks, referenceDecode(t, buf.Bytes()))
	assert.Less(t, buf.Len(), len(opticks)/10)

	_, err = p.Write([]byte("late"))
	assert.Error(t, err)
}

func TestPipelineTextEncoder(t *testing.T) {
	var buf bytes.Buffer
	p := NewPipeline(&buf, &deflate.HashFinder{}, &deflate.TextEncoder{})
	_, err := p.Write([]byte("to be or not to be, that is the question"))
	require.NoError(t, err)
	require.NoError(t, p.Close())
	out := buf.String()
	assert.Contains(t, out, "to be or not <")
	assert.True(t, strings.HasSuffix(out, "final]\n"))
}

func TestPipelineFlushAndReset(t *testing.T) {
	var buf bytes.Buffer
	p := NewPipeline(&buf, &deflate.HashFinder{}, nil)
	_, err := p.Write(opticks[:3000])
	require.NoError(t, err)
	require.NoError(t, p.Flush())
	assert.Equal(t, []byte{0, 0, 0xff, 0xff}, buf.Bytes()[buf.Len()-4:])

	got, err := inflate.Decompress(buf.Bytes(), inflate.WithStrict(false))
	require.NoError(t, err)
	assert.Equal(t, opticks[:3000], got)

	var buf2 bytes.Buffer
	p.Reset(&buf2)
	_, err = p.Write(opticks)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.Equal(t, opticks, referenceDecode(t, buf2.Bytes()))
}
