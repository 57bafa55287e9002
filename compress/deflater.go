// Package compress implements DEFLATE compression as a resumable state
// machine.
//
// A Deflater accepts input in arbitrary chunks and produces output into
// caller-supplied buffers. Bytes it cannot hand over yet are kept in an
// internal pending buffer, so no call ever blocks or drops data.
package compress

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/andybalholm/deflate"
)

type strategy int

const (
	storeOnly strategy = iota
	greedy             // zlib's deflate_fast
	lazy               // zlib's deflate_slow
)

func (s strategy) String() string {
	switch s {
	case storeOnly:
		return "stored"
	case greedy:
		return "fast"
	}
	return "slow"
}

// compressionLevel holds the match-finder tuning for one level. For the
// greedy strategy, lazy is the longest match whose positions are still
// added to the hash chains.
type compressionLevel struct {
	good, lazy, nice, chain int
	strategy                strategy
}

var levels = [...]compressionLevel{
	{0, 0, 0, 0, storeOnly},
	{4, 4, 8, 4, greedy},
	{4, 5, 16, 8, greedy},
	{4, 6, 32, 32, greedy},
	{4, 4, 16, 16, lazy},
	{8, 16, 32, 32, lazy},
	{8, 16, 128, 128, lazy},
	{8, 32, 128, 256, lazy},
	{32, 128, 258, 1024, lazy},
	{32, 258, 258, 4096, lazy},
}

// An Option configures a Deflater.
type Option func(*Deflater) error

// WithBlockType forces every block to be written with the given encoding
// instead of the smallest one.
func WithBlockType(t deflate.BlockType) Option {
	return func(d *Deflater) error {
		if t < deflate.AutoBlock || t > deflate.DynamicBlock {
			return errors.Wrapf(deflate.ErrInvalidLevel, "block type %d", t)
		}
		d.blockType = t
		return nil
	}
}

// WithVariant selects the output format. Only deflate.Standard can be
// written; Deflate64 is decode-only.
func WithVariant(v deflate.Variant) Option {
	return func(d *Deflater) error {
		if v != deflate.Standard {
			return errors.Wrapf(deflate.ErrInvalidLevel, "cannot compress %v", v)
		}
		return nil
	}
}

// WithLogger sets the logger for per-block debug messages.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Deflater) error {
		d.log = l
		return nil
	}
}

// WithEncoder replaces the block encoder, for example with an envelope
// encoder that wraps the raw blocks in gzip or zlib framing.
func WithEncoder(e deflate.Encoder) Option {
	return func(d *Deflater) error {
		d.enc = e
		return nil
	}
}

// WithHeaderWritten tells the Deflater that the caller has already written
// the encoder's stream header.
func WithHeaderWritten() Option {
	return func(d *Deflater) error {
		d.headerWritten = true
		d.skipHeader = true
		return nil
	}
}

// A Deflater compresses a stream supplied in arbitrary chunks. It is not
// safe for concurrent use.
type Deflater struct {
	level     deflate.Level
	params    compressionLevel
	blockType deflate.BlockType
	log       logrus.FieldLogger

	enc           deflate.Encoder
	headerWritten bool
	skipHeader    bool

	w     *MatchWindow
	input []byte

	pending    []byte
	pendingPos int

	finishing bool
	finished  bool

	// Lazy matching state: the match found at the previous position, and
	// whether the byte there is still waiting to be emitted.
	matchAvailable bool
	length, offset int
	prevLength     int
	prevOffset     int
}

// New returns a Deflater for the given level. deflate.DefaultCompression
// stands for deflate.Optimal.
func New(level deflate.Level, opts ...Option) (*Deflater, error) {
	if err := level.Validate(); err != nil {
		return nil, err
	}
	level = level.Normalize()
	d := &Deflater{
		level:     level,
		params:    levels[level],
		blockType: deflate.AutoBlock,
		w:         newMatchWindow(),
	}
	for _, o := range opts {
		if err := o(d); err != nil {
			return nil, err
		}
	}
	if d.log == nil {
		d.log = deflate.DiscardLogger()
	}
	if d.params.strategy == storeOnly && d.blockType == deflate.AutoBlock {
		d.blockType = deflate.StoredBlock
	}
	if d.enc == nil {
		d.enc = &BlockEncoder{}
	}
	d.configure(d.enc)
	d.init()
	return d, nil
}

// A Wrapper is an Encoder that frames the output of another one.
type Wrapper interface {
	Unwrap() deflate.Encoder
}

// configure passes the block type and logger on to the BlockEncoder at the
// bottom of e.
func (d *Deflater) configure(e deflate.Encoder) {
	switch e := e.(type) {
	case *BlockEncoder:
		e.BlockType = d.blockType
		if e.Log == nil {
			e.Log = d.log
		}
	case Wrapper:
		d.configure(e.Unwrap())
	}
}

func (d *Deflater) init() {
	d.length = minMatchLength - 1
	d.prevLength = minMatchLength - 1
	d.offset, d.prevOffset = 0, 0
	d.matchAvailable = false
}

// Level returns the normalized compression level.
func (d *Deflater) Level() deflate.Level {
	return d.level
}

// Encoder returns the encoder the Deflater writes blocks with.
func (d *Deflater) Encoder() deflate.Encoder {
	return d.enc
}

// Reset discards all state so that d can compress a new stream with the
// same settings.
func (d *Deflater) Reset() {
	d.w.Reset()
	d.enc.Reset()
	d.input = nil
	d.pending = d.pending[:0]
	d.pendingPos = 0
	d.finishing = false
	d.finished = false
	d.headerWritten = d.skipHeader
	d.init()
}

// SetInput supplies the next chunk of uncompressed data. The Deflater keeps
// a reference to b until NeedsInput reports true.
func (d *Deflater) SetInput(b []byte) error {
	if d.finishing {
		return deflate.ErrFinished
	}
	if len(d.input) > 0 {
		return errors.Wrapf(deflate.ErrInputPending, "%d bytes left", len(d.input))
	}
	d.input = b
	return nil
}

// NeedsInput reports whether all input supplied so far has been taken in.
func (d *Deflater) NeedsInput() bool {
	return len(d.input) == 0
}

// Finished reports whether Finish has written the final block and all
// output has been handed over.
func (d *Deflater) Finished() bool {
	return d.finished
}

// Deflate compresses as much input as it can and returns the number of
// bytes written to out. It holds back the last few hundred bytes of input
// until more arrives or the stream is flushed.
func (d *Deflater) Deflate(out []byte) int {
	n := d.drain(out)
	for n < len(out) && len(d.input) > 0 {
		d.fillWindow()
		d.step(false)
		n += d.drain(out[n:])
	}
	return n
}

// Flush compresses all input supplied so far, ends the current block and
// appends an empty stored block, so that a decoder can reproduce everything
// written so far. It returns the number of bytes written to out; the rest
// comes from later calls to Deflate. Each call appends another marker.
func (d *Deflater) Flush(out []byte) int {
	if !d.finishing {
		d.processAll()
		d.flushBlock(false)
		d.writeHeader()
		d.pending = d.enc.Sync(d.pending)
	}
	return d.drain(out)
}

// Finish compresses the remaining input and writes the final block. It
// returns the number of bytes written to out and whether the stream is
// complete; if not, call it again with more room.
func (d *Deflater) Finish(out []byte) (int, bool) {
	if !d.finishing {
		d.processAll()
		d.flushBlock(true)
		d.finishing = true
		d.log.WithFields(logrus.Fields{
			"level":    d.level,
			"strategy": d.params.strategy,
		}).Debug("deflate stream finished")
	}
	n := d.drain(out)
	d.finished = d.pendingPos == len(d.pending)
	return n, d.finished
}

// drain copies pending output into out.
func (d *Deflater) drain(out []byte) int {
	n := copy(out, d.pending[d.pendingPos:])
	d.pendingPos += n
	if d.pendingPos == len(d.pending) {
		d.pending = d.pending[:0]
		d.pendingPos = 0
	}
	return n
}

func (d *Deflater) fillWindow() {
	if d.w.needsShift() {
		d.flushBlock(false)
		d.w.shift()
	}
	c := d.w.fill(d.input)
	d.input = d.input[c:]
}

// processAll takes in all remaining input and tallies every byte of it.
func (d *Deflater) processAll() {
	for {
		d.fillWindow()
		d.step(true)
		if len(d.input) == 0 {
			return
		}
	}
}

func (d *Deflater) writeHeader() {
	if !d.headerWritten {
		d.pending = d.enc.Header(d.pending)
		d.headerWritten = true
	}
}

// flushBlock hands the tallied block to the encoder. Empty blocks are
// skipped unless they end the stream.
func (d *Deflater) flushBlock(last bool) {
	src, matches := d.w.takeBlock()
	if len(src) == 0 && !last {
		return
	}
	d.writeHeader()
	d.pending = d.enc.Encode(d.pending, src, matches, last)
}

// step runs the strategy over the window. Unless sync is set, it stops
// while minLookahead bytes remain, so that matches can reach their full
// length once more input arrives.
func (d *Deflater) step(sync bool) {
	switch d.params.strategy {
	case storeOnly:
		d.deflateStored()
	case greedy:
		d.deflateFast(sync)
	default:
		d.deflateSlow(sync)
	}
}

func (d *Deflater) deflateStored() {
	w := d.w
	w.tallyLiterals(w.lookahead())
	w.index = w.windowEnd
}

// deflateFast takes the first match it finds at each position.
func (d *Deflater) deflateFast(sync bool) {
	w := d.w
	for {
		lookahead := w.lookahead()
		if lookahead == 0 || (lookahead < minLookahead && !sync) {
			return
		}

		length, offset := 0, 0
		if lookahead >= minMatchLength {
			head := w.insert(w.index)
			if head >= 0 && w.index-head <= maxDistance {
				if l, o, ok := w.findMatch(w.index, head, minMatchLength-1, lookahead, &d.params); ok {
					length, offset = l, o
				}
			}
		}

		if length >= minMatchLength {
			w.tallyMatch(length, offset)
			if length <= d.params.lazy {
				w.insertRange(w.index+1, w.index+length)
			}
			w.index += length
		} else {
			w.tallyLiteral()
			w.index++
		}

		if w.tallyFull() {
			d.flushBlock(false)
		}
	}
}

// deflateSlow looks one byte ahead before committing to a match, and emits
// the previous position as a literal when the next one matches further.
func (d *Deflater) deflateSlow(sync bool) {
	w := d.w
	for {
		lookahead := w.lookahead()
		if lookahead < minLookahead && !sync {
			return
		}
		if lookahead == 0 {
			if d.matchAvailable {
				w.tallyLiteral()
				d.matchAvailable = false
			}
			return
		}

		head := -1
		if lookahead >= minMatchLength {
			head = w.insert(w.index)
		}

		d.prevLength, d.prevOffset = d.length, d.offset
		d.length, d.offset = minMatchLength-1, 0

		if head >= 0 && w.index-head <= maxDistance && d.prevLength < d.params.lazy && lookahead > d.prevLength {
			if l, o, ok := w.findMatch(w.index, head, d.prevLength, lookahead, &d.params); ok {
				d.length, d.offset = l, o
			}
		}

		switch {
		case d.prevLength >= minMatchLength && d.length <= d.prevLength:
			// The match at the previous position wins.
			w.tallyMatch(d.prevLength, d.prevOffset)
			end := w.index - 1 + d.prevLength
			w.insertRange(w.index+1, end)
			w.index = end
			d.matchAvailable = false
			d.length = minMatchLength - 1

		case d.matchAvailable:
			w.tallyLiteral()
			w.index++

		default:
			d.matchAvailable = true
			w.index++
		}

		if w.tallyFull() {
			d.flushBlock(false)
		}
	}
}
