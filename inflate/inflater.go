// Package inflate implements DEFLATE decompression as a resumable state
// machine.
//
// The Inflater never blocks and never reads ahead of what it has been
// given: when it runs out of input in the middle of a block it records
// exactly where it stopped, and picks up from there after SetInput.
package inflate

import (
	"math/bits"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/huffman"
	"github.com/andybalholm/deflate/internal/bitio"
)

type state int

const (
	stateReadingBFinal state = iota
	stateReadingBType

	// Dynamic block header.
	stateReadingNumLitCodes
	stateReadingNumDistCodes
	stateReadingNumCodeLengthCodes
	stateReadingCodeLengthCodes
	stateReadingTreeCodesBefore
	stateReadingTreeCodesAfter

	// Huffman-coded block body.
	stateDecodeTop
	stateHaveInitialLength
	stateHaveFullLength
	stateHaveDistCode
	stateCopying

	// Stored block.
	stateUncompressedAligning
	stateUncompressedByte1
	stateUncompressedByte2
	stateUncompressedByte3
	stateUncompressedByte4
	stateDecodingUncompressed

	stateDone
)

var stateNames = [...]string{
	stateReadingBFinal:             "ReadingBFinal",
	stateReadingBType:              "ReadingBType",
	stateReadingNumLitCodes:        "ReadingNumLitCodes",
	stateReadingNumDistCodes:       "ReadingNumDistCodes",
	stateReadingNumCodeLengthCodes: "ReadingNumCodeLengthCodes",
	stateReadingCodeLengthCodes:    "ReadingCodeLengthCodes",
	stateReadingTreeCodesBefore:    "ReadingTreeCodesBefore",
	stateReadingTreeCodesAfter:     "ReadingTreeCodesAfter",
	stateDecodeTop:                 "DecodeTop",
	stateHaveInitialLength:         "HaveInitialLength",
	stateHaveFullLength:            "HaveFullLength",
	stateHaveDistCode:              "HaveDistCode",
	stateCopying:                   "Copying",
	stateUncompressedAligning:      "UncompressedAligning",
	stateUncompressedByte1:         "UncompressedByte1",
	stateUncompressedByte2:         "UncompressedByte2",
	stateUncompressedByte3:         "UncompressedByte3",
	stateUncompressedByte4:         "UncompressedByte4",
	stateDecodingUncompressed:      "DecodingUncompressed",
	stateDone:                      "Done",
}

func (s state) String() string {
	return stateNames[s]
}

// An Option configures an Inflater.
type Option func(*Inflater)

// WithVariant selects standard DEFLATE or Deflate64.
func WithVariant(v deflate.Variant) Option {
	return func(f *Inflater) {
		f.variant = v
	}
}

// WithStrict controls whether a stream that ends before its final block is
// reported as deflate.ErrTruncated (the default) or accepted as is.
func WithStrict(strict bool) Option {
	return func(f *Inflater) {
		f.strict = strict
	}
}

// WithLogger sets the logger for per-block debug messages.
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Inflater) {
		f.log = l
	}
}

// An Inflater decompresses a DEFLATE stream supplied in arbitrary chunks.
// It is not safe for concurrent use.
type Inflater struct {
	variant deflate.Variant
	strict  bool
	log     logrus.FieldLogger

	in  bitio.InputBuffer
	win *Window
	err error

	state  state
	bfinal bool
	btype  deflate.BlockType
	blocks int

	litTree  *huffman.Tree
	distTree *huffman.Tree

	// Trees for the current dynamic block. They are rebuilt from scratch
	// at every dynamic block header.
	dynLit, dynDist, codeLengthTree huffman.Tree

	// Dynamic header progress.
	numLit, numDist, numCodeLength int
	index                          int
	codeLengthLengths              [huffman.NumCodeLengthSymbols]uint8
	lengths                        [huffman.MaxLiteralCodes + huffman.NumDistanceSymbols]uint8
	repeatSym                      int

	// Block body progress.
	lengthCode int
	length     int
	distCode   int
	copyLen    int
	copyDist   int

	// Stored block progress.
	storedHeader [4]byte
	storedLen    int
}

// New returns an Inflater ready to decode a stream.
func New(opts ...Option) *Inflater {
	f := &Inflater{
		strict: true,
		log:    deflate.DiscardLogger(),
	}
	for _, o := range opts {
		o(f)
	}
	f.win = NewWindow(f.variant.WindowSize())
	return f
}

// Reset prepares f to decode a new stream, discarding any buffered input
// and output. Callers that need the bytes following a finished stream
// should take them with Unconsumed first.
func (f *Inflater) Reset() {
	f.in.Reset()
	f.win.Reset()
	f.err = nil
	f.state = stateReadingBFinal
	f.bfinal = false
	f.blocks = 0
	f.litTree, f.distTree = nil, nil
	f.copyLen = 0
}

// SetInput supplies the next chunk of compressed data. It fails with
// deflate.ErrInputPending if the previous chunk has not been consumed.
// The Inflater keeps a reference to b until it has been consumed.
func (f *Inflater) SetInput(b []byte) error {
	if err := f.in.SetInput(b); err != nil {
		return deflate.ErrInputPending
	}
	return nil
}

// NeedsInput reports whether all supplied input has been taken in.
func (f *Inflater) NeedsInput() bool {
	return f.in.NeedsInput()
}

// Finished reports whether the final block has been decoded and all of its
// output drained.
func (f *Inflater) Finished() bool {
	return f.state == stateDone && f.win.Unread() == 0
}

// AvailableOutput returns the number of decoded bytes waiting to be drained.
func (f *Inflater) AvailableOutput() int {
	return f.win.Unread()
}

// TotalOut returns the number of bytes decoded since the last Reset.
func (f *Inflater) TotalOut() int64 {
	return f.win.Total()
}

// Offset returns the number of compressed bytes consumed so far.
func (f *Inflater) Offset() int64 {
	return f.in.Offset()
}

// Unconsumed returns the input bytes following the end of the stream. It is
// only meaningful once the final block has been decoded; the bits left in
// the last partial byte are padding and are dropped.
func (f *Inflater) Unconsumed() []byte {
	return f.in.Unconsumed()
}

// EndOfInput tells f that no more input will arrive. In strict mode it
// returns deflate.ErrTruncated if the stream is not complete.
func (f *Inflater) EndOfInput() error {
	if f.err != nil {
		return f.err
	}
	if f.state == stateDone || !f.strict {
		return nil
	}
	f.err = errors.Wrapf(deflate.ErrTruncated, "input ended in state %s at offset %d", f.state, f.in.Offset())
	return f.err
}

// Inflate decodes as much as it can into out and returns the number of
// bytes written. A short count with a nil error means f needs more input
// (or has finished: see Finished). Errors are sticky.
func (f *Inflater) Inflate(out []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for {
		n += f.win.CopyTo(out[n:])
		if n == len(out) {
			return n, nil
		}
		if f.state == stateDone {
			return n, nil
		}
		if err := f.decode(); err != nil {
			f.err = err
			return n, err
		}
		if f.win.Unread() == 0 {
			// No output: decode stopped for lack of input, or at the end.
			return n, nil
		}
	}
}

// decode advances the state machine until it runs out of input, fills the
// window, or reaches the end of the stream.
func (f *Inflater) decode() error {
	for {
		switch f.state {
		case stateReadingBFinal:
			v := f.in.GetBits(1)
			if v < 0 {
				return nil
			}
			f.bfinal = v == 1
			f.state = stateReadingBType

		case stateReadingBType:
			v := f.in.GetBits(2)
			if v < 0 {
				return nil
			}
			f.btype = deflate.BlockType(v)
			f.blocks++
			f.log.WithFields(logrus.Fields{
				"block":  f.blocks,
				"type":   f.btype,
				"final":  f.bfinal,
				"offset": f.in.Offset(),
			}).Debug("inflate: block header")

			switch f.btype {
			case deflate.StoredBlock:
				f.state = stateUncompressedAligning
			case deflate.FixedBlock:
				f.litTree = huffman.StaticLiteralTree()
				f.distTree = huffman.StaticDistanceTree()
				f.state = stateDecodeTop
			case deflate.DynamicBlock:
				f.state = stateReadingNumLitCodes
			default:
				return deflate.Corruptf("unknown block type %d at offset %d", v, f.in.Offset())
			}

		case stateReadingNumLitCodes, stateReadingNumDistCodes, stateReadingNumCodeLengthCodes,
			stateReadingCodeLengthCodes, stateReadingTreeCodesBefore, stateReadingTreeCodesAfter:
			ok, err := f.decodeDynamicHeader()
			if !ok || err != nil {
				return err
			}

		case stateDecodeTop, stateHaveInitialLength, stateHaveFullLength, stateHaveDistCode, stateCopying:
			ok, err := f.decodeBlock()
			if !ok || err != nil {
				return err
			}

		case stateUncompressedAligning, stateUncompressedByte1, stateUncompressedByte2,
			stateUncompressedByte3, stateUncompressedByte4, stateDecodingUncompressed:
			ok, err := f.decodeStored()
			if !ok || err != nil {
				return err
			}

		case stateDone:
			return nil
		}
	}
}

// endBlock moves to the next block header, or to Done after the final
// block.
func (f *Inflater) endBlock() {
	if f.bfinal {
		f.state = stateDone
		f.log.WithField("total", f.win.Total()).Debug("inflate: final block done")
		return
	}
	f.state = stateReadingBFinal
}

// decodeDynamicHeader reads HLIT, HDIST, HCLEN and the run-length coded
// code lengths, then builds the block's trees. It returns false when it
// needs more input.
func (f *Inflater) decodeDynamicHeader() (bool, error) {
	for {
		switch f.state {
		case stateReadingNumLitCodes:
			v := f.in.GetBits(5)
			if v < 0 {
				return false, nil
			}
			f.numLit = v + 257
			if f.numLit > huffman.MaxLiteralCodes {
				return false, deflate.Corruptf("%d literal/length codes", f.numLit)
			}
			f.state = stateReadingNumDistCodes

		case stateReadingNumDistCodes:
			v := f.in.GetBits(5)
			if v < 0 {
				return false, nil
			}
			f.numDist = v + 1
			maxDist := huffman.MaxDistanceCodes
			if f.variant == deflate.Deflate64 {
				maxDist = huffman.NumDistanceSymbols
			}
			if f.numDist > maxDist {
				return false, deflate.Corruptf("%d distance codes", f.numDist)
			}
			f.state = stateReadingNumCodeLengthCodes

		case stateReadingNumCodeLengthCodes:
			v := f.in.GetBits(4)
			if v < 0 {
				return false, nil
			}
			f.numCodeLength = v + 4
			f.index = 0
			f.codeLengthLengths = [huffman.NumCodeLengthSymbols]uint8{}
			f.state = stateReadingCodeLengthCodes

		case stateReadingCodeLengthCodes:
			for f.index < f.numCodeLength {
				v := f.in.GetBits(3)
				if v < 0 {
					return false, nil
				}
				f.codeLengthLengths[huffman.CodeLengthOrder[f.index]] = uint8(v)
				f.index++
			}
			if err := f.codeLengthTree.Init(f.codeLengthLengths[:], huffman.CodeLengthTree); err != nil {
				return false, err
			}
			f.index = 0
			f.state = stateReadingTreeCodesBefore

		case stateReadingTreeCodesBefore:
			total := f.numLit + f.numDist
			for f.index < total {
				sym := f.codeLengthTree.Decode(&f.in)
				if sym == -1 {
					return false, nil
				}
				if huffman.IsInvalid(sym) {
					return false, deflate.Corruptf("invalid code length code at offset %d", f.in.Offset())
				}
				if sym < 16 {
					f.lengths[f.index] = uint8(sym)
					f.index++
					continue
				}
				if sym == 16 && f.index == 0 {
					return false, deflate.Corruptf("repeat code with no previous length")
				}
				f.repeatSym = sym
				f.state = stateReadingTreeCodesAfter
				break
			}
			if f.state == stateReadingTreeCodesBefore {
				if err := f.buildDynamicTrees(); err != nil {
					return false, err
				}
				f.state = stateDecodeTop
				return true, nil
			}

		case stateReadingTreeCodesAfter:
			var extra, base int
			var value uint8
			switch f.repeatSym {
			case 16:
				extra, base, value = 2, 3, f.lengths[f.index-1]
			case 17:
				extra, base = 3, 3
			default:
				extra, base = 7, 11
			}
			v := f.in.GetBits(extra)
			if v < 0 {
				return false, nil
			}
			repeat := base + v
			if f.index+repeat > f.numLit+f.numDist {
				return false, deflate.Corruptf("code length repeat runs past the end of the table")
			}
			for i := 0; i < repeat; i++ {
				f.lengths[f.index] = value
				f.index++
			}
			f.state = stateReadingTreeCodesBefore

		default:
			return true, nil
		}
	}
}

func (f *Inflater) buildDynamicTrees() error {
	if err := f.dynLit.Init(f.lengths[:f.numLit], huffman.LiteralTree); err != nil {
		return err
	}
	if err := f.dynDist.Init(f.lengths[f.numLit:f.numLit+f.numDist], huffman.DistanceTree); err != nil {
		return err
	}
	f.litTree = &f.dynLit
	f.distTree = &f.dynDist
	return nil
}

// decodeBlock decodes the body of a Huffman-coded block. It returns false
// when it needs more input or the window is full; the state records which
// part of a length/distance pair has been read already.
func (f *Inflater) decodeBlock() (bool, error) {
	for {
		switch f.state {
		case stateDecodeTop:
			if f.win.Free() == 0 {
				return false, nil
			}
			sym := f.litTree.Decode(&f.in)
			switch {
			case sym == -1:
				return false, nil
			case huffman.IsInvalid(sym):
				return false, deflate.Corruptf("invalid literal/length code at offset %d", f.in.Offset())
			case sym < huffman.EndOfBlock:
				f.win.WriteLiteral(byte(sym))
				continue
			case sym == huffman.EndOfBlock:
				f.endBlock()
				return true, nil
			}
			f.lengthCode = sym - huffman.FirstLengthCode
			if f.lengthCode >= huffman.NumLengthCodes {
				return false, deflate.Corruptf("invalid length code %d", sym)
			}
			f.state = stateHaveInitialLength

		case stateHaveInitialLength:
			base := int(huffman.LengthBase[f.lengthCode])
			extra := int(huffman.LengthExtraBits[f.lengthCode])
			if f.variant == deflate.Deflate64 && f.lengthCode == huffman.NumLengthCodes-1 {
				base = huffman.Deflate64LastLengthBase
				extra = huffman.Deflate64LastLengthExtra
			}
			f.length = base
			if extra > 0 {
				v := f.in.GetBits(extra)
				if v < 0 {
					return false, nil
				}
				f.length += v
			}
			f.state = stateHaveFullLength

		case stateHaveFullLength:
			if f.btype == deflate.FixedBlock {
				v := f.in.GetBits(5)
				if v < 0 {
					return false, nil
				}
				// Fixed distance codes are 5-bit Huffman codes, sent most
				// significant bit first.
				f.distCode = int(bits.Reverse8(uint8(v)) >> 3)
			} else {
				sym := f.distTree.Decode(&f.in)
				if sym == -1 {
					return false, nil
				}
				if huffman.IsInvalid(sym) {
					return false, deflate.Corruptf("invalid distance code at offset %d", f.in.Offset())
				}
				f.distCode = sym
			}
			maxCode := huffman.MaxDistanceCodes
			if f.variant == deflate.Deflate64 {
				maxCode = huffman.NumDistanceSymbols
			}
			if f.distCode >= maxCode {
				return false, deflate.Corruptf("invalid distance code %d", f.distCode)
			}
			f.state = stateHaveDistCode

		case stateHaveDistCode:
			dist := int(huffman.DistanceBase[f.distCode])
			if extra := int(huffman.DistanceExtraBits[f.distCode]); extra > 0 {
				v := f.in.GetBits(extra)
				if v < 0 {
					return false, nil
				}
				dist += v
			}
			if dist > f.win.HistSize() {
				return false, deflate.Corruptf("distance %d exceeds %d bytes of history at offset %d", dist, f.win.HistSize(), f.in.Offset())
			}
			f.copyLen = f.length
			f.copyDist = dist
			f.state = stateCopying

		case stateCopying:
			f.copyLen -= f.win.WriteCopy(f.copyLen, f.copyDist)
			if f.copyLen > 0 {
				return false, nil
			}
			f.state = stateDecodeTop

		default:
			return true, nil
		}
	}
}

// decodeStored handles a stored block: it aligns to a byte boundary, reads
// LEN and NLEN, and copies LEN bytes through the window.
func (f *Inflater) decodeStored() (bool, error) {
	for {
		switch f.state {
		case stateUncompressedAligning:
			f.in.SkipToByteBoundary()
			f.state = stateUncompressedByte1

		case stateUncompressedByte1, stateUncompressedByte2, stateUncompressedByte3, stateUncompressedByte4:
			v := f.in.GetBits(8)
			if v < 0 {
				return false, nil
			}
			f.storedHeader[f.state-stateUncompressedByte1] = byte(v)
			if f.state != stateUncompressedByte4 {
				f.state++
				continue
			}
			length := int(f.storedHeader[0]) | int(f.storedHeader[1])<<8
			nlength := int(f.storedHeader[2]) | int(f.storedHeader[3])<<8
			if length != ^nlength&0xffff {
				return false, deflate.Corruptf("stored block length %#04x does not match complement %#04x", length, nlength)
			}
			f.storedLen = length
			f.state = stateDecodingUncompressed

		case stateDecodingUncompressed:
			f.storedLen -= f.win.ReadFrom(&f.in, f.storedLen)
			if f.storedLen > 0 {
				return false, nil
			}
			f.endBlock()
			return true, nil

		default:
			return true, nil
		}
	}
}
