package compress

import (
	"github.com/sirupsen/logrus"

	"github.com/andybalholm/deflate"
	"github.com/andybalholm/deflate/huffman"
	"github.com/andybalholm/deflate/internal/bitio"
)

// maxStoredBlock is the largest payload of a single stored block.
const maxStoredBlock = 65535

// A BlockEncoder implements the deflate.Encoder interface, writing raw
// DEFLATE blocks. For each block it builds dynamic Huffman trees from the
// symbol frequencies and emits whichever of the stored, fixed or dynamic
// encodings is smallest, unless BlockType forces one.
//
// Bits that do not fill a byte stay in the encoder between calls to Encode.
type BlockEncoder struct {
	BlockType deflate.BlockType
	Log       logrus.FieldLogger

	bw      bitio.Writer
	builder huffman.Builder

	litFreq  [huffman.MaxLiteralCodes]uint32
	distFreq [huffman.MaxDistanceCodes]uint32
	litLen   [huffman.MaxLiteralCodes]uint8
	distLen  [huffman.MaxDistanceCodes]uint8
	litCode  [huffman.MaxLiteralCodes]huffman.Code
	distCode [huffman.MaxDistanceCodes]huffman.Code

	// codegen holds the code-length symbols of a dynamic header; repeat
	// symbols are followed by their extra-bits value.
	codegen  []uint8
	cgFreq   [huffman.NumCodeLengthSymbols]uint32
	cgLen    [huffman.NumCodeLengthSymbols]uint8
	cgCode   [huffman.NumCodeLengthSymbols]huffman.Code
	combined [huffman.MaxLiteralCodes + huffman.MaxDistanceCodes]uint8

	blocks [3]int
}

// NewBlockEncoder returns an encoder that picks the cheapest block type.
func NewBlockEncoder() *BlockEncoder {
	return &BlockEncoder{BlockType: deflate.AutoBlock}
}

func (e *BlockEncoder) Reset() {
	e.bw.Reset()
	e.blocks = [3]int{}
}

// Header appends nothing: raw DEFLATE has no stream header.
func (e *BlockEncoder) Header(dst []byte) []byte {
	return dst
}

// Sync writes an empty non-final stored block, which leaves the output on a
// byte boundary with everything written so far decodable.
func (e *BlockEncoder) Sync(dst []byte) []byte {
	e.bw.Dst = dst
	e.bw.WriteBits(3, 0)
	e.bw.AlignToByte()
	e.bw.WriteBytes([]byte{0, 0, 0xff, 0xff})
	dst = e.bw.Dst
	e.bw.Dst = nil
	return dst
}

// Blocks returns how many stored, fixed and dynamic blocks have been written
// since the last Reset.
func (e *BlockEncoder) Blocks() (stored, fixed, dynamic int) {
	return e.blocks[deflate.StoredBlock], e.blocks[deflate.FixedBlock], e.blocks[deflate.DynamicBlock]
}

func (e *BlockEncoder) log() logrus.FieldLogger {
	if e.Log == nil {
		return deflate.DiscardLogger()
	}
	return e.Log
}

func (e *BlockEncoder) Encode(dst []byte, src []byte, matches []deflate.Match, lastBlock bool) []byte {
	e.bw.Dst = dst
	e.countFrequencies(src, matches)

	extra := e.extraBits()
	staticLit := huffman.StaticLiteralLengths()[:huffman.MaxLiteralCodes]
	staticDist := huffman.StaticDistanceLengths()[:huffman.MaxDistanceCodes]
	fixedBits := 3 + huffman.Cost(e.litFreq[:], staticLit) + huffman.Cost(e.distFreq[:], staticDist) + extra

	numLit, numDist, numCL := e.buildDynamic()
	dynamicBits := 3 + e.dynamicHeaderBits(numCL) +
		huffman.Cost(e.litFreq[:], e.litLen[:]) + huffman.Cost(e.distFreq[:], e.distLen[:]) + extra

	storedBits := e.storedBits(len(src))

	blockType := e.BlockType
	if blockType == deflate.AutoBlock {
		blockType = deflate.DynamicBlock
		best := dynamicBits
		if fixedBits <= best {
			blockType = deflate.FixedBlock
			best = fixedBits
		}
		if storedBits < best {
			blockType = deflate.StoredBlock
		}
	}

	e.log().WithFields(logrus.Fields{
		"type":    blockType,
		"bytes":   len(src),
		"matches": len(matches),
		"stored":  storedBits,
		"fixed":   fixedBits,
		"dynamic": dynamicBits,
		"last":    lastBlock,
	}).Debug("deflate block")

	switch blockType {
	case deflate.StoredBlock:
		e.writeStored(src, lastBlock)
	case deflate.FixedBlock:
		e.writeBlockHeader(lastBlock, deflate.FixedBlock)
		e.writeData(src, matches, huffman.StaticLiteralCodes(), huffman.StaticDistanceCodes())
	default:
		e.writeBlockHeader(lastBlock, deflate.DynamicBlock)
		e.writeDynamicHeader(numLit, numDist, numCL)
		e.writeData(src, matches, e.litCode[:], e.distCode[:])
	}
	e.blocks[blockType]++

	if lastBlock {
		e.bw.AlignToByte()
	}
	dst = e.bw.Dst
	e.bw.Dst = nil
	return dst
}

func (e *BlockEncoder) countFrequencies(src []byte, matches []deflate.Match) {
	for i := range e.litFreq {
		e.litFreq[i] = 0
	}
	for i := range e.distFreq {
		e.distFreq[i] = 0
	}

	pos := 0
	for _, m := range matches {
		for _, b := range src[pos : pos+m.Unmatched] {
			e.litFreq[b]++
		}
		pos += m.Unmatched
		if m.Length > 0 {
			e.litFreq[huffman.LengthCode(m.Length)]++
			e.distFreq[huffman.DistanceCode(m.Distance)]++
			pos += m.Length
		}
	}
	e.litFreq[huffman.EndOfBlock] = 1
}

// extraBits returns the number of extra bits that follow length and distance
// codes. They are the same whichever trees are used.
func (e *BlockEncoder) extraBits() int {
	n := 0
	for c := 0; c < huffman.NumLengthCodes; c++ {
		n += int(e.litFreq[huffman.FirstLengthCode+c]) * int(huffman.LengthExtraBits[c])
	}
	for c, f := range e.distFreq {
		n += int(f) * int(huffman.DistanceExtraBits[c])
	}
	return n
}

// storedBits returns the size of src written as stored blocks, counting the
// padding to the byte boundary after the first header.
func (e *BlockEncoder) storedBits(n int) int {
	chunks := (n + maxStoredBlock - 1) / maxStoredBlock
	if chunks == 0 {
		chunks = 1
	}
	pad := (8 - (e.bw.PendingBits()+3)%8) % 8
	return pad + chunks*(3+32) + (chunks-1)*5 + 8*n
}

// buildDynamic computes the dynamic trees and the code-length codes that
// describe them, and returns HLIT+257, HDIST+1 and HCLEN+4.
func (e *BlockEncoder) buildDynamic() (numLit, numDist, numCL int) {
	e.builder.Lengths(e.litFreq[:], huffman.MaxBits, e.litLen[:])
	e.builder.Lengths(e.distFreq[:], huffman.MaxBits, e.distLen[:])
	huffman.Codes(e.litLen[:], e.litCode[:])
	huffman.Codes(e.distLen[:], e.distCode[:])

	numLit = huffman.MaxLiteralCodes
	for numLit > huffman.FirstLengthCode && e.litLen[numLit-1] == 0 {
		numLit--
	}
	numDist = huffman.MaxDistanceCodes
	for numDist > 1 && e.distLen[numDist-1] == 0 {
		numDist--
	}

	lengths := e.combined[:0]
	lengths = append(lengths, e.litLen[:numLit]...)
	lengths = append(lengths, e.distLen[:numDist]...)
	e.generateCodegen(lengths)

	e.builder.Lengths(e.cgFreq[:], huffman.MaxCodeLengthBits, e.cgLen[:])
	huffman.Codes(e.cgLen[:], e.cgCode[:])

	numCL = huffman.NumCodeLengthSymbols
	for numCL > 4 && e.cgLen[huffman.CodeLengthOrder[numCL-1]] == 0 {
		numCL--
	}
	return numLit, numDist, numCL
}

// generateCodegen run-length encodes lengths with the code-length alphabet:
// 16 repeats the previous length 3-6 times, 17 writes 3-10 zeros and 18
// writes 11-138 zeros.
func (e *BlockEncoder) generateCodegen(lengths []uint8) {
	for i := range e.cgFreq {
		e.cgFreq[i] = 0
	}
	e.codegen = e.codegen[:0]
	emit := func(sym, extra uint8) {
		e.cgFreq[sym]++
		e.codegen = append(e.codegen, sym)
		if sym >= 16 {
			e.codegen = append(e.codegen, extra)
		}
	}

	for i := 0; i < len(lengths); {
		v := lengths[i]
		run := 1
		for i+run < len(lengths) && lengths[i+run] == v {
			run++
		}
		i += run

		if v == 0 {
			for run >= 11 {
				n := run
				if n > 138 {
					n = 138
				}
				emit(18, uint8(n-11))
				run -= n
			}
			if run >= 3 {
				emit(17, uint8(run-3))
				run = 0
			}
			for ; run > 0; run-- {
				emit(0, 0)
			}
			continue
		}

		emit(v, 0)
		run--
		for run >= 3 {
			n := run
			if n > 6 {
				n = 6
			}
			emit(16, uint8(n-3))
			run -= n
		}
		for ; run > 0; run-- {
			emit(v, 0)
		}
	}
}

var codegenExtraBits = [3]uint8{2, 3, 7}

func (e *BlockEncoder) dynamicHeaderBits(numCL int) int {
	n := 5 + 5 + 4 + 3*numCL + huffman.Cost(e.cgFreq[:], e.cgLen[:])
	for i, b := range codegenExtraBits {
		n += int(e.cgFreq[16+i]) * int(b)
	}
	return n
}

func (e *BlockEncoder) writeBlockHeader(last bool, t deflate.BlockType) {
	var final uint64
	if last {
		final = 1
	}
	e.bw.WriteBits(1, final)
	e.bw.WriteBits(2, uint64(t))
}

func (e *BlockEncoder) writeCode(c huffman.Code) {
	e.bw.WriteBits(uint(c.Len), uint64(c.Bits))
}

func (e *BlockEncoder) writeDynamicHeader(numLit, numDist, numCL int) {
	e.bw.WriteBits(5, uint64(numLit-huffman.FirstLengthCode))
	e.bw.WriteBits(5, uint64(numDist-1))
	e.bw.WriteBits(4, uint64(numCL-4))
	for _, sym := range huffman.CodeLengthOrder[:numCL] {
		e.bw.WriteBits(3, uint64(e.cgLen[sym]))
	}

	cg := e.codegen
	for len(cg) > 0 {
		sym := cg[0]
		e.writeCode(e.cgCode[sym])
		if sym >= 16 {
			e.bw.WriteBits(uint(codegenExtraBits[sym-16]), uint64(cg[1]))
			cg = cg[2:]
		} else {
			cg = cg[1:]
		}
	}
}

func (e *BlockEncoder) writeData(src []byte, matches []deflate.Match, litCodes, distCodes []huffman.Code) {
	pos := 0
	for _, m := range matches {
		for _, b := range src[pos : pos+m.Unmatched] {
			e.writeCode(litCodes[b])
		}
		pos += m.Unmatched
		if m.Length == 0 {
			continue
		}

		lc := huffman.LengthCode(m.Length)
		e.writeCode(litCodes[lc])
		i := lc - huffman.FirstLengthCode
		if n := huffman.LengthExtraBits[i]; n > 0 {
			e.bw.WriteBits(uint(n), uint64(m.Length-int(huffman.LengthBase[i])))
		}

		dc := huffman.DistanceCode(m.Distance)
		e.writeCode(distCodes[dc])
		if n := huffman.DistanceExtraBits[dc]; n > 0 {
			e.bw.WriteBits(uint(n), uint64(m.Distance-int(huffman.DistanceBase[dc])))
		}
		pos += m.Length
	}
	e.writeCode(litCodes[huffman.EndOfBlock])
}

func (e *BlockEncoder) writeStored(src []byte, last bool) {
	for {
		chunk := src
		if len(chunk) > maxStoredBlock {
			chunk = chunk[:maxStoredBlock]
		}
		src = src[len(chunk):]

		e.writeBlockHeader(last && len(src) == 0, deflate.StoredBlock)
		e.bw.AlignToByte()
		n := uint64(len(chunk))
		e.bw.WriteBits(16, n)
		e.bw.WriteBits(16, ^n)
		e.bw.WriteBytes(chunk)

		if len(src) == 0 {
			return
		}
	}
}
