package huffman

import "sync"

// The fixed Huffman codes of RFC 1951 section 3.2.6 are process-wide
// read-only data, built on first use.
var (
	staticOnce sync.Once

	staticLiteralLengths  [NumLiteralSymbols]uint8
	staticDistanceLengths [NumDistanceSymbols]uint8

	staticLiteralTree  Tree
	staticDistanceTree Tree

	staticLiteralCodes  [NumLiteralSymbols]Code
	staticDistanceCodes [NumDistanceSymbols]Code
)

func initStatic() {
	for i := range staticLiteralLengths {
		switch {
		case i < 144:
			staticLiteralLengths[i] = 8
		case i < 256:
			staticLiteralLengths[i] = 9
		case i < 280:
			staticLiteralLengths[i] = 7
		default:
			staticLiteralLengths[i] = 8
		}
	}
	for i := range staticDistanceLengths {
		staticDistanceLengths[i] = 5
	}

	if err := staticLiteralTree.Init(staticLiteralLengths[:], LiteralTree); err != nil {
		panic(err)
	}
	if err := staticDistanceTree.Init(staticDistanceLengths[:], DistanceTree); err != nil {
		panic(err)
	}
	Codes(staticLiteralLengths[:], staticLiteralCodes[:])
	Codes(staticDistanceLengths[:], staticDistanceCodes[:])
}

// StaticLiteralTree returns the fixed literal/length decoding tree.
func StaticLiteralTree() *Tree {
	staticOnce.Do(initStatic)
	return &staticLiteralTree
}

// StaticDistanceTree returns the fixed distance decoding tree.
func StaticDistanceTree() *Tree {
	staticOnce.Do(initStatic)
	return &staticDistanceTree
}

// StaticLiteralLengths returns the fixed literal/length code lengths.
// The caller must not modify the result.
func StaticLiteralLengths() []uint8 {
	staticOnce.Do(initStatic)
	return staticLiteralLengths[:]
}

// StaticDistanceLengths returns the fixed distance code lengths.
// The caller must not modify the result.
func StaticDistanceLengths() []uint8 {
	staticOnce.Do(initStatic)
	return staticDistanceLengths[:]
}

// StaticLiteralCodes returns the fixed literal/length codes.
func StaticLiteralCodes() []Code {
	staticOnce.Do(initStatic)
	return staticLiteralCodes[:]
}

// StaticDistanceCodes returns the fixed distance codes.
func StaticDistanceCodes() []Code {
	staticOnce.Do(initStatic)
	return staticDistanceCodes[:]
}
