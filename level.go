package deflate

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// A Level selects the trade-off between speed and compressed size.
type Level int

const (
	NoCompression Level = 0
	Fastest       Level = 1
	Optimal       Level = 6
	SmallestSize  Level = 9

	// DefaultCompression is replaced by Optimal.
	DefaultCompression Level = -1
)

// Validate reports whether l is a level the Deflater understands.
func (l Level) Validate() error {
	if l < DefaultCompression || l > SmallestSize {
		return errors.Wrapf(ErrInvalidLevel, "level %d: want value in range [%d, %d]", l, DefaultCompression, SmallestSize)
	}
	return nil
}

// Normalize maps DefaultCompression to the level it stands for.
func (l Level) Normalize() Level {
	if l == DefaultCompression {
		return Optimal
	}
	return l
}

func (l Level) String() string {
	switch l {
	case NoCompression:
		return "none"
	case Fastest:
		return "fastest"
	case Optimal:
		return "optimal"
	case SmallestSize:
		return "smallest"
	case DefaultCompression:
		return "default"
	}
	return "level-" + strconv.Itoa(int(l))
}

// ParseLevel accepts the level names printed by Level.String as well as the
// digits 0 through 9.
func ParseLevel(s string) (Level, error) {
	s = strings.TrimPrefix(s, "level-")
	switch s {
	case "none":
		return NoCompression, nil
	case "fastest":
		return Fastest, nil
	case "optimal", "default", "":
		return Optimal, nil
	case "smallest":
		return SmallestSize, nil
	}
	if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
		return Level(s[0] - '0'), nil
	}
	return 0, errors.Wrapf(ErrInvalidLevel, "unknown level %q", s)
}

// A Variant selects between standard DEFLATE and Deflate64.
type Variant int

const (
	Standard Variant = iota

	// Deflate64 uses a 64 KiB window, 16 extra bits on length code 285,
	// and distance codes 30 and 31.
	Deflate64
)

// WindowSize returns the size of the history window for v.
func (v Variant) WindowSize() int {
	if v == Deflate64 {
		return 1 << 16
	}
	return 1 << 15
}

func (v Variant) String() string {
	if v == Deflate64 {
		return "deflate64"
	}
	return "deflate"
}

// A BlockType is the BTYPE field of a block header.
type BlockType int

const (
	StoredBlock  BlockType = 0
	FixedBlock   BlockType = 1
	DynamicBlock BlockType = 2

	// AutoBlock lets the encoder pick whichever block type is smallest.
	AutoBlock BlockType = -1
)

func (t BlockType) String() string {
	switch t {
	case StoredBlock:
		return "stored"
	case FixedBlock:
		return "fixed"
	case DynamicBlock:
		return "dynamic"
	case AutoBlock:
		return "auto"
	}
	return "reserved"
}

// ParseBlockType is the inverse of BlockType.String.
func ParseBlockType(s string) (BlockType, error) {
	switch s {
	case "stored":
		return StoredBlock, nil
	case "fixed", "static":
		return FixedBlock, nil
	case "dynamic":
		return DynamicBlock, nil
	case "auto", "":
		return AutoBlock, nil
	}
	return 0, errors.Errorf("unknown block type %q", s)
}
