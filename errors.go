package deflate

import (
	"github.com/pkg/errors"
)

var (
	// ErrCorrupt is the single failure kind for invalid compressed data:
	// bad code length tables, missing end-of-block codes, reserved block
	// types, stored length mismatches and out-of-range distances.
	ErrCorrupt = errors.New("deflate: invalid compressed data")

	// ErrTruncated reports a stream that ended before its final block was
	// complete. It is only returned in strict mode.
	ErrTruncated = errors.New("deflate: truncated stream")

	// ErrInputPending is returned when new input is supplied while the
	// engine still holds unconsumed input. It indicates a bug in the caller.
	ErrInputPending = errors.New("deflate: previous input not consumed")

	// ErrFinished is returned when input is supplied after Finish.
	ErrFinished = errors.New("deflate: stream already finished")

	// ErrInvalidLevel reports an unsupported compression configuration.
	ErrInvalidLevel = errors.New("deflate: invalid compression level")
)

// Corruptf wraps ErrCorrupt with a description of what was wrong.
func Corruptf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrCorrupt, format, args...)
}

// IsCorrupt reports whether err was caused by invalid compressed data.
func IsCorrupt(err error) bool {
	return errors.Cause(err) == ErrCorrupt
}

// IsTruncated reports whether err was caused by a truncated stream.
func IsTruncated(err error) bool {
	return errors.Cause(err) == ErrTruncated
}
