package chunk

import "errors"

// Failures wrap one of these sentinels so callers can dispatch with
// errors.Is and decide recovery per error kind.
var (
	// ErrInvalidType reports a type tag that is not 4 ASCII letters.
	ErrInvalidType = errors.New("chunk: invalid chunk type")

	// ErrInvalidChunk reports a structurally malformed frame: too short
	// for the minimum layout, shorter than its declared data length, or
	// carrying an unparseable type tag.
	ErrInvalidChunk = errors.New("chunk: invalid chunk")

	// ErrCRCMismatch reports a frame whose stored CRC disagrees with the
	// value recomputed over the type tag and data.
	ErrCRCMismatch = errors.New("chunk: crc mismatch")

	// ErrInvalidText reports a payload that is not valid UTF-8.
	ErrInvalidText = errors.New("chunk: invalid text")
)
