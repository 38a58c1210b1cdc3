package framing

import "errors"

var (
	// ErrBadSignature reports a stream that does not open with the 8-byte
	// PNG signature.
	ErrBadSignature = errors.New("framing: bad png signature")

	// ErrTruncated reports a stream that ends inside a chunk frame.
	ErrTruncated = errors.New("framing: truncated chunk frame")

	// ErrDataTooLarge reports a declared data length above the decoder's
	// limit.
	ErrDataTooLarge = errors.New("framing: chunk data exceeds limit")
)
