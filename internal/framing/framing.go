package framing

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lethuzulu/pngsecret/internal/chunk"
)

// Signature is the 8-byte sequence every PNG stream opens with
const Signature = "\x89PNG\r\n\x1a\n"

// SignatureSize is the byte width of the stream signature
const SignatureSize = 8

// MaxChunkData is the largest data length a conforming stream may declare,
// and the default decoder limit
const MaxChunkData = 1<<31 - 1

// Limits bounds what the decoder will accept before allocating
type Limits struct {
	// MaxDataBytes rejects frames whose declared data length exceeds it
	MaxDataBytes uint32
}

// DefaultLimits returns the stock limits for conforming streams
func DefaultLimits() Limits {
	return Limits{
		MaxDataBytes: MaxChunkData,
	}
}

// ReadSignature consumes and checks the stream signature
func ReadSignature(r io.Reader) error {
	sig := make([]byte, SignatureSize)
	if _, err := io.ReadFull(r, sig); err != nil {
		return fmt.Errorf("%w: stream shorter than %d bytes: %v", ErrBadSignature, SignatureSize, err)
	}
	if string(sig) != Signature {
		return fmt.Errorf("%w: got % x", ErrBadSignature, sig)
	}
	return nil
}

// WriteSignature writes the stream signature
func WriteSignature(w io.Writer) error {
	if _, err := w.Write([]byte(Signature)); err != nil {
		return fmt.Errorf("failed to write signature: %w", err)
	}
	return nil
}

// Decoder reads successive chunk frames from a stream.
// It does not read the signature; callers that expect one use ReadSignature
// first. A stream that ends exactly on a frame boundary yields io.EOF; a
// stream that ends inside a frame yields ErrTruncated.
type Decoder struct {
	r      io.Reader
	limits Limits
	offset int64
}

// NewDecoder builds a Decoder over r with the given limits
func NewDecoder(r io.Reader, limits Limits) *Decoder {
	if limits.MaxDataBytes == 0 {
		limits = DefaultLimits()
	}
	return &Decoder{
		r:      r,
		limits: limits,
	}
}

// Offset returns the stream position of the next frame
func (d *Decoder) Offset() int64 {
	return d.offset
}

// Next decodes one chunk frame.
// Codec failures carry the frame's stream offset and wrap the chunk
// package's error kinds, so callers can both locate and classify them.
func (d *Decoder) Next() (*chunk.Chunk, error) {
	start := d.offset

	header := make([]byte, chunk.HeaderSize)
	if _, err := io.ReadFull(d.r, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: stream ended inside the header at offset %d", ErrTruncated, start)
	}

	length := binary.BigEndian.Uint32(header[0:chunk.LengthSize])
	if length > d.limits.MaxDataBytes {
		return nil, fmt.Errorf("%w: declared %d bytes at offset %d, limit %d",
			ErrDataTooLarge, length, start, d.limits.MaxDataBytes)
	}

	rest := make([]byte, int64(length)+chunk.CRCSize)
	if _, err := io.ReadFull(d.r, rest); err != nil {
		return nil, fmt.Errorf("%w: stream ended inside the frame at offset %d (declared %d data bytes)",
			ErrTruncated, start, length)
	}

	frame := append(header, rest...)
	c, err := chunk.Parse(frame)
	if err != nil {
		// The frame was fully read, so the stream position still
		// advances past it and the caller may resync at the boundary.
		d.offset += int64(len(frame))
		return nil, fmt.Errorf("chunk at offset %d: %w", start, err)
	}

	d.offset += int64(len(frame))
	return c, nil
}

// Encoder writes chunk frames to a stream
type Encoder struct {
	w io.Writer
}

// NewEncoder builds an Encoder over w
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the chunk's exact wire form
func (e *Encoder) Encode(c *chunk.Chunk) error {
	if _, err := e.w.Write(c.Bytes()); err != nil {
		return fmt.Errorf("failed to write chunk frame: %w", err)
	}
	return nil
}
