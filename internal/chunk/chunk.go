package chunk

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"unicode/utf8"
)

// Frame layout sizes
// Layout: [Length:4][Type:4][Data:Length][CRC:4], all integers big-endian
const (
	LengthSize = 4
	CRCSize    = 4

	// HeaderSize is the byte count before the data field
	HeaderSize = LengthSize + TypeSize

	// MinFrameSize is the size of a frame with empty data
	MinFrameSize = HeaderSize + CRCSize
)

// Chunk is one length-prefixed, type-tagged, CRC-checked unit of a PNG-style
// stream. A Chunk owns its type tag and data exclusively and is immutable
// after construction: the length always equals the data size and the CRC is
// always the checksum over the tag bytes followed by the data.
type Chunk struct {
	length    uint32
	chunkType Type
	data      []byte
	crc       uint32
}

// New builds a Chunk from a type tag and a payload of any length, computing
// the length field and the CRC over the tag bytes followed by the data.
// The payload is copied, never aliased.
// New panics if the payload exceeds math.MaxUint32 bytes: the 4-byte length
// field cannot represent such a frame.
func New(chunkType Type, data []byte) *Chunk {
	if uint64(len(data)) > math.MaxUint32 {
		panic(fmt.Sprintf("chunk: data size %d exceeds the 4-byte length field", len(data)))
	}

	owned := make([]byte, len(data))
	copy(owned, data)

	return &Chunk{
		length:    uint32(len(owned)),
		chunkType: chunkType,
		data:      owned,
		crc:       checksum(chunkType, owned),
	}
}

// Parse decodes one chunk frame from the front of buf.
// The buffer must hold the full frame: 4-byte length, 4-byte type tag, the
// declared number of data bytes, and the trailing 4-byte CRC. Bytes beyond
// the frame are ignored. The stored CRC must agree with the value recomputed
// over the tag and data; a disagreement fails with ErrCRCMismatch.
func Parse(buf []byte) (*Chunk, error) {
	if len(buf) < MinFrameSize {
		return nil, fmt.Errorf("%w: frame too short: expected at least %d bytes, got %d",
			ErrInvalidChunk, MinFrameSize, len(buf))
	}

	length := binary.BigEndian.Uint32(buf[0:LengthSize])

	var tag [TypeSize]byte
	copy(tag[:], buf[LengthSize:HeaderSize])
	chunkType, err := NewType(tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}

	// The frame needs length data bytes plus the trailing CRC. The bound
	// is computed in 64 bits so a large length field cannot overflow it.
	dataEnd := int64(HeaderSize) + int64(length)
	if int64(len(buf)) < dataEnd+CRCSize {
		return nil, fmt.Errorf("%w: declared %d data bytes but frame holds %d",
			ErrInvalidChunk, length, len(buf)-MinFrameSize)
	}

	data := make([]byte, length)
	copy(data, buf[HeaderSize:dataEnd])

	wireCRC := binary.BigEndian.Uint32(buf[dataEnd : dataEnd+CRCSize])
	computed := checksum(chunkType, data)
	if computed != wireCRC {
		return nil, fmt.Errorf("%w: stored 0x%08x, computed 0x%08x",
			ErrCRCMismatch, wireCRC, computed)
	}

	return &Chunk{
		length:    length,
		chunkType: chunkType,
		data:      data,
		crc:       computed,
	}, nil
}

// Length returns the byte count of the data field only
func (c *Chunk) Length() uint32 {
	return c.length
}

// Type returns the chunk's type tag
func (c *Chunk) Type() Type {
	return c.chunkType
}

// Data returns a copy of the payload
func (c *Chunk) Data() []byte {
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

// CRC returns the checksum over the type tag and data
func (c *Chunk) CRC() uint32 {
	return c.crc
}

// Text decodes the payload as UTF-8 text.
// Payloads that are not valid UTF-8 fail with ErrInvalidText; there is no
// replacement-character fallback.
func (c *Chunk) Text() (string, error) {
	if !utf8.Valid(c.data) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", ErrInvalidText)
	}
	return string(c.data), nil
}

// Bytes serializes the chunk to its exact wire form, 12+length bytes:
// big-endian length, type tag, data, big-endian CRC
func (c *Chunk) Bytes() []byte {
	buf := make([]byte, MinFrameSize+len(c.data))
	binary.BigEndian.PutUint32(buf[0:LengthSize], c.length)
	tag := c.chunkType.Bytes()
	copy(buf[LengthSize:HeaderSize], tag[:])
	copy(buf[HeaderSize:], c.data)
	binary.BigEndian.PutUint32(buf[HeaderSize+len(c.data):], c.crc)
	return buf
}

// String returns a human-readable summary of the chunk
func (c *Chunk) String() string {
	return fmt.Sprintf("Chunk{Type:%s, Length:%d, CRC:0x%08x}", c.chunkType, c.length, c.crc)
}

// checksum computes the CRC-32 PNG parameterization (IEEE polynomial,
// reflected, standard init and final XOR) over the tag bytes then the data
func checksum(chunkType Type, data []byte) uint32 {
	tag := chunkType.Bytes()
	crc := crc32.Update(0, crc32.IEEETable, tag[:])
	return crc32.Update(crc, crc32.IEEETable, data)
}
