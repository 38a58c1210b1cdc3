package secret

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/lethuzulu/pngsecret/internal/chunk"
	"github.com/lethuzulu/pngsecret/internal/framing"
)

// ErrChunkNotFound reports that the stream holds no chunk of the requested
// type.
var ErrChunkNotFound = errors.New("secret: chunk not found")

// Embed appends a message chunk of the given type to the end of the stream.
// The stream must open with the PNG signature; existing chunks pass through
// untouched.
func Embed(stream []byte, typ chunk.Type, message []byte) ([]byte, error) {
	if err := framing.ReadSignature(bytes.NewReader(stream)); err != nil {
		return nil, err
	}

	frame := chunk.New(typ, message).Bytes()
	out := make([]byte, 0, len(stream)+len(frame))
	out = append(out, stream...)
	out = append(out, frame...)
	return out, nil
}

// Extract returns the first chunk in the stream whose type equals typ
func Extract(stream []byte, typ chunk.Type) (*chunk.Chunk, error) {
	r := bytes.NewReader(stream)
	if err := framing.ReadSignature(r); err != nil {
		return nil, err
	}

	dec := framing.NewDecoder(r, framing.DefaultLimits())
	for {
		c, err := dec.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: no %s chunk in stream", ErrChunkNotFound, typ)
		}
		if err != nil {
			return nil, err
		}
		if c.Type() == typ {
			return c, nil
		}
	}
}

// Remove rewrites the stream without the first chunk whose type equals typ,
// returning the new stream and the removed chunk. All other bytes pass
// through verbatim.
func Remove(stream []byte, typ chunk.Type) ([]byte, *chunk.Chunk, error) {
	r := bytes.NewReader(stream)
	if err := framing.ReadSignature(r); err != nil {
		return nil, nil, err
	}

	dec := framing.NewDecoder(r, framing.DefaultLimits())
	for {
		start := dec.Offset()
		c, err := dec.Next()
		if err == io.EOF {
			return nil, nil, fmt.Errorf("%w: no %s chunk in stream", ErrChunkNotFound, typ)
		}
		if err != nil {
			return nil, nil, err
		}
		if c.Type() != typ {
			continue
		}

		// Decoder offsets start after the signature
		frameStart := framing.SignatureSize + int(start)
		frameEnd := framing.SignatureSize + int(dec.Offset())

		out := make([]byte, 0, len(stream)-(frameEnd-frameStart))
		out = append(out, stream[:frameStart]...)
		out = append(out, stream[frameEnd:]...)
		return out, c, nil
	}
}

// List returns every chunk in the stream in order
func List(stream []byte) ([]*chunk.Chunk, error) {
	r := bytes.NewReader(stream)
	if err := framing.ReadSignature(r); err != nil {
		return nil, err
	}

	var chunks []*chunk.Chunk
	dec := framing.NewDecoder(r, framing.DefaultLimits())
	for {
		c, err := dec.Next()
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
}
