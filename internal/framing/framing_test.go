package framing

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/lethuzulu/pngsecret/internal/chunk"
)

func TestReadSignature(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "valid signature",
			data:        []byte(Signature),
			expectError: false,
		},
		{
			name:        "signature with trailing data",
			data:        append([]byte(Signature), 0x01, 0x02),
			expectError: false,
		},
		{
			name:        "wrong bytes",
			data:        []byte("\x89JPG\r\n\x1a\n"),
			expectError: true,
		},
		{
			name:        "short stream",
			data:        []byte{0x89, 'P', 'N'},
			expectError: true,
		},
		{
			name:        "empty stream",
			data:        []byte{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ReadSignature(bytes.NewReader(tt.data))

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !errors.Is(err, ErrBadSignature) {
					t.Errorf("Expected ErrBadSignature, got %v", err)
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestWriteSignature(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSignature(&buf); err != nil {
		t.Fatalf("WriteSignature failed: %v", err)
	}
	if buf.String() != Signature {
		t.Errorf("WriteSignature wrote % x, expected % x", buf.Bytes(), []byte(Signature))
	}

	// The pair must agree with each other
	if err := ReadSignature(&buf); err != nil {
		t.Errorf("ReadSignature rejected WriteSignature output: %v", err)
	}
}

func TestDecoderNext(t *testing.T) {
	first := createTestChunk(t, "IHDR", []byte{0x00, 0x01})
	second := createTestChunk(t, "teXt", []byte("hello"))
	third := createTestChunk(t, "IEND", nil)

	var stream bytes.Buffer
	enc := NewEncoder(&stream)
	for _, c := range []*chunk.Chunk{first, second, third} {
		if err := enc.Encode(c); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}

	dec := NewDecoder(bytes.NewReader(stream.Bytes()), DefaultLimits())

	expected := []struct {
		tag    string
		length uint32
		offset int64
	}{
		{"IHDR", 2, 0},
		{"teXt", 5, 14},
		{"IEND", 0, 31},
	}

	for i, want := range expected {
		if dec.Offset() != want.offset {
			t.Errorf("Frame %d: Offset() = %d, expected %d", i, dec.Offset(), want.offset)
		}

		c, err := dec.Next()
		if err != nil {
			t.Fatalf("Frame %d: Next() failed: %v", i, err)
		}
		if c.Type().String() != want.tag {
			t.Errorf("Frame %d: type = %s, expected %s", i, c.Type(), want.tag)
		}
		if c.Length() != want.length {
			t.Errorf("Frame %d: length = %d, expected %d", i, c.Length(), want.length)
		}
	}

	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("Expected io.EOF at end of stream, got %v", err)
	}
}

func TestDecoderTruncated(t *testing.T) {
	frame := createTestChunk(t, "teXt", []byte("hello")).Bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{"cut inside header", frame[:3]},
		{"cut inside data", frame[:10]},
		{"cut inside crc", frame[:len(frame)-2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder(bytes.NewReader(tt.data), DefaultLimits())
			_, err := dec.Next()
			if err == nil {
				t.Fatalf("Expected error but got none")
			}
			if !errors.Is(err, ErrTruncated) {
				t.Errorf("Expected ErrTruncated, got %v", err)
			}
		})
	}
}

func TestDecoderLimit(t *testing.T) {
	frame := createTestChunk(t, "teXt", []byte("hello")).Bytes()

	dec := NewDecoder(bytes.NewReader(frame), Limits{MaxDataBytes: 4})
	_, err := dec.Next()
	if err == nil {
		t.Fatalf("Expected error but got none")
	}
	if !errors.Is(err, ErrDataTooLarge) {
		t.Errorf("Expected ErrDataTooLarge, got %v", err)
	}

	// The same frame passes at the boundary
	dec = NewDecoder(bytes.NewReader(frame), Limits{MaxDataBytes: 5})
	if _, err := dec.Next(); err != nil {
		t.Errorf("Expected frame at the limit to decode, got %v", err)
	}
}

func TestDecoderCRCPropagation(t *testing.T) {
	good := createTestChunk(t, "IHDR", []byte{0x00}).Bytes()
	bad := createTestChunk(t, "teXt", []byte("hello")).Bytes()
	bad[len(bad)-1] ^= 0xFF

	stream := append(append([]byte{}, good...), bad...)
	dec := NewDecoder(bytes.NewReader(stream), DefaultLimits())

	if _, err := dec.Next(); err != nil {
		t.Fatalf("First frame failed: %v", err)
	}

	_, err := dec.Next()
	if err == nil {
		t.Fatalf("Expected error but got none")
	}
	if !errors.Is(err, chunk.ErrCRCMismatch) {
		t.Errorf("Expected chunk.ErrCRCMismatch to propagate, got %v", err)
	}

	// The failed frame was fully consumed, so decoding resumes at the
	// next boundary
	if dec.Offset() != int64(len(stream)) {
		t.Errorf("Offset() = %d after failed frame, expected %d", dec.Offset(), len(stream))
	}
	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("Expected io.EOF after the failed frame, got %v", err)
	}
}

func TestEncoderDecoderRoundTrip(t *testing.T) {
	original := createTestChunk(t, "RuSt", []byte("This is where your secret message will be!"))

	var buf bytes.Buffer
	if err := WriteSignature(&buf); err != nil {
		t.Fatalf("WriteSignature failed: %v", err)
	}
	if err := NewEncoder(&buf).Encode(original); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	r := bytes.NewReader(buf.Bytes())
	if err := ReadSignature(r); err != nil {
		t.Fatalf("ReadSignature failed: %v", err)
	}

	decoded, err := NewDecoder(r, DefaultLimits()).Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if decoded.Type() != original.Type() ||
		decoded.Length() != original.Length() ||
		decoded.CRC() != original.CRC() ||
		!bytes.Equal(decoded.Data(), original.Data()) {
		t.Errorf("Round trip changed the chunk: %v -> %v", original, decoded)
	}
}

// createTestChunk builds a chunk for stream fixtures
func createTestChunk(t *testing.T, tag string, data []byte) *chunk.Chunk {
	t.Helper()

	typ, err := chunk.ParseType(tag)
	if err != nil {
		t.Fatalf("ParseType(%q) failed: %v", tag, err)
	}
	return chunk.New(typ, data)
}
