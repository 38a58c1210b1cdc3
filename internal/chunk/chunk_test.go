package chunk

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
)

const testMessage = "This is where your secret message will be!"

func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		tag            string
		data           []byte
		expectedLength uint32
		expectedCRC    uint32
	}{
		{
			name:           "text payload",
			tag:            "RuSt",
			data:           []byte(testMessage),
			expectedLength: 42,
			expectedCRC:    2882656334,
		},
		{
			name:           "empty payload",
			tag:            "RuSt",
			data:           []byte{},
			expectedLength: 0,
			expectedCRC:    3565422908,
		},
		{
			name:           "binary payload",
			tag:            "RuSt",
			data:           []byte{0xFF, 0xFE, 0xFD},
			expectedLength: 3,
			expectedCRC:    512511805,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, err := ParseType(tt.tag)
			if err != nil {
				t.Fatalf("ParseType(%q) failed: %v", tt.tag, err)
			}

			c := New(typ, tt.data)

			if c.Length() != tt.expectedLength {
				t.Errorf("Length() = %d, expected %d", c.Length(), tt.expectedLength)
			}
			if c.CRC() != tt.expectedCRC {
				t.Errorf("CRC() = %d, expected %d", c.CRC(), tt.expectedCRC)
			}
			if c.Type() != typ {
				t.Errorf("Type() = %v, expected %v", c.Type(), typ)
			}
			if !bytesEqual(c.Data(), tt.data) {
				t.Errorf("Data() = %v, expected %v", c.Data(), tt.data)
			}
		})
	}
}

func TestNewCRCDeterminism(t *testing.T) {
	typ, err := ParseType("FrSt")
	if err != nil {
		t.Fatalf("ParseType failed: %v", err)
	}

	a := New(typ, []byte("alpha"))
	b := New(typ, []byte("alpha"))
	if a.CRC() != b.CRC() {
		t.Errorf("Equal inputs produced CRCs %d and %d", a.CRC(), b.CRC())
	}

	c := New(typ, []byte("beta"))
	if a.CRC() == c.CRC() {
		t.Errorf("Different inputs produced the same CRC %d", a.CRC())
	}
}

func TestNewOwnsData(t *testing.T) {
	typ, err := ParseType("FrSt")
	if err != nil {
		t.Fatalf("ParseType failed: %v", err)
	}

	payload := []byte("alpha")
	c := New(typ, payload)

	// Mutating the caller's slice must not reach into the chunk
	payload[0] = 'X'
	if !bytesEqual(c.Data(), []byte("alpha")) {
		t.Errorf("Chunk data changed through the caller's slice: %q", c.Data())
	}

	// Mutating an accessor copy must not either
	view := c.Data()
	view[0] = 'Y'
	if !bytesEqual(c.Data(), []byte("alpha")) {
		t.Errorf("Chunk data changed through the accessor copy: %q", c.Data())
	}
}

func TestParse(t *testing.T) {
	fixture := createTestFrame(t, "RuSt", []byte(testMessage))

	truncated := createTestFrame(t, "RuSt", []byte(testMessage))
	truncated = truncated[:len(truncated)-6]

	overdeclared := createTestFrame(t, "RuSt", []byte(testMessage))
	binary.BigEndian.PutUint32(overdeclared[0:4], 43)

	badTag := createTestFrame(t, "RuSt", []byte(testMessage))
	badTag[6] = '1'

	badCRC := createTestFrame(t, "RuSt", []byte(testMessage))
	binary.BigEndian.PutUint32(badCRC[len(badCRC)-4:], 2882656333)

	tests := []struct {
		name        string
		data        []byte
		expectError bool
		errorMsg    string
		validate    func(*Chunk) bool
	}{
		{
			name:        "valid chunk",
			data:        fixture,
			expectError: false,
			validate: func(c *Chunk) bool {
				return c.Length() == 42 &&
					c.Type().String() == "RuSt" &&
					string(c.Data()) == testMessage &&
					c.CRC() == 2882656334
			},
		},
		{
			name:        "empty data chunk",
			data:        createTestFrame(t, "RuSt", nil),
			expectError: false,
			validate: func(c *Chunk) bool {
				return c.Length() == 0 && len(c.Data()) == 0 && c.CRC() == 3565422908
			},
		},
		{
			name:        "trailing bytes ignored",
			data:        append(createTestFrame(t, "FrSt", []byte("alpha")), 0xDE, 0xAD),
			expectError: false,
			validate: func(c *Chunk) bool {
				return c.Length() == 5 && string(c.Data()) == "alpha"
			},
		},
		{
			name:        "frame too short",
			data:        fixture[:11],
			expectError: true,
			errorMsg:    "frame too short",
		},
		{
			name:        "empty buffer",
			data:        []byte{},
			expectError: true,
			errorMsg:    "frame too short",
		},
		{
			name:        "invalid type tag",
			data:        badTag,
			expectError: true,
			errorMsg:    "invalid chunk type",
		},
		{
			name:        "data shorter than declared length",
			data:        truncated,
			expectError: true,
			errorMsg:    "declared",
		},
		{
			name:        "declared length exceeds buffer",
			data:        overdeclared,
			expectError: true,
			errorMsg:    "declared",
		},
		{
			name:        "stored crc disagrees",
			data:        badCRC,
			expectError: true,
			errorMsg:    "crc mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Parse(tt.data)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if tt.validate != nil && !tt.validate(result) {
					t.Errorf("Validation failed for result: %v", result)
				}
			}
		})
	}
}

func TestParseErrorKinds(t *testing.T) {
	badTag := createTestFrame(t, "FrSt", []byte("alpha"))
	badTag[5] = '9'

	badCRC := createTestFrame(t, "FrSt", []byte("alpha"))
	badCRC[len(badCRC)-1] ^= 0xFF

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short buffer", []byte{0x00, 0x01, 0x02}, ErrInvalidChunk},
		{"bad tag is an invalid chunk", badTag, ErrInvalidChunk},
		{"bad tag names the type error", badTag, ErrInvalidType},
		{"crc disagreement", badCRC, ErrCRCMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			if err == nil {
				t.Fatalf("Expected error but got none")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	typ, err := ParseType("RuSt")
	if err != nil {
		t.Fatalf("ParseType failed: %v", err)
	}

	// parse(serialize(new)) preserves every field
	original := New(typ, []byte(testMessage))
	reparsed, err := Parse(original.Bytes())
	if err != nil {
		t.Fatalf("Parse of serialized chunk failed: %v", err)
	}
	if reparsed.Length() != original.Length() ||
		reparsed.Type() != original.Type() ||
		!bytesEqual(reparsed.Data(), original.Data()) ||
		reparsed.CRC() != original.CRC() {
		t.Errorf("Round trip changed the chunk: %v -> %v", original, reparsed)
	}

	// serialize(parse(frame)) reproduces the frame byte for byte
	frame := createTestFrame(t, "FrSt", []byte("alpha"))
	parsed, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !bytesEqual(parsed.Bytes(), frame) {
		t.Errorf("Serialization did not reproduce the frame:\n got %v\nwant %v", parsed.Bytes(), frame)
	}
}

func TestText(t *testing.T) {
	typ, err := ParseType("RuSt")
	if err != nil {
		t.Fatalf("ParseType failed: %v", err)
	}

	c := New(typ, []byte(testMessage))
	text, err := c.Text()
	if err != nil {
		t.Errorf("Text() on UTF-8 payload failed: %v", err)
	}
	if text != testMessage {
		t.Errorf("Text() = %q, expected %q", text, testMessage)
	}

	raw := New(typ, []byte{0xFF, 0xFE, 0xFD})
	_, err = raw.Text()
	if err == nil {
		t.Errorf("Expected error for non-UTF-8 payload but got none")
	} else if !errors.Is(err, ErrInvalidText) {
		t.Errorf("Expected ErrInvalidText, got %v", err)
	}
}

func TestTamperDetection(t *testing.T) {
	frame := createTestFrame(t, "FrSt", []byte("alpha"))

	// Any single corrupted byte must surface as some parse failure
	for i := range frame {
		for _, delta := range []byte{0x01, 0xFF} {
			tampered := make([]byte, len(frame))
			copy(tampered, frame)
			tampered[i] ^= delta

			if _, err := Parse(tampered); err == nil {
				t.Errorf("Tampering byte %d with xor 0x%02x went undetected", i, delta)
			}
		}
	}
}

func TestChunkString(t *testing.T) {
	typ, err := ParseType("RuSt")
	if err != nil {
		t.Fatalf("ParseType failed: %v", err)
	}

	c := New(typ, []byte(testMessage))
	s := c.String()
	if !contains(s, "RuSt") || !contains(s, "42") {
		t.Errorf("String() missing expected content: %s", s)
	}
}

// Helper functions for tests

// createTestFrame builds a wire frame, computing the CRC independently of
// the package under test
func createTestFrame(t *testing.T, tag string, data []byte) []byte {
	t.Helper()

	if len(tag) != TypeSize {
		t.Fatalf("test tag %q must be %d bytes", tag, TypeSize)
	}

	frame := make([]byte, 0, MinFrameSize+len(data))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(data)))
	frame = append(frame, tag...)
	frame = append(frame, data...)

	crc := crc32.ChecksumIEEE(append([]byte(tag), data...))
	frame = binary.BigEndian.AppendUint32(frame, crc)
	return frame
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
