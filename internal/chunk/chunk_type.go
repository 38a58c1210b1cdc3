package chunk

import "fmt"

// TypeSize is the byte width of a chunk type tag.
const TypeSize = 4

// Type represents the 4-byte chunk type tag.
// Every byte must be an ASCII letter; bit 5 of each byte (the letter case)
// carries one classification bit:
//
//	byte 0: uppercase = critical, lowercase = ancillary
//	byte 1: uppercase = public, lowercase = private
//	byte 2: uppercase = reserved bit valid (required for conformance)
//	byte 3: lowercase = safe to copy
//
// Type is a comparable value type; two tags are equal iff their raw bytes
// are identical, case included.
type Type struct {
	tag [TypeSize]byte
}

// NewType builds a Type from 4 raw bytes
func NewType(tag [TypeSize]byte) (Type, error) {
	for i, b := range tag {
		if !isASCIILetter(b) {
			return Type{}, fmt.Errorf("%w: byte %d is 0x%02x, want an ASCII letter", ErrInvalidType, i, b)
		}
	}
	return Type{tag: tag}, nil
}

// ParseType builds a Type from a string that must encode to exactly 4 bytes
func ParseType(s string) (Type, error) {
	if len(s) != TypeSize {
		return Type{}, fmt.Errorf("%w: tag %q is %d bytes, want %d", ErrInvalidType, s, len(s), TypeSize)
	}

	var tag [TypeSize]byte
	copy(tag[:], s)
	return NewType(tag)
}

// Bytes returns the raw 4-byte tag, case preserved
func (t Type) Bytes() [TypeSize]byte {
	return t.tag
}

// IsCritical reports whether the chunk is required for correct
// interpretation of the stream (byte 0 uppercase)
func (t Type) IsCritical() bool {
	return isUpper(t.tag[0])
}

// IsPublic reports whether the type belongs to the public registry rather
// than being vendor-specific (byte 1 uppercase)
func (t Type) IsPublic() bool {
	return isUpper(t.tag[1])
}

// IsReservedBitValid reports whether the reserved bit conforms to the
// format (byte 2 uppercase)
func (t Type) IsReservedBitValid() bool {
	return isUpper(t.tag[2])
}

// IsSafeToCopy reports whether an editor that does not understand the type
// may copy the chunk unmodified (byte 3 lowercase)
func (t Type) IsSafeToCopy() bool {
	return !isUpper(t.tag[3])
}

// IsValid reports whether the tag is conformant: 4 ASCII letters with the
// reserved bit valid
func (t Type) IsValid() bool {
	for _, b := range t.tag {
		if !isASCIILetter(b) {
			return false
		}
	}
	return t.IsReservedBitValid()
}

// String returns the tag as text
func (t Type) String() string {
	return string(t.tag[:])
}

// isASCIILetter checks for A-Z or a-z
func isASCIILetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// isUpper checks bit 5, the case bit, of an ASCII letter
func isUpper(b byte) bool {
	return b&0x20 == 0
}
