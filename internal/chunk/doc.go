// Package chunk implements the PNG-style chunk codec: parsing, validation,
// and serialization of length-prefixed, type-tagged, CRC-checked frames.
// It classifies type tags through the letter-case bits of the 4-byte tag
// and enforces frame integrity against the stored CRC.
package chunk
