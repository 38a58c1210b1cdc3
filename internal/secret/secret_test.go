package secret

import (
	"bytes"
	"errors"
	"testing"

	"github.com/lethuzulu/pngsecret/internal/chunk"
	"github.com/lethuzulu/pngsecret/internal/framing"
)

const testMessage = "This is where your secret message will be!"

func TestEmbedExtractRoundTrip(t *testing.T) {
	stream := createTestStream(t)
	typ := parseType(t, "ruSt")

	embedded, err := Embed(stream, typ, []byte(testMessage))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(embedded) != len(stream)+chunk.MinFrameSize+len(testMessage) {
		t.Errorf("Embedded stream is %d bytes, expected %d",
			len(embedded), len(stream)+chunk.MinFrameSize+len(testMessage))
	}
	if !bytes.HasPrefix(embedded, stream) {
		t.Errorf("Embed did not preserve the original stream prefix")
	}

	c, err := Extract(embedded, typ)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	text, err := c.Text()
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if text != testMessage {
		t.Errorf("Extracted %q, expected %q", text, testMessage)
	}
}

func TestExtractMissingType(t *testing.T) {
	stream := createTestStream(t)

	_, err := Extract(stream, parseType(t, "ruSt"))
	if err == nil {
		t.Fatalf("Expected error but got none")
	}
	if !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("Expected ErrChunkNotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	stream := createTestStream(t)
	typ := parseType(t, "ruSt")

	embedded, err := Embed(stream, typ, []byte(testMessage))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	rewritten, removed, err := Remove(embedded, typ)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed.Type() != typ {
		t.Errorf("Removed chunk has type %s, expected %s", removed.Type(), typ)
	}

	// Embed appended at the end, so removal restores the exact original
	if !bytes.Equal(rewritten, stream) {
		t.Errorf("Remove did not restore the original stream")
	}

	_, _, err = Remove(stream, typ)
	if err == nil {
		t.Fatalf("Expected error for missing type but got none")
	}
	if !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("Expected ErrChunkNotFound, got %v", err)
	}
}

func TestRemoveFirstMatchOnly(t *testing.T) {
	typ := parseType(t, "ruSt")

	stream, err := Embed(createTestStream(t), typ, []byte("first"))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	stream, err = Embed(stream, typ, []byte("second"))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	rewritten, removed, err := Remove(stream, typ)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if string(removed.Data()) != "first" {
		t.Errorf("Removed %q, expected the first match %q", removed.Data(), "first")
	}

	remaining, err := Extract(rewritten, typ)
	if err != nil {
		t.Fatalf("Extract after Remove failed: %v", err)
	}
	if string(remaining.Data()) != "second" {
		t.Errorf("Remaining chunk holds %q, expected %q", remaining.Data(), "second")
	}
}

func TestList(t *testing.T) {
	stream := createTestStream(t)

	chunks, err := List(stream)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("List returned %d chunks, expected 2", len(chunks))
	}
	if chunks[0].Type().String() != "IHDR" || chunks[1].Type().String() != "IEND" {
		t.Errorf("List order wrong: %s, %s", chunks[0].Type(), chunks[1].Type())
	}

	embedded, err := Embed(stream, parseType(t, "ruSt"), []byte(testMessage))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	chunks, err = List(embedded)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Errorf("List returned %d chunks after embed, expected 3", len(chunks))
	}
}

func TestBadSignature(t *testing.T) {
	notPNG := []byte("definitely not a png stream")
	typ := parseType(t, "ruSt")

	if _, err := Embed(notPNG, typ, []byte("x")); !errors.Is(err, framing.ErrBadSignature) {
		t.Errorf("Embed: expected ErrBadSignature, got %v", err)
	}
	if _, err := Extract(notPNG, typ); !errors.Is(err, framing.ErrBadSignature) {
		t.Errorf("Extract: expected ErrBadSignature, got %v", err)
	}
	if _, _, err := Remove(notPNG, typ); !errors.Is(err, framing.ErrBadSignature) {
		t.Errorf("Remove: expected ErrBadSignature, got %v", err)
	}
	if _, err := List(notPNG); !errors.Is(err, framing.ErrBadSignature) {
		t.Errorf("List: expected ErrBadSignature, got %v", err)
	}
}

// Helper functions for tests

// createTestStream builds a minimal stream: signature, one IHDR chunk, one
// IEND chunk
func createTestStream(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := framing.WriteSignature(&buf); err != nil {
		t.Fatalf("WriteSignature failed: %v", err)
	}

	enc := framing.NewEncoder(&buf)
	for _, fixture := range []struct {
		tag  string
		data []byte
	}{
		{"IHDR", []byte{0x00, 0x00, 0x00, 0x01}},
		{"IEND", nil},
	} {
		if err := enc.Encode(chunk.New(parseType(t, fixture.tag), fixture.data)); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}

	return buf.Bytes()
}

func parseType(t *testing.T, tag string) chunk.Type {
	t.Helper()

	typ, err := chunk.ParseType(tag)
	if err != nil {
		t.Fatalf("ParseType(%q) failed: %v", tag, err)
	}
	return typ
}
