package scan

import (
	"bufio"
	"errors"
	"io"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lethuzulu/pngsecret/internal/chunk"
	"github.com/lethuzulu/pngsecret/internal/framing"
)

// DefaultTextPreviewBytes caps the text preview stored per chunk
const DefaultTextPreviewBytes = 64

// ChunkInfo describes one chunk frame encountered during a scan
type ChunkInfo struct {
	Offset           int64  `json:"offset"`
	Type             string `json:"type,omitempty"`
	Length           uint32 `json:"length"`
	CRC              uint32 `json:"crc"`
	Critical         bool   `json:"critical"`
	Public           bool   `json:"public"`
	ReservedBitValid bool   `json:"reserved_bit_valid"`
	SafeToCopy       bool   `json:"safe_to_copy"`
	Valid            bool   `json:"valid"`
	CRCOK            bool   `json:"crc_ok"`
	Text             string `json:"text,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Report is the outcome of scanning one stream
type Report struct {
	ID            string        `json:"id"`
	CreatedAt     time.Time     `json:"created_at"`
	Duration      time.Duration `json:"duration"`
	HasSignature  bool          `json:"has_signature"`
	TotalChunks   int           `json:"total_chunks"`
	Chunks        []ChunkInfo   `json:"chunks"`
	CRCMismatches int           `json:"crc_mismatches"`
	Error         string        `json:"error,omitempty"`
	Complete      bool          `json:"complete"`
}

// Scanner walks chunk streams and produces Reports
type Scanner struct {
	limits           framing.Limits
	textPreviewBytes int
}

// NewScanner builds a Scanner with the given frame limits and text preview
// size
func NewScanner(limits framing.Limits, textPreviewBytes int) *Scanner {
	if textPreviewBytes <= 0 {
		textPreviewBytes = DefaultTextPreviewBytes
	}
	return &Scanner{
		limits:           limits,
		textPreviewBytes: textPreviewBytes,
	}
}

// Scan reads every chunk frame in r and reports classification and
// integrity per chunk.
// A CRC mismatch is recorded against its frame and the scan continues at
// the next boundary, since the frame was fully consumed. A structural
// failure (bad tag, truncation, oversize length) ends the scan because the
// boundary is lost. A stream without the PNG signature is scanned from
// offset 0 and noted in the report.
func (s *Scanner) Scan(r io.Reader) *Report {
	started := time.Now()
	report := &Report{
		ID:        uuid.NewString(),
		CreatedAt: started,
	}

	br := bufio.NewReader(r)
	var sigOffset int64
	if sig, err := br.Peek(framing.SignatureSize); err == nil && string(sig) == framing.Signature {
		br.Discard(framing.SignatureSize)
		report.HasSignature = true
		sigOffset = framing.SignatureSize
	}

	dec := framing.NewDecoder(br, s.limits)
	for {
		// Report offsets are absolute stream positions
		offset := sigOffset + dec.Offset()
		c, err := dec.Next()
		if err == io.EOF {
			report.Complete = true
			break
		}
		if err != nil {
			if errors.Is(err, chunk.ErrCRCMismatch) {
				report.Chunks = append(report.Chunks, ChunkInfo{
					Offset: offset,
					Error:  err.Error(),
				})
				report.TotalChunks++
				report.CRCMismatches++
				continue
			}
			report.Error = err.Error()
			break
		}

		report.Chunks = append(report.Chunks, s.describe(c, offset))
		report.TotalChunks++
	}

	report.Duration = time.Since(started)
	return report
}

// describe builds the ChunkInfo record for one decoded chunk
func (s *Scanner) describe(c *chunk.Chunk, offset int64) ChunkInfo {
	typ := c.Type()
	info := ChunkInfo{
		Offset:           offset,
		Type:             typ.String(),
		Length:           c.Length(),
		CRC:              c.CRC(),
		Critical:         typ.IsCritical(),
		Public:           typ.IsPublic(),
		ReservedBitValid: typ.IsReservedBitValid(),
		SafeToCopy:       typ.IsSafeToCopy(),
		Valid:            typ.IsValid(),
		CRCOK:            true,
	}

	if text, err := c.Text(); err == nil && isPrintableText(text) {
		info.Text = truncateText(text, s.textPreviewBytes)
	}
	return info
}

// isPrintableText reports whether every rune in s is printable or whitespace
func isPrintableText(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// truncateText cuts text to at most max bytes without splitting a rune
func truncateText(text string, max int) string {
	if len(text) <= max {
		return text
	}
	for max > 0 && !utf8.ValidString(text[:max]) {
		max--
	}
	return text[:max]
}
