// Package framing locates and rewrites chunk frames within a PNG-style byte
// stream. It reads the 8-byte file signature, decodes successive frames with
// configurable size limits, and re-encodes chunks verbatim. It carries no
// ordering or assembly policy; frames pass through in stream order.
package framing
