// Package scan produces per-chunk classification and integrity reports over
// raw streams and retains them for later retrieval. The scanner walks every
// frame once, recording classification bits and CRC results; the manager
// keeps finished reports with TTL-based expiry and bounded retention.
package scan
