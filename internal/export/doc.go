// Package export implements the HTTP client that delivers scan reports to an
// external collector. It sends JSON-encoded reports, implements retry logic
// with exponential backoff, and manages rate limiting.
package export
