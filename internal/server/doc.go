// Package server implements the HTTP API for scanning streams and handling
// secret message operations, and the UDP ingest for validating chunk frames.
// It handles concurrent datagram processing and provides monitoring and
// management endpoints.
package server
