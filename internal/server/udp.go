package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/lethuzulu/pngsecret/internal/chunk"
	"github.com/lethuzulu/pngsecret/internal/config"
	"github.com/lethuzulu/pngsecret/internal/framing"
	"github.com/lethuzulu/pngsecret/internal/metrics"
)

// UDPServer is a fire-and-forget validation sink for chunk frames.
// Each datagram must carry exactly one serialized frame; the server parses
// it, counts the verdict, and sends no reply.
type UDPServer struct {
	conn    *net.UDPConn
	config  *config.ServerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Datagram processing
	datagramChan chan *incomingDatagram

	// Statistics
	datagramsReceived uint64
	framesValid       uint64
	framesInvalid     uint64
	datagramsDropped  uint64
	invalidByKind     map[string]uint64
	mu                sync.RWMutex
}

// incomingDatagram represents a received UDP datagram with metadata
type incomingDatagram struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// UDPStatistics represents UDP ingest performance metrics
type UDPStatistics struct {
	DatagramsReceived uint64            `json:"datagrams_received"`
	FramesValid       uint64            `json:"frames_valid"`
	FramesInvalid     uint64            `json:"frames_invalid"`
	DatagramsDropped  uint64            `json:"datagrams_dropped"`
	InvalidByKind     map[string]uint64 `json:"invalid_by_kind"`
	QueueSize         uint64            `json:"queue_size"`
	QueueCapacity     uint64            `json:"queue_capacity"`
}

// NewUDPServer creates a new UDP ingest instance
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPServer{
		config:        cfg,
		logger:        logger,
		metrics:       m,
		ctx:           ctx,
		cancel:        cancel,
		datagramChan:  make(chan *incomingDatagram, 1000), // Buffer for 1000 datagrams
		invalidByKind: make(map[string]uint64),
	}
}

// Start begins listening for UDP datagrams
func (s *UDPServer) Start() error {
	// Create UDP address
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.UDPHost, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	// Create UDP connection
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	// Set buffer size
	if err := s.conn.SetReadBuffer(s.config.UDPBufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.UDPBufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP ingest started",
		slog.String("address", addr.String()),
		slog.Int("buffer_size", s.config.UDPBufferSize),
		slog.Int("workers", s.config.UDPWorkers),
	)

	// Start frame validation workers
	for i := 0; i < s.config.UDPWorkers; i++ {
		s.wg.Add(1)
		go s.datagramProcessor(i)
	}

	// Start main receiver loop
	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Stop gracefully stops the UDP ingest
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP ingest...")

	// Cancel context to signal shutdown
	s.cancel()

	// Close UDP connection to unblock the receive loop
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	// Close datagram channel to signal workers to stop
	close(s.datagramChan)

	// Wait for all goroutines to finish
	s.wg.Wait()

	// Log final statistics
	s.mu.RLock()
	datagramsReceived := s.datagramsReceived
	framesValid := s.framesValid
	framesInvalid := s.framesInvalid
	s.mu.RUnlock()

	s.logger.Info("UDP ingest stopped",
		slog.Uint64("datagrams_received", datagramsReceived),
		slog.Uint64("frames_valid", framesValid),
		slog.Uint64("frames_invalid", framesInvalid),
	)

	return nil
}

// receiveLoop is the main datagram receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.wg.Done()

	buffer := make([]byte, s.config.UDPBufferSize)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Receive loop stopping due to context cancellation")
			return
		default:
			// Continue to receive datagrams
		}

		// Set read deadline to check for context cancellation periodically
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		// Read datagram
		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			// Check if this is a timeout (expected during graceful shutdown)
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue // Check context and try again
			}

			// Check if we're shutting down
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP datagram", slog.String("error", err.Error()))
				continue
			}
		}

		// Update statistics
		s.mu.Lock()
		s.datagramsReceived++
		s.mu.Unlock()
		s.metrics.RecordDatagramReceived()

		// Create datagram data copy (buffer will be reused)
		data := make([]byte, n)
		copy(data, buffer[:n])

		datagram := &incomingDatagram{
			data:       data,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		// Send to processing channel (non-blocking)
		select {
		case s.datagramChan <- datagram:
			// Datagram queued successfully
		default:
			// Channel full, drop datagram and log warning
			s.mu.Lock()
			s.datagramsDropped++
			s.mu.Unlock()

			s.logger.Warn("Datagram processing queue full, dropping datagram",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("datagram_size", n),
			)
		}
	}
}

// datagramProcessor validates frames from the datagram channel
func (s *UDPServer) datagramProcessor(workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Datagram processor started", slog.Int("worker_id", workerID))

	for datagram := range s.datagramChan {
		s.handleDatagram(datagram, workerID)
	}

	s.logger.Debug("Datagram processor stopped", slog.Int("worker_id", workerID))
}

// handleDatagram validates a single datagram as one exact chunk frame
func (s *UDPServer) handleDatagram(datagram *incomingDatagram, workerID int) {
	c, err := chunk.Parse(datagram.data)
	if err != nil {
		kind := parseErrorKind(err)
		s.recordInvalidFrame(kind)
		s.metrics.RecordChunkParseError(kind)

		s.logger.Debug("Datagram failed frame validation",
			slog.String("remote_addr", datagram.remoteAddr.String()),
			slog.Int("datagram_size", len(datagram.data)),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	// The datagram must hold the frame and nothing else
	expected := int64(chunk.HeaderSize) + int64(c.Length()) + int64(chunk.CRCSize)
	if int64(len(datagram.data)) != expected {
		s.recordInvalidFrame("trailing_data")

		s.logger.Debug("Datagram carries bytes beyond the frame",
			slog.String("remote_addr", datagram.remoteAddr.String()),
			slog.Int64("expected_size", expected),
			slog.Int("datagram_size", len(datagram.data)),
			slog.Int("worker_id", workerID),
		)
		return
	}

	s.mu.Lock()
	s.framesValid++
	s.mu.Unlock()
	s.metrics.RecordChunkParsed(len(c.Data()))

	s.logger.Debug("Datagram frame validated",
		slog.String("remote_addr", datagram.remoteAddr.String()),
		slog.String("type", c.Type().String()),
		slog.Uint64("length", uint64(c.Length())),
		slog.Int("worker_id", workerID),
	)
}

// recordInvalidFrame counts one invalid frame under its error kind
func (s *UDPServer) recordInvalidFrame(kind string) {
	s.mu.Lock()
	s.framesInvalid++
	s.invalidByKind[kind]++
	s.mu.Unlock()
	s.metrics.RecordValidationFailure()
}

// GetStatistics returns current ingest statistics
func (s *UDPServer) GetStatistics() UDPStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byKind := make(map[string]uint64, len(s.invalidByKind))
	for kind, count := range s.invalidByKind {
		byKind[kind] = count
	}

	return UDPStatistics{
		DatagramsReceived: s.datagramsReceived,
		FramesValid:       s.framesValid,
		FramesInvalid:     s.framesInvalid,
		DatagramsDropped:  s.datagramsDropped,
		InvalidByKind:     byKind,
		QueueSize:         uint64(len(s.datagramChan)),
		QueueCapacity:     uint64(cap(s.datagramChan)),
	}
}

// parseErrorKind maps a parse or framing error onto its metric label.
// Order matters: type errors are wrapped in ErrInvalidChunk.
func parseErrorKind(err error) string {
	switch {
	case errors.Is(err, chunk.ErrCRCMismatch):
		return "crc_mismatch"
	case errors.Is(err, chunk.ErrInvalidType):
		return "invalid_chunk_type"
	case errors.Is(err, framing.ErrTruncated):
		return "truncated"
	case errors.Is(err, framing.ErrDataTooLarge):
		return "data_too_large"
	case errors.Is(err, chunk.ErrInvalidChunk):
		return "invalid_chunk"
	default:
		return "other"
	}
}

// parseErrorKindFromMessage classifies an error already flattened to a string,
// as in a stored scan report
func parseErrorKindFromMessage(msg string) string {
	switch {
	case strings.Contains(msg, "crc mismatch"):
		return "crc_mismatch"
	case strings.Contains(msg, "invalid chunk type"):
		return "invalid_chunk_type"
	case strings.Contains(msg, "truncated"):
		return "truncated"
	case strings.Contains(msg, "exceeds limit"):
		return "data_too_large"
	case strings.Contains(msg, "invalid chunk"):
		return "invalid_chunk"
	default:
		return "other"
	}
}
