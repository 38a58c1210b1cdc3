package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lethuzulu/pngsecret/internal/chunk"
	"github.com/lethuzulu/pngsecret/internal/config"
	"github.com/lethuzulu/pngsecret/internal/export"
	"github.com/lethuzulu/pngsecret/internal/framing"
	"github.com/lethuzulu/pngsecret/internal/metrics"
	"github.com/lethuzulu/pngsecret/internal/scan"
	"github.com/lethuzulu/pngsecret/internal/secret"
)

// maxBodyBytes caps request bodies on every POST route
const maxBodyBytes = 256 << 20

// HTTPServer provides HTTP API endpoints for chunk operations and monitoring
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	scanner   *scan.Scanner
	manager   *scan.Manager
	udpServer *UDPServer
	exporter  *export.Exporter
	metrics   *metrics.Metrics

	// Server state
	startTime     time.Time
	requestsTotal uint64
	mu            sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics,
	scanner *scan.Scanner, manager *scan.Manager, udpServer *UDPServer, exporter *export.Exporter) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		scanner:   scanner,
		manager:   manager,
		udpServer: udpServer,
		exporter:  exporter,
		metrics:   m,
		startTime: time.Now(),
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.HTTPHost, cfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  cfg.Server.GetReadTimeoutDuration(),
		WriteTimeout: cfg.Server.GetWriteTimeoutDuration(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Chunk operations
	mux.HandleFunc("/scan", h.withMetrics("/scan", h.handleScan))
	mux.HandleFunc("/chunks/validate", h.withMetrics("/chunks/validate", h.handleValidate))

	// Secret message operations
	mux.HandleFunc("/secrets/embed", h.withMetrics("/secrets/embed", h.handleEmbed))
	mux.HandleFunc("/secrets/extract", h.withMetrics("/secrets/extract", h.handleExtract))
	mux.HandleFunc("/secrets/remove", h.withMetrics("/secrets/remove", h.handleRemove))

	// Scan report retrieval
	mux.HandleFunc("/scans", h.withMetrics("/scans", h.handleScans))
	mux.HandleFunc("/scans/", h.withMetrics("/scans/{id}", h.handleScanDetail))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the original handler
		handler(ww, r)

		// Record metrics
		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		h.mu.Lock()
		h.requestsTotal++
		h.mu.Unlock()
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleScan implements the POST /scan endpoint
func (h *HTTPServer) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	report := h.scanner.Scan(body)

	h.manager.Add(report)
	h.recordReportMetrics(report)

	if h.exporter != nil {
		go h.exportReport(report)
	}

	h.logger.Info("Stream scanned",
		slog.String("report_id", report.ID),
		slog.Bool("has_signature", report.HasSignature),
		slog.Int("total_chunks", report.TotalChunks),
		slog.Int("crc_mismatches", report.CRCMismatches),
		slog.Bool("complete", report.Complete),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// recordReportMetrics feeds one finished report into the Prometheus metrics
func (h *HTTPServer) recordReportMetrics(report *scan.Report) {
	h.metrics.RecordScan(report.Duration.Seconds(), report.TotalChunks)
	h.metrics.SetActiveReports(h.manager.Count())

	for _, info := range report.Chunks {
		if info.CRCOK {
			h.metrics.RecordChunkParsed(int(info.Length))
		}
	}
	if report.CRCMismatches > 0 {
		h.metrics.RecordChunkParseErrors("crc_mismatch", report.CRCMismatches)
	}
	if report.Error != "" {
		h.metrics.RecordChunkParseError(parseErrorKindFromMessage(report.Error))
	}
}

// exportReport delivers one report to the configured collector.
// The deadline covers the retry loop, not a single attempt.
func (h *HTTPServer) exportReport(report *scan.Report) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := h.exporter.Export(ctx, report); err != nil {
		h.metrics.RecordReportExportFailure()
		h.logger.Error("Failed to export scan report",
			slog.String("report_id", report.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	h.metrics.RecordReportExported()
	h.logger.Debug("Scan report exported",
		slog.String("report_id", report.ID),
	)
}

// validateResponse is the JSON body returned by POST /chunks/validate
type validateResponse struct {
	Valid            bool   `json:"valid"`
	Type             string `json:"type,omitempty"`
	Length           uint32 `json:"length"`
	CRC              uint32 `json:"crc"`
	Critical         bool   `json:"critical"`
	Public           bool   `json:"public"`
	ReservedBitValid bool   `json:"reserved_bit_valid"`
	SafeToCopy       bool   `json:"safe_to_copy"`
	TypeValid        bool   `json:"type_valid"`
	Error            string `json:"error,omitempty"`
	ErrorKind        string `json:"error_kind,omitempty"`
}

// handleValidate implements the POST /chunks/validate endpoint.
// The body must hold exactly one serialized chunk frame.
func (h *HTTPServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	resp := h.validateFrame(data)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// validateFrame parses one frame and builds the validation verdict
func (h *HTTPServer) validateFrame(data []byte) validateResponse {
	c, err := chunk.Parse(data)
	if err != nil {
		kind := parseErrorKind(err)
		h.metrics.RecordChunkParseError(kind)
		return validateResponse{
			Valid:     false,
			Error:     err.Error(),
			ErrorKind: kind,
		}
	}

	if int64(len(data)) != int64(chunk.HeaderSize)+int64(c.Length())+int64(chunk.CRCSize) {
		h.metrics.RecordChunkParseError("trailing_data")
		return validateResponse{
			Valid:     false,
			Error:     fmt.Sprintf("frame must be exact: expected %d bytes, got %d", int64(chunk.HeaderSize)+int64(c.Length())+int64(chunk.CRCSize), len(data)),
			ErrorKind: "trailing_data",
		}
	}

	h.metrics.RecordChunkParsed(len(c.Data()))

	typ := c.Type()
	return validateResponse{
		Valid:            true,
		Type:             typ.String(),
		Length:           c.Length(),
		CRC:              c.CRC(),
		Critical:         typ.IsCritical(),
		Public:           typ.IsPublic(),
		ReservedBitValid: typ.IsReservedBitValid(),
		SafeToCopy:       typ.IsSafeToCopy(),
		TypeValid:        typ.IsValid(),
	}
}

// handleEmbed implements the POST /secrets/embed endpoint
func (h *HTTPServer) handleEmbed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	typ, ok := h.chunkTypeParam(w, r)
	if !ok {
		return
	}

	message := r.Header.Get("X-Secret-Message")
	if message == "" {
		message = r.URL.Query().Get("message")
	}
	if message == "" {
		http.Error(w, "Secret message required (X-Secret-Message header or message query param)", http.StatusBadRequest)
		return
	}

	stream, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	out, err := secret.Embed(stream, typ, []byte(message))
	if err != nil {
		h.secretOperationError(w, "embed", err)
		return
	}

	h.metrics.RecordSecretOperation("embed")
	h.logger.Info("Secret message embedded",
		slog.String("type", typ.String()),
		slog.Int("message_bytes", len(message)),
		slog.Int("stream_bytes", len(out)),
	)

	w.Header().Set("Content-Type", "image/png")
	w.Write(out)
}

// handleExtract implements the POST /secrets/extract endpoint
func (h *HTTPServer) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	typ, ok := h.chunkTypeParam(w, r)
	if !ok {
		return
	}

	stream, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	c, err := secret.Extract(stream, typ)
	if err != nil {
		h.secretOperationError(w, "extract", err)
		return
	}

	message, err := c.Text()
	if err != nil {
		http.Error(w, "Chunk data is not valid UTF-8", http.StatusUnprocessableEntity)
		return
	}

	h.metrics.RecordSecretOperation("extract")

	response := map[string]interface{}{
		"type":    c.Type().String(),
		"message": message,
		"length":  c.Length(),
		"crc":     c.CRC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRemove implements the POST /secrets/remove endpoint
func (h *HTTPServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	typ, ok := h.chunkTypeParam(w, r)
	if !ok {
		return
	}

	stream, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	out, removed, err := secret.Remove(stream, typ)
	if err != nil {
		h.secretOperationError(w, "remove", err)
		return
	}

	h.metrics.RecordSecretOperation("remove")
	h.logger.Info("Secret chunk removed",
		slog.String("type", removed.Type().String()),
		slog.Uint64("length", uint64(removed.Length())),
	)

	w.Header().Set("Content-Type", "image/png")
	w.Write(out)
}

// chunkTypeParam reads and parses the required type query parameter
func (h *HTTPServer) chunkTypeParam(w http.ResponseWriter, r *http.Request) (chunk.Type, bool) {
	typeStr := r.URL.Query().Get("type")
	if typeStr == "" {
		http.Error(w, "Chunk type required (type query param)", http.StatusBadRequest)
		return chunk.Type{}, false
	}

	typ, err := chunk.ParseType(typeStr)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid chunk type: %v", err), http.StatusBadRequest)
		return chunk.Type{}, false
	}

	return typ, true
}

// secretOperationError maps secret package errors onto HTTP status codes
func (h *HTTPServer) secretOperationError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, secret.ErrChunkNotFound):
		http.Error(w, "Chunk not found", http.StatusNotFound)
	case errors.Is(err, framing.ErrBadSignature):
		http.Error(w, "Stream does not start with the PNG signature", http.StatusBadRequest)
	default:
		http.Error(w, fmt.Sprintf("Operation failed: %v", err), http.StatusBadRequest)
	}

	h.logger.Warn("Secret operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

// handleScans implements the GET /scans endpoint
func (h *HTTPServer) handleScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reports := h.manager.List()

	response := map[string]interface{}{
		"total_reports": len(reports),
		"timestamp":     time.Now().UTC(),
		"reports":       reports,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleScanDetail implements the GET /scans/{id} endpoint
func (h *HTTPServer) handleScanDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Extract report ID from URL path
	reportID := r.URL.Path[len("/scans/"):]
	if reportID == "" {
		http.Error(w, "Report ID required", http.StatusBadRequest)
		return
	}

	report, exists := h.manager.Get(reportID)
	if !exists {
		http.Error(w, "Report not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	udpStats := h.udpServer.GetStatistics()

	components := map[string]interface{}{
		"udp_server": map[string]interface{}{
			"status":             "running",
			"datagrams_received": udpStats.DatagramsReceived,
			"frames_valid":       udpStats.FramesValid,
			"frames_invalid":     udpStats.FramesInvalid,
			"queue_size":         udpStats.QueueSize,
		},
		"report_manager": map[string]interface{}{
			"status":           "running",
			"retained_reports": h.manager.Count(),
		},
	}

	if h.exporter != nil {
		exportStats := h.exporter.GetStats()
		components["export"] = map[string]interface{}{
			"status":         "running",
			"total_exports":  exportStats.TotalExports,
			"success_rate":   exportStats.SuccessRate,
			"active_exports": exportStats.ActiveExports,
		}
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "pngsecret",
			"version": "1.0.0",
		},
		"components": components,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"http_host":       h.config.Server.HTTPHost,
			"http_port":       h.config.Server.HTTPPort,
			"udp_host":        h.config.Server.UDPHost,
			"udp_port":        h.config.Server.UDPPort,
			"udp_workers":     h.config.Server.UDPWorkers,
			"udp_buffer_size": h.config.Server.UDPBufferSize,
		},
		"scan": map[string]interface{}{
			"max_chunk_bytes":    h.config.Scan.MaxChunkBytes,
			"text_preview_bytes": h.config.Scan.TextPreviewBytes,
			"report_ttl_seconds": h.config.Scan.ReportTTLSeconds,
			"max_reports":        h.config.Scan.MaxReports,
		},
		"export": map[string]interface{}{
			"enabled":         h.config.Export.Enabled,
			"endpoint":        h.config.Export.Endpoint,
			"timeout_seconds": h.config.Export.TimeoutSeconds,
			"max_retries":     h.config.Export.MaxRetries,
			"max_concurrent":  h.config.Export.MaxConcurrent,
			// Note: auth token is intentionally omitted for security
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	udpStats := h.udpServer.GetStatistics()
	uptime := time.Since(h.startTime)

	h.mu.RLock()
	requestsTotal := h.requestsTotal
	h.mu.RUnlock()

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"http": map[string]interface{}{
			"requests_total": requestsTotal,
		},
		"udp": udpStats,
		"reports": map[string]interface{}{
			"retained_count": h.manager.Count(),
		},
	}

	if h.exporter != nil {
		stats["export"] = h.exporter.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "PNG Chunk Inspection Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                 "API documentation",
			"GET /health":           "Service health check",
			"POST /scan":            "Scan a PNG or bare chunk stream, returns the report",
			"POST /chunks/validate": "Validate exactly one serialized chunk frame",
			"POST /secrets/embed":   "Embed a secret message chunk (type query param)",
			"POST /secrets/extract": "Extract a secret message chunk (type query param)",
			"POST /secrets/remove":  "Remove a secret message chunk (type query param)",
			"GET /scans":            "List retained scan reports",
			"GET /scans/{id}":       "Get one scan report",
			"GET /config":           "Get service configuration",
			"GET /stats":            "Get service statistics",
			"GET /metrics":          "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
