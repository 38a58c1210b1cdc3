package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lethuzulu/pngsecret/internal/scan"
)

// Exporter provides HTTP client functionality for delivering scan reports
type Exporter struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore

	// Statistics
	totalExports   uint64
	successExports uint64
	failedExports  uint64
	totalRetries   uint64
	avgExportTime  time.Duration

	mu sync.RWMutex
}

// Config contains export client configuration
type Config struct {
	Endpoint      string
	AuthToken     string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

// ExporterStats represents export client statistics
type ExporterStats struct {
	TotalExports   uint64        `json:"total_exports"`
	SuccessExports uint64        `json:"success_exports"`
	FailedExports  uint64        `json:"failed_exports"`
	SuccessRate    float64       `json:"success_rate"`
	TotalRetries   uint64        `json:"total_retries"`
	AvgExportTime  time.Duration `json:"avg_export_time"`
	ActiveExports  int           `json:"active_exports"`
}

// reportEnvelope is the JSON body posted to the collector
type reportEnvelope struct {
	SentAt time.Time    `json:"sent_at"`
	Report *scan.Report `json:"report"`
}

// NewExporter creates a new report export client
func NewExporter(config Config) (*Exporter, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	// Create semaphore for rate limiting
	semaphore := make(chan struct{}, config.MaxConcurrent)

	return &Exporter{
		config:     config,
		httpClient: httpClient,
		semaphore:  semaphore,
	}, nil
}

// Export delivers one scan report to the collector
func (e *Exporter) Export(ctx context.Context, report *scan.Report) error {
	// Acquire semaphore for rate limiting
	select {
	case e.semaphore <- struct{}{}:
		defer func() { <-e.semaphore }()
	case <-ctx.Done():
		return ctx.Err()
	}

	body, err := json.Marshal(reportEnvelope{
		SentAt: time.Now(),
		Report: report,
	})
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	startTime := time.Now()
	e.incrementTotalExports()

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			e.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := e.doExport(ctx, body)
		if err == nil {
			e.incrementSuccessExports()
			e.updateAvgExportTime(time.Since(startTime))
			return nil
		}

		lastErr = err

		// Check if error is retryable
		if !e.isRetryableError(err) {
			break
		}
	}

	e.incrementFailedExports()
	return fmt.Errorf("export failed after %d attempts: %w", e.config.MaxRetries+1, lastErr)
}

// doExport performs a single HTTP request to the collector
func (e *Exporter) doExport(ctx context.Context, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "pngsecret/1.0")
	if e.config.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.config.AuthToken)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// isRetryableError determines if an error is retryable
func (e *Exporter) isRetryableError(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}

	errStr := err.Error()

	// 5xx server errors are retryable
	if strings.Contains(errStr, "HTTP error 5") {
		return true
	}

	// Rate limiting (429) is retryable
	if strings.Contains(errStr, "HTTP error 429") {
		return true
	}

	// Network/connection errors are typically retryable
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused") {
		return true
	}

	return false
}

// Statistics methods
func (e *Exporter) incrementTotalExports() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalExports++
}

func (e *Exporter) incrementSuccessExports() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.successExports++
}

func (e *Exporter) incrementFailedExports() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedExports++
}

func (e *Exporter) incrementTotalRetries() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalRetries++
}

func (e *Exporter) updateAvgExportTime(exportTime time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Simple moving average
	if e.avgExportTime == 0 {
		e.avgExportTime = exportTime
	} else {
		e.avgExportTime = (e.avgExportTime + exportTime) / 2
	}
}

// GetStats returns current export statistics
func (e *Exporter) GetStats() ExporterStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	successRate := float64(0)
	if e.totalExports > 0 {
		successRate = float64(e.successExports) / float64(e.totalExports) * 100
	}

	activeExports := len(e.semaphore)

	return ExporterStats{
		TotalExports:   e.totalExports,
		SuccessExports: e.successExports,
		FailedExports:  e.failedExports,
		SuccessRate:    successRate,
		TotalRetries:   e.totalRetries,
		AvgExportTime:  e.avgExportTime,
		ActiveExports:  activeExports,
	}
}

// Close waits for all active exports to complete
func (e *Exporter) Close() error {
	for i := 0; i < e.config.MaxConcurrent; i++ {
		e.semaphore <- struct{}{}
	}

	return nil
}
