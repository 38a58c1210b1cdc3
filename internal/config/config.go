package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Scan    ScanConfig    `yaml:"scan"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP API and UDP ingest configuration
type ServerConfig struct {
	HTTPHost            string `yaml:"http_host"`
	HTTPPort            int    `yaml:"http_port"`
	UDPHost             string `yaml:"udp_host"`
	UDPPort             int    `yaml:"udp_port"`
	UDPWorkers          int    `yaml:"udp_workers"`
	UDPBufferSize       int    `yaml:"udp_buffer_size"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// ScanConfig contains chunk scanning and report retention parameters
type ScanConfig struct {
	MaxChunkBytes    int `yaml:"max_chunk_bytes"`    // 0 uses the framing default
	TextPreviewBytes int `yaml:"text_preview_bytes"` // 0 uses the scanner default
	ReportTTLSeconds int `yaml:"report_ttl_seconds"`
	MaxReports       int `yaml:"max_reports"` // 0 means unbounded
}

// ExportConfig contains report export configuration
type ExportConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	AuthToken      string `yaml:"auth_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// maxChunkDataBytes mirrors the framing layer's hard cap on declared chunk
// data length
const maxChunkDataBytes = 1<<31 - 1

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns the configuration the service runs with when no
// config file is present
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPHost:            "0.0.0.0",
			HTTPPort:            8080,
			UDPHost:             "0.0.0.0",
			UDPPort:             9333,
			UDPWorkers:          4,
			UDPBufferSize:       65536,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 30,
		},
		Scan: ScanConfig{
			MaxChunkBytes:    0,
			TextPreviewBytes: 64,
			ReportTTLSeconds: 3600,
			MaxReports:       1000,
		},
		Export: ExportConfig{
			Enabled:        false,
			TimeoutSeconds: 30,
			MaxRetries:     3,
			MaxConcurrent:  4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Scan.Validate(); err != nil {
		return fmt.Errorf("scan config: %w", err)
	}

	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", s.HTTPPort)
	}

	if s.HTTPHost == "" {
		return fmt.Errorf("http_host cannot be empty")
	}

	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.UDPHost == "" {
		return fmt.Errorf("udp_host cannot be empty")
	}

	if s.UDPWorkers < 1 {
		return fmt.Errorf("udp_workers must be at least 1, got %d", s.UDPWorkers)
	}

	if s.UDPBufferSize < 1024 {
		return fmt.Errorf("udp_buffer_size must be at least 1024 bytes, got %d", s.UDPBufferSize)
	}

	if s.ReadTimeoutSeconds < 1 {
		return fmt.Errorf("read_timeout_seconds must be at least 1, got %d", s.ReadTimeoutSeconds)
	}

	if s.WriteTimeoutSeconds < 1 {
		return fmt.Errorf("write_timeout_seconds must be at least 1, got %d", s.WriteTimeoutSeconds)
	}

	return nil
}

// Validate validates scan configuration
func (s *ScanConfig) Validate() error {
	if s.MaxChunkBytes < 0 || s.MaxChunkBytes > maxChunkDataBytes {
		return fmt.Errorf("max_chunk_bytes must be between 0 and %d, got %d", maxChunkDataBytes, s.MaxChunkBytes)
	}

	if s.TextPreviewBytes < 0 {
		return fmt.Errorf("text_preview_bytes cannot be negative, got %d", s.TextPreviewBytes)
	}

	if s.ReportTTLSeconds < 1 {
		return fmt.Errorf("report_ttl_seconds must be at least 1, got %d", s.ReportTTLSeconds)
	}

	if s.MaxReports < 0 {
		return fmt.Errorf("max_reports cannot be negative, got %d", s.MaxReports)
	}

	return nil
}

// Validate validates export configuration
func (e *ExportConfig) Validate() error {
	if !e.Enabled {
		return nil
	}

	if e.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty when export is enabled")
	}

	if e.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout_seconds must be at least 1, got %d", e.TimeoutSeconds)
	}

	if e.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", e.MaxRetries)
	}

	if e.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", e.MaxConcurrent)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeoutDuration returns the HTTP read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// GetWriteTimeoutDuration returns the HTTP write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// GetReportTTLDuration returns the report retention TTL as a time.Duration
func (s *ScanConfig) GetReportTTLDuration() time.Duration {
	return time.Duration(s.ReportTTLSeconds) * time.Second
}

// GetTimeoutDuration returns the export request timeout as a time.Duration
func (e *ExportConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}
