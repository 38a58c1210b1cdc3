// Package config provides configuration loading and validation for the PNG
// chunk inspection service. It handles YAML-based configuration with struct
// validation covering the server, scan, export, and logging sections.
package config
