// Package config provides configuration loading and validation for the
// inaudible-frequency monitoring service. It handles YAML-based
// configuration with per-section validation and sensible defaults.
package config
