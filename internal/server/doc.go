// Package server implements the HTTP API: health, configuration, pipeline
// statistics, recent events, and Prometheus metrics.
package server
