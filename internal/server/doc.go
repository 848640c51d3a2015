// Package server exposes the running session over HTTP: monitoring endpoints,
// operator commands for selection and annotation, Prometheus metrics and a
// WebSocket feed of transcript updates.
package server
