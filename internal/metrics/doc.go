// Package metrics defines the Prometheus instruments of the live transcription
// pipeline: capture, segmentation, conversion, transcription, annotation and
// the operator HTTP API.
package metrics
