// Package session wires capture, segmentation, transcription, the sentence
// index and annotation into one running pipeline and owns their shared state.
package session
