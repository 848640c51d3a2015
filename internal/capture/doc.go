// Package capture provides the audio sources of the pipeline. A Source yields
// fixed-duration frames of interleaved PCM-16 at its native format.
//
// Command spawns a capture program (ffmpeg, parec, arecord, ...) and reads its
// stdout, Reader wraps any io.Reader, and UDP receives sequenced datagrams and
// restores their order before slicing them into frames.
package capture
