// Package convert turns captured PCM of any supported rate and channel layout
// into the mono 16-bit PCM the transcription engines expect.
//
// Two backends are provided: FFmpeg pipes the buffer through an external
// ffmpeg process, Native downmixes and resamples in process. Pool keeps a fixed
// set of long-lived workers in front of either backend.
package convert
