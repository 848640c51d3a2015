// Package audio holds the PCM primitives shared by the capture, segmentation and
// transcription stages: frame validation for the VAD, stereo downmix, sample
// conversion and normalisation, and WAV encoding for transcription backends and
// on-disk recordings.
package audio
