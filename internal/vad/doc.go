// Package vad classifies short mono PCM-16 frames as speech or silence.
// The classifier is energy based: the RMS of a frame is compared against a
// threshold selected by an aggressiveness level from 0 (least aggressive
// about filtering out non-speech) to 3 (most aggressive).
package vad
