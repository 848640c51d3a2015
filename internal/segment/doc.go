// Package segment cuts the captured frame stream into utterance chunks.
//
// The Engine accumulates frames until either enough audio has been collected
// and the speaker has paused for long enough, or a hard ceiling is reached.
// Flushed chunks are handed to the transcription stage through an unbounded
// queue so capture never waits on transcription.
package segment
