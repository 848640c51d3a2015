// Package annotate sends operator selections to a chat completion model and
// writes the answers back into the transcript.
//
// At most one annotation runs at a time. In blocking mode the answer is
// appended as a single segment. In streaming mode the answer is written into a
// transcript region as it arrives, and transcription appended meanwhile is held
// back until the region closes.
package annotate
