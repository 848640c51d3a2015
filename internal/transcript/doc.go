// Package transcript holds the single growing text of a session.
//
// Text is only ever appended: whole segments by the transcription worker and
// by blocking annotations, incrementally through a Region by streaming
// annotations. While a Region is open, transcription appends are held back and
// committed in order when it closes, so an annotation is never split by
// transcribed text. Every change is published as an Event on the display queue
// in the order it was applied.
package transcript
