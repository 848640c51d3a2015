// Package sentence splits the transcript into sentence spans and tracks the
// operator's selection over them.
package sentence

import (
	"errors"
	"fmt"
	"sync"
	"unicode"
	"unicode/utf8"
)

// ErrUnknownCommand is returned for navigation commands Index does not know.
var ErrUnknownCommand = errors.New("unknown selection command")

// Span is a half-open byte range [Start, End) of the transcript.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Empty reports whether the span selects nothing.
func (s Span) Empty() bool {
	return s.Start == s.End
}

// Reindex splits text after '.', '?' or '!' followed by whitespace. The
// whitespace run belongs to the preceding span, so the spans tile text.
func Reindex(text string) []Span {
	var spans []Span
	start := 0

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '?' && r != '!' {
			continue
		}

		end := i
		for end < len(text) {
			ws, wsSize := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(ws) {
				break
			}
			end += wsSize
		}
		if end == i {
			continue
		}

		spans = append(spans, Span{Start: start, End: end})
		start = end
		i = end
	}

	if start < len(text) {
		spans = append(spans, Span{Start: start, End: len(text)})
	}
	return spans
}

// Command is a selection navigation command.
type Command string

const (
	ExtendLeft     Command = "extend-left"
	ShrinkRight    Command = "shrink-right"
	SelectPrevious Command = "select-previous"
	SelectNext     Command = "select-next"
	Clear          Command = "clear"
)

// Index holds the current spans and selection. It is safe for concurrent use.
type Index struct {
	mu        sync.RWMutex
	spans     []Span
	selection Span
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Reindex recomputes the spans for text and clears the selection.
func (x *Index) Reindex(text string) {
	spans := Reindex(text)

	x.mu.Lock()
	defer x.mu.Unlock()
	x.spans = spans
	x.selection = Span{}
}

// Spans returns a copy of the current spans.
func (x *Index) Spans() []Span {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]Span, len(x.spans))
	copy(out, x.spans)
	return out
}

// Selection returns the current selection.
func (x *Index) Selection() Span {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.selection
}

// Apply runs a navigation command and returns the new selection.
func (x *Index) Apply(cmd Command) (Span, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	sel, spans := x.selection, x.spans
	switch cmd {
	case ExtendLeft:
		if sel.Empty() {
			sel = last(spans)
		} else if i := startIndex(spans, sel.Start); i > 0 {
			sel.Start = spans[i-1].Start
		}
	case ShrinkRight:
		if !sel.Empty() {
			if i := endIndex(spans, sel.End); i >= 0 {
				if spans[i].Start <= sel.Start {
					sel = Span{}
				} else {
					sel.End = spans[i].Start
				}
			}
		}
	case SelectPrevious:
		if sel.Empty() {
			sel = last(spans)
		} else if i := startIndex(spans, sel.Start); i > 0 {
			sel = spans[i-1]
		}
	case SelectNext:
		if !sel.Empty() {
			if i := endIndex(spans, sel.End); i >= 0 {
				if i < len(spans)-1 {
					sel = spans[i+1]
				} else {
					sel = Span{}
				}
			}
		}
	case Clear:
		sel = Span{}
	default:
		return x.selection, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	x.selection = sel
	return sel, nil
}

func last(spans []Span) Span {
	if len(spans) == 0 {
		return Span{}
	}
	return spans[len(spans)-1]
}

func startIndex(spans []Span, start int) int {
	for i, s := range spans {
		if s.Start == start {
			return i
		}
	}
	return -1
}

func endIndex(spans []Span, end int) int {
	for i, s := range spans {
		if s.End == end {
			return i
		}
	}
	return -1
}
