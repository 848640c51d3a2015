package transcript

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/metrics"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/queue"
)

var (
	// ErrRegionOpen is returned when a streaming region is already open.
	ErrRegionOpen = errors.New("transcript region already open")

	// ErrRegionClosed is returned when writing to a closed region.
	ErrRegionClosed = errors.New("transcript region closed")
)

// Kind identifies who produced a segment.
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindAnnotation    Kind = "annotation"
)

// Segment is an append-only range of the transcript. Start and End are byte
// offsets into the text.
type Segment struct {
	ID         int    `json:"id"`
	Kind       Kind   `json:"kind"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	InProgress bool   `json:"in_progress"`
	Tag        string `json:"tag,omitempty"`
}

// EventType describes a transcript change.
type EventType string

const (
	EventAppend      EventType = "append"
	EventRegionOpen  EventType = "region.open"
	EventRegionDelta EventType = "region.delta"
	EventRegionClose EventType = "region.close"
)

// Event is published on the display queue for every change.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Kind      Kind      `json:"kind"`
	SegmentID int       `json:"segment_id"`
	Text      string    `json:"text"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	Tag       string    `json:"tag,omitempty"`
	Length    int       `json:"length"`
	Time      time.Time `json:"time"`
}

// Transcript is the shared text log. All methods are safe for concurrent use.
type Transcript struct {
	mu       sync.Mutex
	text     strings.Builder
	segments []Segment
	region   *Region
	deferred []string
	seq      uint64

	events  *queue.Unbounded[Event]
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an empty transcript publishing to events. events may be nil.
func New(events *queue.Unbounded[Event], logger *slog.Logger, m *metrics.Metrics) *Transcript {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcript{events: events, logger: logger, metrics: m}
}

// Append adds text produced by the transcription worker. While a region is open
// the text is held back until the region closes. Empty text is ignored.
func (t *Transcript) Append(text string) {
	text = norm.NFC.String(text)
	if text == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.region != nil {
		t.deferred = append(t.deferred, text)
		t.logger.Debug("Transcription deferred while region is open",
			slog.Int("region_segment", t.region.segmentID),
			slog.Int("deferred", len(t.deferred)),
		)
		return
	}
	t.appendLocked(KindTranscription, text, "")
}

// AppendAnnotation adds a complete annotation segment tagged with tag.
func (t *Transcript) AppendAnnotation(text, tag string) (Segment, error) {
	text = norm.NFC.String(text)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.region != nil {
		return Segment{}, ErrRegionOpen
	}
	return t.appendLocked(KindAnnotation, text, tag), nil
}

func (t *Transcript) appendLocked(kind Kind, text, tag string) Segment {
	start := t.text.Len()
	t.text.WriteString(text)

	seg := Segment{
		ID:    len(t.segments),
		Kind:  kind,
		Start: start,
		End:   t.text.Len(),
		Tag:   tag,
	}
	t.segments = append(t.segments, seg)
	t.publishLocked(EventAppend, seg, text)
	return seg
}

func (t *Transcript) publishLocked(typ EventType, seg Segment, text string) {
	t.seq++
	t.metrics.SetTranscriptBytes(t.text.Len())
	if t.events == nil {
		return
	}
	t.events.Push(Event{
		Seq:       t.seq,
		Type:      typ,
		Kind:      seg.Kind,
		SegmentID: seg.ID,
		Text:      text,
		Start:     seg.Start,
		End:       seg.End,
		Tag:       seg.Tag,
		Length:    t.text.Len(),
		Time:      time.Now(),
	})
}

// OpenRegion starts an in-progress segment for incremental writes. Only one
// region can be open at a time.
func (t *Transcript) OpenRegion(kind Kind, tag string) (*Region, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.region != nil {
		return nil, ErrRegionOpen
	}

	seg := Segment{
		ID:         len(t.segments),
		Kind:       kind,
		Start:      t.text.Len(),
		End:        t.text.Len(),
		InProgress: true,
		Tag:        tag,
	}
	t.segments = append(t.segments, seg)

	r := &Region{t: t, segmentID: seg.ID}
	t.region = r
	t.publishLocked(EventRegionOpen, seg, "")
	return r, nil
}

// Text returns the full transcript.
func (t *Transcript) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text.String()
}

// Len returns the transcript length in bytes.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text.Len()
}

// Segments returns a copy of all segments in append order.
func (t *Transcript) Segments() []Segment {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

// Slice returns text[start:end], clamped to the current length.
func (t *Transcript) Slice(start, end int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.text.Len()
	if start < 0 || start > end || end > n {
		return "", fmt.Errorf("range [%d,%d) out of bounds for transcript of %d bytes", start, end, n)
	}
	return t.text.String()[start:end], nil
}

// RegionOpen reports whether a streaming region is open.
func (t *Transcript) RegionOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.region != nil
}

// Region is an open in-progress segment.
type Region struct {
	t         *Transcript
	segmentID int
	closed    bool
}

// SegmentID returns the id of the region's segment.
func (r *Region) SegmentID() int {
	return r.segmentID
}

// Write appends text to the region.
func (r *Region) Write(text string) error {
	text = norm.NFC.String(text)

	t := r.t
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.closed {
		return ErrRegionClosed
	}
	if text == "" {
		return nil
	}

	start := t.text.Len()
	t.text.WriteString(text)
	seg := &t.segments[r.segmentID]
	seg.End = t.text.Len()

	delta := *seg
	delta.Start = start
	t.publishLocked(EventRegionDelta, delta, text)
	return nil
}

// Close finishes the region and commits transcription held back while it was
// open. Closing twice is a no-op.
func (r *Region) Close() error {
	t := r.t
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	seg := &t.segments[r.segmentID]
	seg.InProgress = false
	t.region = nil
	t.publishLocked(EventRegionClose, *seg, "")

	for _, text := range t.deferred {
		t.appendLocked(KindTranscription, text, "")
	}
	t.deferred = nil
	return nil
}
