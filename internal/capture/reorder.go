package capture

import (
	"fmt"
	"sync"
)

// DefaultMaxGap is the number of missing packets to wait for before giving up on them.
const DefaultMaxGap = 20

// ReorderBuffer restores the order of sequenced packets. Packets that do not
// arrive within maxGap newer packets are counted as lost and skipped.
type ReorderBuffer struct {
	maxGap uint32

	started  bool
	expected uint32
	pending  map[uint32][]byte
	ordered  []byte

	totalPackets uint32
	lostCount    uint32

	mu sync.Mutex
}

// ReorderStats represents reorder buffer statistics for monitoring
type ReorderStats struct {
	TotalPackets uint32  `json:"total_packets"`
	LostPackets  uint32  `json:"lost_packets"`
	LossRate     float64 `json:"loss_rate"`
	PendingSeqs  int     `json:"pending_sequences"`
	Expected     uint32  `json:"expected_sequence"`
}

// NewReorderBuffer creates a buffer tolerating up to maxGap missing packets.
func NewReorderBuffer(maxGap uint32) *ReorderBuffer {
	if maxGap == 0 {
		maxGap = DefaultMaxGap
	}
	return &ReorderBuffer{
		maxGap:  maxGap,
		pending: make(map[uint32][]byte),
	}
}

// Add stores a packet. Old or duplicate packets are rejected with an error.
func (b *ReorderBuffer) Add(seq uint32, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		b.started = true
		b.expected = seq
	}

	switch {
	case seq == b.expected:
		b.totalPackets++
		b.ordered = append(b.ordered, data...)
		b.expected++
		b.flushPending()
	case seq > b.expected:
		if _, dup := b.pending[seq]; dup {
			return fmt.Errorf("ignoring duplicate packet: seq=%d", seq)
		}
		b.totalPackets++
		b.pending[seq] = append([]byte(nil), data...)
		for seq >= b.expected && seq-b.expected > b.maxGap {
			b.skipToOldestPending()
		}
	default:
		return fmt.Errorf("ignoring old/duplicate packet: seq=%d, expected=%d", seq, b.expected)
	}
	return nil
}

// flushPending moves consecutive buffered packets to the ordered output.
func (b *ReorderBuffer) flushPending() {
	for {
		data, ok := b.pending[b.expected]
		if !ok {
			return
		}
		b.ordered = append(b.ordered, data...)
		delete(b.pending, b.expected)
		b.expected++
	}
}

// skipToOldestPending declares everything before the oldest buffered packet lost.
func (b *ReorderBuffer) skipToOldestPending() {
	oldest, found := uint32(0), false
	for seq := range b.pending {
		if !found || seq < oldest {
			oldest, found = seq, true
		}
	}
	if !found {
		return
	}
	b.lostCount += oldest - b.expected
	b.expected = oldest
	b.flushPending()
}

// Drain returns the in-order bytes accumulated since the last call.
func (b *ReorderBuffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.ordered
	b.ordered = nil
	return out
}

// GetStats returns current buffer statistics
func (b *ReorderBuffer) GetStats() ReorderStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	lossRate := float64(0)
	if seen := b.totalPackets + b.lostCount; seen > 0 {
		lossRate = float64(b.lostCount) / float64(seen) * 100
	}

	return ReorderStats{
		TotalPackets: b.totalPackets,
		LostPackets:  b.lostCount,
		LossRate:     lossRate,
		PendingSeqs:  len(b.pending),
		Expected:     b.expected,
	}
}
