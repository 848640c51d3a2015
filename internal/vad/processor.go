package vad

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
)

// Classifier decides whether a frame contains speech.
type Classifier interface {
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}

// ErrInvalidFrame is returned for frames the classifier cannot process.
var ErrInvalidFrame = errors.New("invalid vad frame")

// MaxAggressiveness is the highest supported aggressiveness level.
const MaxAggressiveness = 3

// energyThresholds maps aggressiveness to the RMS level a frame must reach
// to count as speech.
var energyThresholds = [MaxAggressiveness + 1]float64{
	0: 150,
	1: 300,
	2: 600,
	3: 1200,
}

// Processor is an energy based Classifier.
type Processor struct {
	aggressiveness int
	threshold      float64

	// Statistics
	totalFrames   uint64
	speechFrames  uint64
	lastEnergy    float64
	lastProcessed time.Time

	mu sync.RWMutex
}

// ProcessorStats represents VAD processor statistics
type ProcessorStats struct {
	Aggressiveness   int       `json:"aggressiveness"`
	Threshold        float64   `json:"threshold"`
	TotalFrames      uint64    `json:"total_frames"`
	SpeechFrames     uint64    `json:"speech_frames"`
	SpeechPercentage float64   `json:"speech_percentage"`
	LastEnergy       float64   `json:"last_energy"`
	LastProcessed    time.Time `json:"last_processed"`
}

// NewProcessor creates a classifier for the given aggressiveness (0-3).
func NewProcessor(aggressiveness int) (*Processor, error) {
	if aggressiveness < 0 || aggressiveness > MaxAggressiveness {
		return nil, fmt.Errorf("aggressiveness must be between 0 and %d, got %d", MaxAggressiveness, aggressiveness)
	}

	return &Processor{
		aggressiveness: aggressiveness,
		threshold:      energyThresholds[aggressiveness],
	}, nil
}

// IsSpeech classifies a mono PCM-16 frame. The frame must be 10, 20 or 30 ms
// long at one of the supported sample rates.
func (p *Processor) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if !audio.ValidSampleRate(sampleRate) {
		return false, fmt.Errorf("%w: unsupported sample rate %d", ErrInvalidFrame, sampleRate)
	}
	durationMs := len(frame) * 1000 / (sampleRate * audio.BytesPerSample)
	if !audio.ValidFrame(frame, sampleRate, durationMs) {
		return false, fmt.Errorf("%w: %d bytes at %d Hz", ErrInvalidFrame, len(frame), sampleRate)
	}

	energy := audio.RMS(frame)
	speech := energy >= p.threshold

	p.mu.Lock()
	p.totalFrames++
	if speech {
		p.speechFrames++
	}
	p.lastEnergy = energy
	p.lastProcessed = time.Now()
	p.mu.Unlock()

	return speech, nil
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	speechPercentage := float64(0)
	if p.totalFrames > 0 {
		speechPercentage = float64(p.speechFrames) / float64(p.totalFrames) * 100
	}

	return ProcessorStats{
		Aggressiveness:   p.aggressiveness,
		Threshold:        p.threshold,
		TotalFrames:      p.totalFrames,
		SpeechFrames:     p.speechFrames,
		SpeechPercentage: speechPercentage,
		LastEnergy:       p.lastEnergy,
		LastProcessed:    p.lastProcessed,
	}
}

// Reset clears the statistics.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalFrames = 0
	p.speechFrames = 0
	p.lastEnergy = 0
	p.lastProcessed = time.Time{}
}

// Threshold returns the RMS level at which a frame counts as speech.
func (p *Processor) Threshold() float64 {
	return p.threshold
}
