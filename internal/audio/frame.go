package audio

import (
	"errors"
	"fmt"
)

// BytesPerSample is the width of one signed 16-bit PCM sample.
const BytesPerSample = 2

var (
	// ErrUnalignedStereo is returned when a stereo buffer does not hold whole L/R pairs.
	ErrUnalignedStereo = errors.New("stereo frame length is not a multiple of 4 bytes")

	// ErrUnsupportedChannels is returned for channel layouts other than mono and stereo.
	ErrUnsupportedChannels = errors.New("unsupported channel count")
)

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`
	Channels   int `json:"channels" yaml:"channels"`
}

// String implements fmt.Stringer.
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/s16le", f.SampleRate, f.Channels)
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BytesPerSample
}

// vadSampleRates are the only rates the VAD accepts.
var vadSampleRates = map[int]bool{8000: true, 16000: true, 32000: true, 48000: true}

// vadFrameDurations are the only frame lengths (ms) the VAD accepts.
var vadFrameDurations = map[int]bool{10: true, 20: true, 30: true}

// ValidSampleRate reports whether the VAD accepts the sample rate.
func ValidSampleRate(sampleRate int) bool {
	return vadSampleRates[sampleRate]
}

// ValidFrameDuration reports whether the VAD accepts the frame duration.
func ValidFrameDuration(durationMs int) bool {
	return vadFrameDurations[durationMs]
}

// FrameBytes returns the byte size of a frame of durationMs at the given format.
func FrameBytes(sampleRate, channels, durationMs int) int {
	return sampleRate * durationMs / 1000 * channels * BytesPerSample
}

// ValidFrame reports whether frame is a mono 16-bit frame the VAD can classify:
// the rate and duration must be supported and the length must match exactly.
func ValidFrame(frame []byte, sampleRate, durationMs int) bool {
	if !ValidSampleRate(sampleRate) || !ValidFrameDuration(durationMs) {
		return false
	}
	return len(frame) == FrameBytes(sampleRate, 1, durationMs)
}

// Downmix averages interleaved stereo sample pairs into mono.
// The int32 sum is divided by two with Go integer division, so odd sums are
// truncated toward zero: (1, 2) -> 1 and (-1, -2) -> -1.
func Downmix(stereo []byte) ([]byte, error) {
	if len(stereo)%(2*BytesPerSample) != 0 {
		return nil, fmt.Errorf("downmix %d bytes: %w", len(stereo), ErrUnalignedStereo)
	}

	mono := make([]byte, len(stereo)/2)
	for i, o := 0, 0; i < len(stereo); i, o = i+4, o+2 {
		l := int32(int16(uint16(stereo[i]) | uint16(stereo[i+1])<<8))
		r := int32(int16(uint16(stereo[i+2]) | uint16(stereo[i+3])<<8))
		m := uint16(int16((l + r) / 2))
		mono[o] = byte(m)
		mono[o+1] = byte(m >> 8)
	}
	return mono, nil
}

// ToMono returns a mono view of frame. Mono input is returned as is.
func ToMono(frame []byte, channels int) ([]byte, error) {
	switch channels {
	case 1:
		return frame, nil
	case 2:
		return Downmix(frame)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannels, channels)
	}
}
