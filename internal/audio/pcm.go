package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxSampleMagnitude is the largest positive int16 value, used as the
// normalisation divisor.
const MaxSampleMagnitude = math.MaxInt16

// Samples decodes little-endian PCM-16 bytes into samples.
func Samples(pcm []byte) ([]int16, error) {
	if len(pcm)%BytesPerSample != 0 {
		return nil, fmt.Errorf("pcm length must be even (got %d bytes)", len(pcm))
	}
	out := make([]int16, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out, nil
}

// Bytes encodes samples as little-endian PCM-16.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Normalize converts PCM-16 bytes to float32 samples in [-1, 1] by dividing
// each sample by MaxSampleMagnitude. A trailing odd byte is ignored and -32768
// is clamped to -1.
func Normalize(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/BytesPerSample)
	for i := range out {
		v := float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / MaxSampleMagnitude
		if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}

// DurationMs returns the duration in milliseconds of n bytes of PCM in format f.
func (f Format) DurationMs(n int) int {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return int(int64(n) * 1000 / int64(bps))
}

// RMS returns the root mean square of the samples in pcm.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var energy float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		energy += s * s
	}
	return math.Sqrt(energy / float64(n))
}

// Denormalize converts float32 samples in [-1, 1] back to PCM-16 bytes,
// the inverse of Normalize. Out of range values are clamped.
func Denormalize(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(float64(v)*MaxSampleMagnitude))))
	}
	return out
}
