package convert

import (
	"context"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
)

// Native converts in process: stereo is downmixed and the result is resampled
// with linear interpolation.
type Native struct{}

// NewNative returns a Native converter.
func NewNative() *Native {
	return &Native{}
}

// Convert implements Converter.
func (n *Native) Convert(ctx context.Context, pcm []byte, src audio.Format, targetRate int) ([]byte, error) {
	if err := validateRequest(pcm, src, targetRate); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mono, err := audio.ToMono(pcm, src.Channels)
	if err != nil {
		return nil, &BackendError{Backend: "native", Stderr: err.Error(), Err: ErrBackendFailed}
	}

	var out []byte
	if src.SampleRate == targetRate {
		out = make([]byte, len(mono))
		copy(out, mono)
	} else {
		samples, err := audio.Samples(mono)
		if err != nil {
			return nil, &BackendError{Backend: "native", Stderr: err.Error(), Err: ErrBackendFailed}
		}
		out = audio.Bytes(Resample(samples, src.SampleRate, targetRate))
	}

	if len(out) == 0 {
		return nil, &BackendError{Backend: "native", Err: ErrEmptyOutput}
	}
	return out, nil
}

// Resample converts samples from srcRate to dstRate using linear interpolation.
// The output holds len(samples)*dstRate/srcRate samples.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if len(samples) == 0 || srcRate <= 0 || dstRate <= 0 {
		return nil
	}
	if srcRate == dstRate {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	out := make([]int16, n)
	step := float64(srcRate) / float64(dstRate)
	last := len(samples) - 1

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		v := float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac
		out[i] = int16(v)
	}
	return out
}
