package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidFrame(t *testing.T) {
	tests := []struct {
		name       string
		length     int
		sampleRate int
		durationMs int
		want       bool
	}{
		{"16k 10ms exact", 320, 16000, 10, true},
		{"16k 10ms one short", 319, 16000, 10, false},
		{"16k 10ms one long", 321, 16000, 10, false},
		{"8k 20ms", 320, 8000, 20, true},
		{"32k 30ms", 1920, 32000, 30, true},
		{"48k 10ms", 960, 48000, 10, true},
		{"48k 30ms", 2880, 48000, 30, true},
		{"unsupported rate 44.1k", 882, 44100, 10, false},
		{"unsupported rate 22.05k", 441, 22050, 10, false},
		{"unsupported duration 15ms", 480, 16000, 15, false},
		{"unsupported duration 40ms", 1280, 16000, 40, false},
		{"empty", 0, 16000, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidFrame(make([]byte, tt.length), tt.sampleRate, tt.durationMs))
		})
	}
}

func TestFrameBytes(t *testing.T) {
	tests := []struct {
		rate, channels, ms, want int
	}{
		{16000, 1, 10, 320},
		{48000, 2, 10, 1920},
		{8000, 1, 30, 480},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FrameBytes(tt.rate, tt.channels, tt.ms), "%d Hz, %d ch, %d ms", tt.rate, tt.channels, tt.ms)
	}
}

func TestDownmix(t *testing.T) {
	tests := []struct {
		name   string
		stereo []int16
		want   []int16
	}{
		{"average", []int16{100, 200}, []int16{150}},
		{"odd positive sum truncates", []int16{1, 2}, []int16{1}},
		{"odd negative sum truncates toward zero", []int16{-1, -2}, []int16{-1}},
		{"extremes do not overflow", []int16{32767, 32767, -32768, -32768}, []int16{32767, -32768}},
		{"opposite", []int16{1000, -1000}, []int16{0}},
		{"empty", []int16{}, []int16{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Downmix(Bytes(tt.stereo))
			require.NoError(t, err)
			got, err := Samples(out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDownmixUnaligned(t *testing.T) {
	_, err := Downmix(make([]byte, 6))
	assert.ErrorIs(t, err, ErrUnalignedStereo)
}

func TestToMono(t *testing.T) {
	mono := Bytes([]int16{1, 2, 3})
	out, err := ToMono(mono, 1)
	require.NoError(t, err)
	assert.Equal(t, mono, out, "mono passes through")

	out, err = ToMono(Bytes([]int16{10, 20, 30, 40}), 2)
	require.NoError(t, err)
	got, err := Samples(out)
	require.NoError(t, err)
	assert.Equal(t, []int16{15, 35}, got)

	_, err = ToMono(mono, 6)
	assert.ErrorIs(t, err, ErrUnsupportedChannels)
}
