package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
)

func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script backend not available on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestFFmpegArgs(t *testing.T) {
	args := NewFFmpeg("").Args(audio.Format{SampleRate: 48000, Channels: 2}, 16000)
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", "48000", "-ac", "2", "-i", "pipe:0",
		"-f", "s16le", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1", "pipe:1",
	}, args)
}

func TestFFmpegConvert(t *testing.T) {
	bin := fakeFFmpeg(t, "cat")
	in := audio.Bytes([]int16{1, 2, 3, 4})
	orig := append([]byte(nil), in...)

	out, err := NewFFmpeg(bin).Convert(context.Background(), in, audio.Format{SampleRate: 16000, Channels: 1}, 16000)
	require.NoError(t, err)
	assert.Equal(t, orig, out)
	assert.Equal(t, orig, in, "input buffer must not be modified")
}

func TestFFmpegFailure(t *testing.T) {
	bin := fakeFFmpeg(t, "cat >/dev/null; echo 'Invalid data found' >&2; exit 3")

	_, err := NewFFmpeg(bin).Convert(context.Background(), make([]byte, 320), audio.Format{SampleRate: 16000, Channels: 1}, 16000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackendFailed))

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 3, be.ExitCode)
	assert.Contains(t, be.Stderr, "Invalid data found")
}

func TestFFmpegEmptyOutput(t *testing.T) {
	bin := fakeFFmpeg(t, "cat >/dev/null")

	_, err := NewFFmpeg(bin).Convert(context.Background(), make([]byte, 320), audio.Format{SampleRate: 16000, Channels: 1}, 16000)
	assert.True(t, errors.Is(err, ErrEmptyOutput))
}

func TestFFmpegMissingBinary(t *testing.T) {
	_, err := NewFFmpeg(filepath.Join(t.TempDir(), "nope")).Convert(context.Background(), make([]byte, 320), audio.Format{SampleRate: 16000, Channels: 1}, 16000)
	assert.True(t, errors.Is(err, ErrBackendFailed))
}

func TestNativeConvert(t *testing.T) {
	n := NewNative()

	t.Run("mono passthrough", func(t *testing.T) {
		in := audio.Bytes([]int16{5, -5, 7})
		out, err := n.Convert(context.Background(), in, audio.Format{SampleRate: 16000, Channels: 1}, 16000)
		require.NoError(t, err)
		assert.Equal(t, in, out)
		out[0] = 0xFF
		assert.NotEqual(t, in[0], out[0], "output must not alias input")
	})

	t.Run("stereo downmix", func(t *testing.T) {
		out, err := n.Convert(context.Background(), audio.Bytes([]int16{100, 200, -1, -2}), audio.Format{SampleRate: 16000, Channels: 2}, 16000)
		require.NoError(t, err)
		samples, err := audio.Samples(out)
		require.NoError(t, err)
		assert.Equal(t, []int16{150, -1}, samples)
	})

	t.Run("downsample 48k to 16k", func(t *testing.T) {
		out, err := n.Convert(context.Background(), make([]byte, audio.FrameBytes(48000, 1, 30)), audio.Format{SampleRate: 48000, Channels: 1}, 16000)
		require.NoError(t, err)
		assert.Len(t, out, audio.FrameBytes(16000, 1, 30))
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := n.Convert(context.Background(), nil, audio.Format{SampleRate: 16000, Channels: 1}, 16000)
		assert.True(t, errors.Is(err, ErrEmptyOutput))
	})

	t.Run("unsupported channels", func(t *testing.T) {
		_, err := n.Convert(context.Background(), make([]byte, 12), audio.Format{SampleRate: 16000, Channels: 3}, 16000)
		assert.True(t, errors.Is(err, audio.ErrUnsupportedChannels))
	})
}

func TestResample(t *testing.T) {
	tests := []struct {
		name     string
		in       []int16
		src, dst int
		want     []int16
	}{
		{"identity", []int16{1, 2, 3}, 16000, 16000, []int16{1, 2, 3}},
		{"halve", []int16{0, 10, 20, 30}, 32000, 16000, []int16{0, 20}},
		{"double", []int16{0, 10}, 8000, 16000, []int16{0, 5, 10, 10}},
		{"empty", nil, 8000, 16000, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resample(tt.in, tt.src, tt.dst))
		})
	}
}

type countingConverter struct {
	mu    sync.Mutex
	calls int
}

func (c *countingConverter) Convert(ctx context.Context, pcm []byte, src audio.Format, targetRate int) ([]byte, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return append([]byte(nil), pcm...), nil
}

func TestPool(t *testing.T) {
	backend := &countingConverter{}
	p, err := NewPool(backend, 3, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.Convert(context.Background(), []byte{1, 2}, audio.Format{SampleRate: 16000, Channels: 1}, 16000)
			assert.NoError(t, err)
			assert.Equal(t, []byte{1, 2}, out)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, backend.calls)

	require.NoError(t, p.Close())
	_, err = p.Convert(context.Background(), []byte{1, 2}, audio.Format{SampleRate: 16000, Channels: 1}, 16000)
	assert.ErrorIs(t, err, ErrPoolClosed)

	// closing twice is harmless
	require.NoError(t, p.Close())
}

func TestNewPoolValidation(t *testing.T) {
	_, err := NewPool(nil, 1, nil)
	assert.Error(t, err)
	_, err = NewPool(NewNative(), 0, nil)
	assert.Error(t, err)
}
