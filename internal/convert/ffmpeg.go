package convert

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
)

// FFmpeg converts by piping raw PCM through an ffmpeg process.
type FFmpeg struct {
	// Binary is the ffmpeg executable, "ffmpeg" when empty.
	Binary string
}

// NewFFmpeg returns an FFmpeg converter using binary.
func NewFFmpeg(binary string) *FFmpeg {
	return &FFmpeg{Binary: binary}
}

// Args returns the ffmpeg command line for converting src to mono at targetRate.
func (f *FFmpeg) Args(src audio.Format, targetRate int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(src.SampleRate),
		"-ac", strconv.Itoa(src.Channels),
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(targetRate),
		"-ac", "1",
		"pipe:1",
	}
}

// Convert implements Converter.
func (f *FFmpeg) Convert(ctx context.Context, pcm []byte, src audio.Format, targetRate int) ([]byte, error) {
	if err := validateRequest(pcm, src, targetRate); err != nil {
		return nil, err
	}

	binary := f.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, binary, f.Args(src, targetRate)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(pcm)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return nil, &BackendError{Backend: "ffmpeg", ExitCode: exitCode, Stderr: diag, Err: ErrBackendFailed}
	}

	if stdout.Len() == 0 {
		return nil, &BackendError{Backend: "ffmpeg", Stderr: strings.TrimSpace(stderr.String()), Err: ErrEmptyOutput}
	}
	return stdout.Bytes(), nil
}
