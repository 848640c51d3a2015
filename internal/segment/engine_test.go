package segment

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/capture"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/queue"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/vad"
)

// scripted answers IsSpeech from a fixed sequence, repeating the last value.
type scripted struct {
	answers []bool
	err     error
	calls   int
}

func (s *scripted) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	i := s.calls
	if i >= len(s.answers) {
		i = len(s.answers) - 1
	}
	s.calls++
	return s.answers[i], nil
}

var mono16k = audio.Format{SampleRate: 16000, Channels: 1}

func testConfig() Config {
	return Config{
		Format:                mono16k,
		FrameMs:               10,
		TargetRecordMs:        2000,
		RequiredSilenceFrames: 5,
		MaxRecordMs:           10000,
	}
}

func newTestEngine(t *testing.T, cfg Config, c vad.Classifier) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, c, nil, nil)
	require.NoError(t, err)
	return e
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no format", func(c *Config) { c.Format = audio.Format{} }, true},
		{"zero frame", func(c *Config) { c.FrameMs = 0 }, true},
		{"zero target", func(c *Config) { c.TargetRecordMs = 0 }, true},
		{"negative silence", func(c *Config) { c.RequiredSilenceFrames = -1 }, true},
		{"max below target", func(c *Config) { c.MaxRecordMs = 1000 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFlushAfterTargetAndSilence(t *testing.T) {
	// speech for 1990ms, then silence
	answers := make([]bool, 199)
	for i := range answers {
		answers[i] = true
	}
	answers = append(answers, false)
	e := newTestEngine(t, testConfig(), &scripted{answers: answers})

	frame := make([]byte, 320)
	var chunk *Chunk
	n := 0
	for chunk == nil && n < 1000 {
		chunk = e.Feed(frame)
		n++
	}

	// target reached at frame 200 but only 1 silent frame, flush needs 5
	require.NotNil(t, chunk)
	assert.Equal(t, 204, n)
	assert.Equal(t, ReasonSilence, chunk.Reason)
	assert.Equal(t, 2040*time.Millisecond, chunk.Duration)
	assert.Len(t, chunk.Data, 204*320)
	assert.Equal(t, 204, chunk.Frames)

	stats := e.Stats()
	assert.Zero(t, stats.CurrentFrames, "counters reset after flush")
	assert.Zero(t, stats.SilentFrames)
	assert.Zero(t, stats.CurrentMs)
	assert.Equal(t, "accumulating", stats.State)

	// the next chunk needs a full target again
	for i := 0; i < 199; i++ {
		require.Nil(t, e.Feed(frame), "unexpected flush after %d frames", i+1)
	}
	assert.NotNil(t, e.Feed(frame), "second chunk at 2000ms of silence")
}

func TestHardCeilingUnderContinuousSpeech(t *testing.T) {
	e := newTestEngine(t, testConfig(), &scripted{answers: []bool{true}})

	frame := make([]byte, 320)
	var chunks []*Chunk
	for i := 0; i < 2500; i++ {
		if c := e.Feed(frame); c != nil {
			chunks = append(chunks, c)
		}
	}

	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, ReasonCeiling, c.Reason)
		assert.Equal(t, 10*time.Second, c.Duration)
	}
	assert.Equal(t, uint64(2), e.Stats().CeilingChunks)
}

func TestCeilingWinsOverSilence(t *testing.T) {
	cfg := testConfig()
	cfg.TargetRecordMs = 100
	cfg.MaxRecordMs = 100
	e := newTestEngine(t, cfg, &scripted{answers: []bool{false}})

	frame := make([]byte, 320)
	var chunk *Chunk
	for i := 0; i < 10; i++ {
		chunk = e.Feed(frame)
	}
	require.NotNil(t, chunk)
	assert.Equal(t, ReasonCeiling, chunk.Reason)
}

func TestInvalidFramesAccumulateAsSilence(t *testing.T) {
	cfg := testConfig()
	cfg.TargetRecordMs = 50
	cfg.RequiredSilenceFrames = 3
	c := &scripted{answers: []bool{true}}
	e := newTestEngine(t, cfg, c)

	valid := make([]byte, 320)
	invalid := make([]byte, 300)

	for i := 0; i < 5; i++ {
		require.Nil(t, e.Feed(valid), "no flush during speech")
	}
	e.Feed(invalid)
	e.Feed(invalid)
	chunk := e.Feed(invalid)
	require.NotNil(t, chunk, "3 invalid frames count as silence")
	assert.Len(t, chunk.Data, 5*320+3*300, "invalid frames are kept")
	assert.Equal(t, 5, c.calls, "VAD runs only on valid frames")
	assert.Equal(t, uint64(3), e.Stats().InvalidFrames)
}

func TestVADErrorCountsAsSilence(t *testing.T) {
	cfg := testConfig()
	cfg.TargetRecordMs = 20
	cfg.RequiredSilenceFrames = 2
	e := newTestEngine(t, cfg, &scripted{err: errors.New("vad broke")})

	frame := make([]byte, 320)
	e.Feed(frame)
	chunk := e.Feed(frame)
	require.NotNil(t, chunk)
	assert.Equal(t, ReasonSilence, chunk.Reason)
}

func TestStereoCapture(t *testing.T) {
	cfg := testConfig()
	cfg.Format = audio.Format{SampleRate: 48000, Channels: 2}
	cfg.TargetRecordMs = 30
	cfg.RequiredSilenceFrames = 1
	p, err := vad.NewProcessor(1)
	require.NoError(t, err)
	e := newTestEngine(t, cfg, p)

	frame := make([]byte, audio.FrameBytes(48000, 2, 10))
	var chunk *Chunk
	for i := 0; i < 3; i++ {
		chunk = e.Feed(frame)
	}
	require.NotNil(t, chunk, "chunk after 30ms")
	assert.Equal(t, cfg.Format, chunk.Format)
	assert.Equal(t, 30*time.Millisecond, chunk.Duration)
	assert.Zero(t, e.Stats().InvalidFrames, "stereo frames validate after downmix")
}

func TestChunkDoesNotAliasAccumulator(t *testing.T) {
	cfg := testConfig()
	cfg.TargetRecordMs = 10
	cfg.RequiredSilenceFrames = 1
	e := newTestEngine(t, cfg, &scripted{answers: []bool{false}})

	first := e.Feed(bytes.Repeat([]byte{1}, 320))
	second := e.Feed(bytes.Repeat([]byte{2}, 320))
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, byte(1), first.Data[0], "chunk data not overwritten by later frames")
	assert.Equal(t, byte(2), second.Data[0])
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRunSilentStream(t *testing.T) {
	p, err := vad.NewProcessor(1)
	require.NoError(t, err)
	e := newTestEngine(t, testConfig(), p)

	// 3 seconds of silence in 10ms frames
	src, err := capture.NewReader(bytes.NewReader(make([]byte, 300*320)), mono16k, 10)
	require.NoError(t, err)

	out := queue.New[*Chunk]()
	var stop atomic.Bool
	require.NoError(t, e.Run(context.Background(), src, out, &stop))

	require.Equal(t, 1, out.Len())
	chunk, _ := out.TryPop()
	assert.Equal(t, 2000*time.Millisecond, chunk.Duration)

	// the remaining second is discarded
	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.DiscardedChunks)
	assert.Zero(t, stats.CurrentFrames)
}

func TestRunStopFlag(t *testing.T) {
	e := newTestEngine(t, testConfig(), &scripted{answers: []bool{true}})
	src, err := capture.NewReader(bytes.NewReader(make([]byte, 10*320)), mono16k, 10)
	require.NoError(t, err)

	out := queue.New[*Chunk]()
	var stop atomic.Bool
	stop.Store(true)
	require.NoError(t, e.Run(context.Background(), src, out, &stop))
	assert.Zero(t, e.Stats().TotalFrames, "no frames read after stop")
}

// idleSource blocks in Read until its context is done.
type idleSource struct{}

func (idleSource) Read(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (idleSource) Format() capture.Format { return mono16k }
func (idleSource) Close() error           { return nil }

func TestRunCancelledWhileSourceIdle(t *testing.T) {
	e := newTestEngine(t, testConfig(), &scripted{answers: []bool{true}})
	ctx, cancel := context.WithCancel(context.Background())
	var stop atomic.Bool

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, idleSource{}, queue.New[*Chunk](), &stop) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type failingSource struct{}

func (failingSource) Read(ctx context.Context) ([]byte, error) { return nil, errors.New("device lost") }
func (failingSource) Format() capture.Format                   { return mono16k }
func (failingSource) Close() error                              { return nil }

func TestRunSourceError(t *testing.T) {
	e := newTestEngine(t, testConfig(), &scripted{answers: []bool{true}})
	var stop atomic.Bool
	err := e.Run(context.Background(), failingSource{}, queue.New[*Chunk](), &stop)
	assert.Error(t, err)
}
