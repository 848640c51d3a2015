package convert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
)

type job struct {
	ctx        context.Context
	pcm        []byte
	src        audio.Format
	targetRate int
	result     chan result
}

type result struct {
	out []byte
	err error
}

// Pool serves Convert calls from a fixed set of long-lived worker goroutines
// in front of a backend Converter.
type Pool struct {
	backend Converter
	jobs    chan job
	logger  *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// NewPool starts workers goroutines serving backend.
func NewPool(backend Converter, workers int, logger *slog.Logger) (*Pool, error) {
	if backend == nil {
		return nil, fmt.Errorf("conversion backend is required")
	}
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", workers)
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		backend: backend,
		jobs:    make(chan job),
		logger:  logger,
		closed:  make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	logger.Info("Conversion pool started", slog.Int("workers", workers))
	return p, nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case j := <-p.jobs:
			out, err := p.backend.Convert(j.ctx, j.pcm, j.src, j.targetRate)
			j.result <- result{out: out, err: err}
		case <-p.closed:
			p.logger.Debug("Conversion worker stopped", slog.Int("worker_id", id))
			return
		}
	}
}

// Convert implements Converter by handing the request to a free worker.
func (p *Pool) Convert(ctx context.Context, pcm []byte, src audio.Format, targetRate int) ([]byte, error) {
	j := job{ctx: ctx, pcm: pcm, src: src, targetRate: targetRate, result: make(chan result, 1)}

	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case p.jobs <- j:
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// the worker always answers once it has taken the job
	r := <-j.result
	return r.out, r.err
}

// Close stops the workers after their current job. Later calls fail with ErrPoolClosed.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	p.wg.Wait()
	return nil
}

// Backend returns the converter the workers call.
func (p *Pool) Backend() Converter {
	return p.backend
}
