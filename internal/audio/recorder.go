package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Recorder writes converted chunks to numbered WAV files (out_1.wav, out_2.wav, ...)
// so individual utterances can be replayed while tuning the segmentation.
type Recorder struct {
	dir string
	n   int
	mu  sync.Mutex
}

// NewRecorder creates the output directory and returns a recorder writing into it.
func NewRecorder(dir string) (*Recorder, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording directory %s: %w", dir, err)
	}
	return &Recorder{dir: dir}, nil
}

// Save writes mono PCM-16 at sampleRate to the next numbered file and returns its path.
func (r *Recorder) Save(pcm []byte, sampleRate int) (string, error) {
	samples, err := Samples(pcm)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.n++
	path := filepath.Join(r.dir, fmt.Sprintf("out_%d.wav", r.n))
	r.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := writeWAV(f, samples, sampleRate); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return path, nil
}
