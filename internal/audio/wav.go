package audio

import (
	"bytes"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// wavFormatPCM is the WAVE format tag of uncompressed PCM.
const wavFormatPCM = 1

// WAVInfo is the metadata of an in-memory WAV blob.
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
}

// EncodeWAV wraps mono PCM-16 bytes in a WAV container. Transcription backends
// that take files over HTTP receive this blob.
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	samples, err := Samples(pcm)
	if err != nil {
		return nil, err
	}

	ws := &writerseeker.WriterSeeker{}
	if err := writeWAV(ws, samples, sampleRate); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(ws.Reader())
	if err != nil {
		return nil, fmt.Errorf("read encoded WAV: %w", err)
	}
	return data, nil
}

// writeWAV encodes mono 16-bit samples into w.
func writeWAV(w io.WriteSeeker, samples []int16, sampleRate int) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(w, sampleRate, 16, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode WAV: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize WAV: %w", err)
	}
	return nil
}

// ReadWAVInfo parses the header of a PCM WAV blob.
func ReadWAVInfo(data []byte) (*WAVInfo, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("invalid WAV file: %w", err)
	}
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("invalid WAV file: %w", err)
	}

	switch {
	case dec.NumChans == 0 || dec.SampleRate == 0 || dec.BitDepth == 0:
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	case dec.WavAudioFormat != wavFormatPCM:
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", dec.WavAudioFormat)
	case dec.PCMChunk == nil:
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	frameSize := uint32(dec.NumChans) * uint32(dec.BitDepth) / 8
	size := uint32(dec.PCMLen())
	return &WAVInfo{
		SampleRate:    dec.SampleRate,
		Channels:      dec.NumChans,
		BitsPerSample: dec.BitDepth,
		Duration:      float64(size/frameSize) / float64(dec.SampleRate),
		DataSize:      size,
	}, nil
}
