package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
)

// Environment variables that override keys from the file.
const (
	EnvOpenAIAPIKey        = "OPENAI_API_KEY"
	EnvTranscriptionAPIKey = "LIVESCRIBE_TRANSCRIPTION_API_KEY"
)

// Config represents the complete service configuration
type Config struct {
	Capture       CaptureConfig       `yaml:"capture"`
	Recording     RecordingConfig     `yaml:"recording"`
	Conversion    ConversionConfig    `yaml:"conversion"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Completion    CompletionConfig    `yaml:"completion"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// CaptureConfig describes where audio comes from
type CaptureConfig struct {
	Source     string    `yaml:"source"`  // command, stdin or udp
	Command    []string  `yaml:"command"` // argv writing raw s16le to stdout
	SampleRate int       `yaml:"sample_rate"`
	Channels   int       `yaml:"channels"`
	FrameMs    int       `yaml:"frame_ms"`
	UDP        UDPConfig `yaml:"udp"`
}

// UDPConfig contains the UDP capture listener configuration
type UDPConfig struct {
	Address    string `yaml:"address"`
	BufferSize int    `yaml:"buffer_size"`
	MaxGap     int    `yaml:"max_gap"`
	QueueSize  int    `yaml:"queue_size"`
}

// RecordingConfig contains segmentation parameters
type RecordingConfig struct {
	RecordSeconds         float64 `yaml:"record_seconds"`     // target chunk length
	MaxRecordSeconds      float64 `yaml:"max_record_seconds"` // hard ceiling
	RequiredSilenceFrames int     `yaml:"required_silence_frames"`
	VADMode               int     `yaml:"vad_mode"`
	SaveWAV               bool    `yaml:"save_wav"`
	WAVDir                string  `yaml:"wav_dir"`
}

// ConversionConfig selects the resampling backend
type ConversionConfig struct {
	Backend          string `yaml:"backend"` // ffmpeg or native
	FFmpegPath       string `yaml:"ffmpeg_path"`
	Workers          int    `yaml:"workers"`
	TargetSampleRate int    `yaml:"target_sample_rate"`
}

// TranscriptionConfig contains speech-to-text engine configuration
type TranscriptionConfig struct {
	Engine        string `yaml:"engine"` // whisper_cpp, http or openai
	ModelPath     string `yaml:"model_path"`
	Language      string `yaml:"language"`
	Threads       int    `yaml:"threads"`
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// CompletionConfig contains chat completion configuration for annotations
type CompletionConfig struct {
	APIKey                     string            `yaml:"api_key"`
	BaseURL                    string            `yaml:"base_url"`
	Model                      string            `yaml:"model"`
	Streaming                  bool              `yaml:"streaming"`
	MaxTokens                  int               `yaml:"max_tokens"`
	Temperature                float32           `yaml:"temperature"`
	MaxConsecutiveStreamErrors int               `yaml:"max_consecutive_stream_errors"`
	Prompts                    map[string]string `yaml:"prompts"` // P1..P9
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Source:     "command",
			SampleRate: 48000,
			Channels:   2,
			FrameMs:    10,
			UDP: UDPConfig{
				Address:    "0.0.0.0:4444",
				BufferSize: 65536,
				MaxGap:     20,
				QueueSize:  1000,
			},
		},
		Recording: RecordingConfig{
			RecordSeconds:         2,
			MaxRecordSeconds:      10,
			RequiredSilenceFrames: 10,
			VADMode:               3,
			WAVDir:                "recordings",
		},
		Conversion: ConversionConfig{
			Backend:          "ffmpeg",
			FFmpegPath:       "ffmpeg",
			Workers:          2,
			TargetSampleRate: 16000,
		},
		Transcription: TranscriptionConfig{
			Engine:        "http",
			Threads:       4,
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 2,
		},
		Completion: CompletionConfig{
			Model:                      "gpt-4o-mini",
			MaxTokens:                  500,
			Temperature:                0.5,
			MaxConsecutiveStreamErrors: 3,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads .env files, parses the configuration file over the defaults,
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if err := LoadEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadEnv loads variables from the given .env files. Missing files are
// skipped and variables already set in the environment win.
func LoadEnv(paths ...string) error {
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true

		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides API keys from the environment.
func (c *Config) ApplyEnv() {
	if key := os.Getenv(EnvOpenAIAPIKey); key != "" {
		c.Completion.APIKey = key
		if c.Transcription.Engine == "openai" && c.Transcription.APIKey == "" {
			c.Transcription.APIKey = key
		}
	}
	if key := os.Getenv(EnvTranscriptionAPIKey); key != "" {
		c.Transcription.APIKey = key
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}

	if err := c.Conversion.Validate(); err != nil {
		return fmt.Errorf("conversion config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Completion.Validate(); err != nil {
		return fmt.Errorf("completion config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	switch c.Source {
	case "command":
		if len(c.Command) == 0 {
			return fmt.Errorf("command cannot be empty when source is 'command'")
		}
	case "stdin":
	case "udp":
		if c.UDP.Address == "" {
			return fmt.Errorf("udp address cannot be empty when source is 'udp'")
		}
		if c.UDP.BufferSize < 1024 {
			return fmt.Errorf("udp buffer_size must be at least 1024 bytes, got %d", c.UDP.BufferSize)
		}
		if c.UDP.MaxGap < 1 {
			return fmt.Errorf("udp max_gap must be at least 1, got %d", c.UDP.MaxGap)
		}
	default:
		return fmt.Errorf("source must be one of [command, stdin, udp], got '%s'", c.Source)
	}

	if !audio.ValidSampleRate(c.SampleRate) {
		return fmt.Errorf("sample_rate must be one of 8000, 16000, 32000, 48000, got %d", c.SampleRate)
	}

	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}

	if !audio.ValidFrameDuration(c.FrameMs) {
		return fmt.Errorf("frame_ms must be 10, 20 or 30, got %d", c.FrameMs)
	}

	return nil
}

// Validate validates recording configuration
func (r *RecordingConfig) Validate() error {
	if r.RecordSeconds <= 0 {
		return fmt.Errorf("record_seconds must be positive, got %f", r.RecordSeconds)
	}

	if r.MaxRecordSeconds < r.RecordSeconds {
		return fmt.Errorf("max_record_seconds (%f) must be at least record_seconds (%f)",
			r.MaxRecordSeconds, r.RecordSeconds)
	}

	if r.RequiredSilenceFrames < 0 {
		return fmt.Errorf("required_silence_frames cannot be negative, got %d", r.RequiredSilenceFrames)
	}

	if r.VADMode < 0 || r.VADMode > 3 {
		return fmt.Errorf("vad_mode must be between 0 and 3, got %d", r.VADMode)
	}

	if r.SaveWAV && r.WAVDir == "" {
		return fmt.Errorf("wav_dir cannot be empty when save_wav is enabled")
	}

	return nil
}

// Validate validates conversion configuration
func (c *ConversionConfig) Validate() error {
	switch c.Backend {
	case "ffmpeg":
		if c.FFmpegPath == "" {
			return fmt.Errorf("ffmpeg_path cannot be empty for the ffmpeg backend")
		}
	case "native":
	default:
		return fmt.Errorf("backend must be 'ffmpeg' or 'native', got '%s'", c.Backend)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	if c.TargetSampleRate < 8000 {
		return fmt.Errorf("target_sample_rate must be at least 8000 Hz, got %d", c.TargetSampleRate)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Engine {
	case "whisper_cpp":
		if t.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty for the whisper_cpp engine")
		}
		if t.Threads < 1 {
			return fmt.Errorf("threads must be at least 1, got %d", t.Threads)
		}
	case "http":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the http engine")
		}
	case "openai":
		if t.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty for the openai engine")
		}
	default:
		return fmt.Errorf("engine must be one of [whisper_cpp, http, openai], got '%s'", t.Engine)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

var promptKey = regexp.MustCompile(`^P[1-9]$`)

// Validate validates completion configuration
func (c *CompletionConfig) Validate() error {
	if c.APIKey == "" && c.BaseURL == "" {
		return fmt.Errorf("api_key cannot be empty (set it in the file or %s)", EnvOpenAIAPIKey)
	}

	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", c.MaxTokens)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", c.Temperature)
	}

	if c.MaxConsecutiveStreamErrors < 1 {
		return fmt.Errorf("max_consecutive_stream_errors must be at least 1, got %d", c.MaxConsecutiveStreamErrors)
	}

	for key := range c.Prompts {
		if !promptKey.MatchString(key) {
			return fmt.Errorf("prompt keys must be P1..P9, got '%s'", key)
		}
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 0 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 0 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits cannot be negative")
	}

	return nil
}

// Format returns the native capture format.
func (c *CaptureConfig) Format() audio.Format {
	return audio.Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

// GetRecordDuration returns the target chunk length as a time.Duration
func (r *RecordingConfig) GetRecordDuration() time.Duration {
	return time.Duration(r.RecordSeconds * float64(time.Second))
}

// GetMaxRecordDuration returns the chunk ceiling as a time.Duration
func (r *RecordingConfig) GetMaxRecordDuration() time.Duration {
	return time.Duration(r.MaxRecordSeconds * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// Addr returns the HTTP listen address.
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}
