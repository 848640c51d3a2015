// Command mockstt is a stand-in transcription endpoint for local development.
// It accepts the multipart WAV upload sent by the http engine and answers with
// a fixed text.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/audio"
	"github.com/korolkiewiczk/Youtube-processing-with-transcription-live/internal/transcription"
)

type handler struct {
	text   string
	delay  time.Duration
	logger *slog.Logger
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	info, err := audio.ReadWAVInfo(data)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid WAV: %v", err), http.StatusBadRequest)
		return
	}

	h.logger.Info("Transcription request received",
		slog.String("request_id", r.FormValue("request_id")),
		slog.String("filename", header.Filename),
		slog.Int("size", len(data)),
		slog.Int("sample_rate", int(info.SampleRate)),
		slog.Float64("duration", info.Duration),
		slog.String("language", r.FormValue("language")),
	)

	if h.delay > 0 {
		time.Sleep(h.delay)
	}

	resp := transcription.Response{
		Text:     h.text,
		Language: r.FormValue("language"),
		Duration: info.Duration,
		Segments: []transcription.ResponseSegment{{Start: 0, End: info.Duration, Text: h.text}},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func main() {
	var (
		addr  string
		text  string
		delay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mockstt",
		Short: "Fake transcription endpoint answering every chunk with the same text",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
			mux := http.NewServeMux()
			mux.Handle("/inference", &handler{text: text, delay: delay, logger: logger})

			logger.Info("Mock transcription server starting",
				slog.String("endpoint", "http://"+addr+"/inference"))
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8081", "Listen address")
	cmd.Flags().StringVar(&text, "text", "To jest testowa transkrypcja. ", "Text returned for every chunk")
	cmd.Flags().DurationVar(&delay, "delay", 200*time.Millisecond, "Simulated processing time")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
