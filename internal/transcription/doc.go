// Package transcription turns utterance chunks into text.
//
// Engine is the speech-to-text collaborator. Three implementations are
// provided: whisper.cpp through its Go bindings (build tag whisper_cpp), an
// HTTP client for whisper-server style endpoints with retry and backoff, and
// the OpenAI transcription API. Worker is the consumer loop that converts each
// chunk, runs the engine and appends the text to the transcript.
package transcription
