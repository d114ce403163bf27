// Package stt provides speech-to-text for telephony audio buffers.
package stt

import (
	"context"
	"io"
)

// Provider is the interface for speech-to-text services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts audio to text. An empty transcript means no
	// speech was detected; that is not an error.
	Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Model      string // Provider-specific model
	Language   string // ISO language code (default: "en")
	Encoding   string // Audio encoding (default: "mulaw" for telephony)
	SampleRate int    // Audio sample rate in Hz (default: 8000)
	Channels   int    // Channel count (default: 1)
}

// Transcript is the result of transcription.
type Transcript struct {
	Text       string  // Full transcribed text; empty when no speech detected
	Confidence float64 // Provider confidence in [0,1], when reported
	Duration   float64 // Audio duration in seconds, when reported
}
