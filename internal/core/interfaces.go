// Package core defines the core business types and capability interfaces for the
// narration pipeline.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// BackendKind names the synthesis backend family a voice is served by.
type BackendKind string

const (
	// BackendSpeaker is the multi-speaker synthesizer (VCTK speaker ids).
	BackendSpeaker BackendKind = "speaker"
	// BackendCloud is the cloud fallback synthesizer (locale voices).
	BackendCloud BackendKind = "cloud"
)

// Voice is one entry of the fixed voice catalog. The pipeline treats it as
// opaque and hands it to the backend unchanged.
type Voice struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Backend     BackendKind `json:"backend"`
}

// Synthesizer converts a single chunk of text to WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
	Name() string
	// Degrades reports whether a failed chunk may be skipped instead of
	// aborting the whole pass.
	Degrades() bool
}

// VoiceConverter re-voices source WAV audio onto the speaker of a target sample.
type VoiceConverter interface {
	Convert(ctx context.Context, source, target []byte) ([]byte, error)
	Name() string
}

// HealthChecker is implemented by backends that can be probed before a pass.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// TextExtractor returns the text of every page of a document. Pages without
// text yield an empty string.
type TextExtractor interface {
	Extract(ctx context.Context, document []byte) ([]string, error)
}
