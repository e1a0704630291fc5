package tts

import (
	"bytes"
	"context"

	"github.com/book-expert/talktwin/internal/core"
)

const wavHeaderSize = 12

// SpeakerSynthesizer voices text with one speaker of the multi-speaker
// service. A failed chunk aborts the pass.
type SpeakerSynthesizer struct {
	client      *HTTPClient
	language    string
	temperature float64
}

// NewSpeakerSynthesizer wraps the service client. Zero language or
// temperature fall back to the service defaults.
func NewSpeakerSynthesizer(client *HTTPClient, language string, temperature float64) *SpeakerSynthesizer {
	return &SpeakerSynthesizer{
		client:      client,
		language:    language,
		temperature: temperature,
	}
}

// Synthesize implements core.Synthesizer.
func (s *SpeakerSynthesizer) Synthesize(ctx context.Context, text string, voice core.Voice) ([]byte, error) {
	audio, err := s.client.GenerateSpeech(ctx, Request{
		Text:        text,
		Speaker:     voice.ID,
		Language:    s.language,
		Temperature: s.temperature,
	})
	if err != nil {
		return nil, err
	}

	if !looksLikeWAV(audio) {
		return nil, WrapError(s.Name(), ErrNotWAV)
	}

	return audio, nil
}

// Name implements core.Synthesizer.
func (s *SpeakerSynthesizer) Name() string {
	return "multi-speaker"
}

// Degrades implements core.Synthesizer.
func (s *SpeakerSynthesizer) Degrades() bool {
	return false
}

// HealthCheck implements core.HealthChecker.
func (s *SpeakerSynthesizer) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

// HTTPConverter re-voices speech through the conversion endpoint of the
// speech service.
type HTTPConverter struct {
	client *HTTPClient
}

// NewHTTPConverter wraps the service client.
func NewHTTPConverter(client *HTTPClient) *HTTPConverter {
	return &HTTPConverter{client: client}
}

// Convert implements core.VoiceConverter.
func (c *HTTPConverter) Convert(ctx context.Context, source, target []byte) ([]byte, error) {
	audio, err := c.client.ConvertVoice(ctx, source, target)
	if err != nil {
		return nil, err
	}

	if !looksLikeWAV(audio) {
		return nil, WrapError(c.Name(), ErrNotWAV)
	}

	return audio, nil
}

// Name implements core.VoiceConverter.
func (c *HTTPConverter) Name() string {
	return "voice-conversion"
}

// HealthCheck implements core.HealthChecker.
func (c *HTTPConverter) HealthCheck(ctx context.Context) error {
	return c.client.HealthCheck(ctx)
}

func looksLikeWAV(data []byte) bool {
	return len(data) >= wavHeaderSize &&
		bytes.Equal(data[0:4], []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE"))
}
