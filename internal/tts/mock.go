package tts

import (
	"context"
	"sync"

	"github.com/book-expert/talktwin/internal/core"
	"github.com/book-expert/talktwin/internal/tts/audio"
)

// MockSampleRate is the sample rate of the audio the default mock returns.
const MockSampleRate = 8000

// Mock implements core.Synthesizer, core.VoiceConverter and
// core.HealthChecker for tests. All methods can be customized via function
// fields.
type Mock struct {
	// SynthesizeFunc is called when Synthesize is invoked. If nil, returns
	// one mono frame per character whose value is the text length.
	SynthesizeFunc func(ctx context.Context, text string, voice core.Voice) ([]byte, error)

	// ConvertFunc is called when Convert is invoked. If nil, returns the
	// source unchanged.
	ConvertFunc func(ctx context.Context, source, target []byte) ([]byte, error)

	// HealthFunc is called when HealthCheck is invoked. If nil, healthy.
	HealthFunc func(ctx context.Context) error

	// Degrading is returned by Degrades.
	Degrading bool

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Text   string
	Voice  string
}

// NewMock creates a new mock backend with sensible defaults.
func NewMock() *Mock {
	return &Mock{}
}

// MockAudio returns the WAV the default mock produces for text.
func MockAudio(text string) []byte {
	samples := make([]int16, len(text))
	for i := range samples {
		samples[i] = int16(len(text))
	}

	return audio.WrapPCM16(samples, MockSampleRate, 1)
}

// Synthesize calls SynthesizeFunc and records the call.
func (m *Mock) Synthesize(ctx context.Context, text string, voice core.Voice) ([]byte, error) {
	m.recordCall(MockCall{Method: "Synthesize", Text: text, Voice: voice.ID})

	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text, voice)
	}

	return MockAudio(text), nil
}

// Convert calls ConvertFunc and records the call.
func (m *Mock) Convert(ctx context.Context, source, target []byte) ([]byte, error) {
	m.recordCall(MockCall{Method: "Convert"})

	if m.ConvertFunc != nil {
		return m.ConvertFunc(ctx, source, target)
	}

	return append([]byte(nil), source...), nil
}

// HealthCheck calls HealthFunc and records the call.
func (m *Mock) HealthCheck(ctx context.Context) error {
	m.recordCall(MockCall{Method: "HealthCheck"})

	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}

	return nil
}

// Name implements core.Synthesizer.
func (m *Mock) Name() string {
	return "mock"
}

// Degrades implements core.Synthesizer.
func (m *Mock) Degrades() bool {
	return m.Degrading
}

// Calls returns a copy of all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]MockCall(nil), m.calls...)
}

// CallsTo returns the recorded calls of one method.
func (m *Mock) CallsTo(method string) []MockCall {
	var matching []MockCall

	for _, call := range m.Calls() {
		if call.Method == method {
			matching = append(matching, call)
		}
	}

	return matching
}

func (m *Mock) recordCall(call MockCall) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, call)
}
