package tts

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/book-expert/talktwin/internal/core"
)

// Registry maps each backend kind to the synthesizer serving it and holds
// the voice converter of the clone pass.
type Registry struct {
	mu           sync.RWMutex
	synthesizers map[core.BackendKind]core.Synthesizer
	converter    core.VoiceConverter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		synthesizers: make(map[core.BackendKind]core.Synthesizer),
	}
}

// Register binds a synthesizer to a backend kind.
func (r *Registry) Register(kind core.BackendKind, synth core.Synthesizer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.synthesizers[kind]; exists {
		return fmt.Errorf("%w: %s", ErrBackendExists, kind)
	}

	r.synthesizers[kind] = synth

	return nil
}

// SetConverter installs the voice converter.
func (r *Registry) SetConverter(converter core.VoiceConverter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.converter = converter
}

// SynthesizerFor returns the synthesizer serving the voice's backend.
func (r *Registry) SynthesizerFor(voice core.Voice) (core.Synthesizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	synth, exists := r.synthesizers[voice.Backend]
	if !exists {
		return nil, fmt.Errorf("%w: %s backend for voice %q", ErrBackendNotConfigured, voice.Backend, voice.ID)
	}

	return synth, nil
}

// Converter returns the configured voice converter.
func (r *Registry) Converter() (core.VoiceConverter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.converter == nil {
		return nil, ErrConverterMissing
	}

	return r.converter, nil
}

// Kinds returns the registered backend kinds in name order.
func (r *Registry) Kinds() []core.BackendKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedKinds()
}

func (r *Registry) sortedKinds() []core.BackendKind {
	kinds := make([]core.BackendKind, 0, len(r.synthesizers))
	for kind := range r.synthesizers {
		kinds = append(kinds, kind)
	}

	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// HealthCheck probes every registered backend that supports it.
func (r *Registry) HealthCheck(ctx context.Context) error {
	type namedChecker struct {
		name    string
		checker core.HealthChecker
	}

	r.mu.RLock()

	checkers := make([]namedChecker, 0, len(r.synthesizers)+1)

	for _, kind := range r.sortedKinds() {
		synth := r.synthesizers[kind]
		if checker, ok := synth.(core.HealthChecker); ok {
			checkers = append(checkers, namedChecker{name: synth.Name(), checker: checker})
		}
	}

	if checker, ok := r.converter.(core.HealthChecker); ok {
		checkers = append(checkers, namedChecker{name: r.converter.Name(), checker: checker})
	}

	r.mu.RUnlock()

	for _, entry := range checkers {
		err := entry.checker.HealthCheck(ctx)
		if err != nil {
			return WrapError(entry.name, err)
		}
	}

	return nil
}
