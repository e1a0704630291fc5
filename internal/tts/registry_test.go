package tts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/book-expert/talktwin/internal/core"
	"github.com/book-expert/talktwin/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SynthesizerFor(t *testing.T) {
	t.Parallel()

	speaker := tts.NewMock()
	cloud := tts.NewMock()
	cloud.Degrading = true

	registry := tts.NewRegistry()
	require.NoError(t, registry.Register(core.BackendSpeaker, speaker))
	require.NoError(t, registry.Register(core.BackendCloud, cloud))
	require.ErrorIs(t, registry.Register(core.BackendCloud, cloud), tts.ErrBackendExists)

	synth, err := registry.SynthesizerFor(core.Voice{ID: "p225", Backend: core.BackendSpeaker})
	require.NoError(t, err)
	assert.Same(t, speaker, synth)

	synth, err = registry.SynthesizerFor(core.Voice{ID: "en", Backend: core.BackendCloud})
	require.NoError(t, err)
	assert.True(t, synth.Degrades())

	assert.Equal(t, []core.BackendKind{core.BackendCloud, core.BackendSpeaker}, registry.Kinds())
}

func TestRegistry_MissingBackend(t *testing.T) {
	t.Parallel()

	registry := tts.NewRegistry()

	_, err := registry.SynthesizerFor(core.Voice{ID: "en", Backend: core.BackendCloud})
	require.ErrorIs(t, err, tts.ErrBackendNotConfigured)

	_, err = registry.Converter()
	require.ErrorIs(t, err, tts.ErrConverterMissing)
}

func TestRegistry_HealthCheck(t *testing.T) {
	t.Parallel()

	speaker := tts.NewMock()
	converter := tts.NewMock()

	registry := tts.NewRegistry()
	require.NoError(t, registry.Register(core.BackendSpeaker, speaker))
	registry.SetConverter(converter)

	require.NoError(t, registry.HealthCheck(context.Background()))
	assert.Len(t, speaker.CallsTo("HealthCheck"), 1)
	assert.Len(t, converter.CallsTo("HealthCheck"), 1)

	errDown := errors.New("connection refused")
	converter.HealthFunc = func(context.Context) error { return errDown }

	err := registry.HealthCheck(context.Background())
	require.ErrorIs(t, err, errDown)
}
