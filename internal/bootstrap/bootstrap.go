// Package bootstrap wires the configured backends into a narration pipeline
// for the talktwin binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/book-expert/logger"
	"github.com/book-expert/talktwin/internal/config"
	"github.com/book-expert/talktwin/internal/core"
	"github.com/book-expert/talktwin/internal/pdftext"
	"github.com/book-expert/talktwin/internal/pipeline"
	"github.com/book-expert/talktwin/internal/tts"
	"github.com/joho/godotenv"
)

// NewLogger creates a logger writing name under dir.
func NewLogger(dir, name string) (*logger.Logger, error) {
	log, err := logger.New(dir, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger %s: %w", name, err)
	}

	return log, nil
}

// LoadDotEnv reads secrets from files in the .env format. A missing file is
// not an error.
func LoadDotEnv(log *logger.Logger, files ...string) error {
	err := godotenv.Load(files...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to load environment file: %w", err)
	}

	log.Info("Environment file loaded.")

	return nil
}

// Backends registers every enabled synthesis backend and the voice
// converter. The speech service takes precedence over the local command line
// for the speaker voices.
func Backends(ctx context.Context, cfg *config.Config, log *logger.Logger) (*tts.Registry, error) {
	registry := tts.NewRegistry()

	switch {
	case cfg.TTS.Enabled:
		client := tts.NewHTTPClient(cfg.TTS.URL, cfg.ServiceTimeout())

		err := registry.Register(core.BackendSpeaker,
			tts.NewSpeakerSynthesizer(client, cfg.TTS.Language, cfg.TTS.Temperature))
		if err != nil {
			return nil, err
		}

		registry.SetConverter(tts.NewHTTPConverter(client))
		log.Info("Speech service backend at %s", client.BaseURL())
	case cfg.Coqui.Enabled:
		processor, err := tts.NewCommandProcessor(tts.CommandConfig{
			Binary:          cfg.Coqui.Binary,
			Model:           cfg.Coqui.Model,
			ConversionModel: cfg.Coqui.ConversionModel,
		}, log)
		if err != nil {
			return nil, err
		}

		err = registry.Register(core.BackendSpeaker, processor)
		if err != nil {
			return nil, err
		}

		if cfg.Coqui.ConversionModel != "" {
			registry.SetConverter(processor)
		}

		log.Info("Coqui command line backend: %s (%s)", cfg.Coqui.Binary, cfg.Coqui.Model)
	}

	if cfg.CloudTTS.Enabled {
		cloud, err := tts.NewCloudSynthesizer(ctx, tts.CloudConfig{
			APIKey:          cfg.CloudTTS.APIKey,
			CredentialsFile: cfg.CloudTTS.CredentialsFile,
			Endpoint:        cfg.CloudTTS.Endpoint,
			SampleRate:      cfg.CloudTTS.SampleRate,
			SpeakingRate:    cfg.CloudTTS.SpeakingRate,
		})
		if err != nil {
			return nil, err
		}

		err = registry.Register(core.BackendCloud, cloud)
		if err != nil {
			return nil, err
		}

		log.Info("Google Cloud Text-to-Speech backend enabled")
	}

	if _, err := registry.Converter(); err != nil {
		log.Warn("No voice converter configured; the clone pass is unavailable")
	}

	return registry, nil
}

// Pipeline builds the narration pipeline from the configuration. Only voices
// of registered backends are offered.
func Pipeline(ctx context.Context, cfg *config.Config, log *logger.Logger) (*pipeline.Pipeline, error) {
	registry, err := Backends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	catalog := tts.CatalogFor(registry.Kinds()...)

	narrator, err := pipeline.New(pipeline.Options{
		MaxChunkLength: cfg.Pipeline.MaxChunkLength,
		GapPolicy:      pipeline.GapPolicy(cfg.Pipeline.GapPolicy),
		SilencePerChar: cfg.SilencePerChar(),
		ChunkTimeout:   cfg.ChunkTimeout(),
		HealthTimeout:  cfg.HealthTimeout(),
	}, pdftext.New(log), catalog, registry, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	log.Info("Pipeline ready with %d voices from backends %v", catalog.Len(), registry.Kinds())

	return narrator, nil
}
