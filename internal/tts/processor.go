package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/book-expert/talktwin/internal/core"
)

const filePermissions = 0o600

// CommandConfig configures the local Coqui `tts` command line.
type CommandConfig struct {
	// Binary is the executable name or path, usually "tts".
	Binary string
	// Model is the multi-speaker model, e.g. "tts_models/en/vctk/vits".
	Model string
	// ConversionModel is the voice conversion model, e.g.
	// "voice_conversion_models/multilingual/vctk/freevc24".
	ConversionModel string
}

// CommandProcessor runs the Coqui command line once per chunk. It serves as
// both a synthesizer and a voice converter when no speech service is running.
type CommandProcessor struct {
	config CommandConfig
	log    *logger.Logger
}

// NewCommandProcessor validates the configuration.
func NewCommandProcessor(cfg CommandConfig, log *logger.Logger) (*CommandProcessor, error) {
	if cfg.Binary == "" || cfg.Model == "" {
		return nil, ErrCommandNotConfigured
	}

	return &CommandProcessor{config: cfg, log: log}, nil
}

// Synthesize implements core.Synthesizer.
func (p *CommandProcessor) Synthesize(ctx context.Context, text string, voice core.Voice) ([]byte, error) {
	if text == "" {
		return nil, ErrTextEmpty
	}

	return p.run(ctx, func(dir, outPath string) ([]string, error) {
		return []string{
			"--text", text,
			"--model_name", p.config.Model,
			"--speaker_idx", voice.ID,
			"--out_path", outPath,
		}, nil
	})
}

// Convert implements core.VoiceConverter.
func (p *CommandProcessor) Convert(ctx context.Context, source, target []byte) ([]byte, error) {
	if len(source) == 0 {
		return nil, ErrSourceAudioEmpty
	}

	if len(target) == 0 {
		return nil, ErrVoiceSampleEmpty
	}

	if p.config.ConversionModel == "" {
		return nil, fmt.Errorf("%w: no conversion model", ErrCommandNotConfigured)
	}

	return p.run(ctx, func(dir, outPath string) ([]string, error) {
		sourcePath := filepath.Join(dir, "source.wav")
		targetPath := filepath.Join(dir, "target.wav")

		err := os.WriteFile(sourcePath, source, filePermissions)
		if err == nil {
			err = os.WriteFile(targetPath, target, filePermissions)
		}

		if err != nil {
			return nil, fmt.Errorf("failed to stage conversion input: %w", err)
		}

		return []string{
			"--model_name", p.config.ConversionModel,
			"--source_wav", sourcePath,
			"--target_wav", targetPath,
			"--out_path", outPath,
		}, nil
	})
}

// Name implements core.Synthesizer and core.VoiceConverter.
func (p *CommandProcessor) Name() string {
	return "coqui-cli"
}

// Degrades implements core.Synthesizer.
func (p *CommandProcessor) Degrades() bool {
	return false
}

// run executes the binary in a scratch directory and returns the WAV it
// wrote to the --out_path.
func (p *CommandProcessor) run(
	ctx context.Context,
	buildArgs func(dir, outPath string) ([]string, error),
) ([]byte, error) {
	dir, err := os.MkdirTemp("", "talktwin-cli-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	defer func() {
		removeErr := os.RemoveAll(dir)
		if removeErr != nil {
			p.log.Warn("Failed to remove scratch directory '%s': %v", dir, removeErr)
		}
	}()

	outPath := filepath.Join(dir, "out.wav")

	args, err := buildArgs(dir, outPath)
	if err != nil {
		return nil, err
	}

	// #nosec G204 -- binary comes from validated configuration, text is a single argument
	cmd := exec.CommandContext(ctx, p.config.Binary, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, WrapError(p.Name(), fmt.Errorf("binary execution failed: %w - output: %s", err, string(output)))
	}

	audioData, err := os.ReadFile(outPath)
	if err != nil {
		return nil, WrapError(p.Name(), fmt.Errorf("failed to read audio output: %w", err))
	}

	if !looksLikeWAV(audioData) {
		return nil, WrapError(p.Name(), ErrNotWAV)
	}

	return audioData, nil
}
