// Package pipeline turns a PDF into narrated audio: the base pass speaks the
// document with a catalog voice, and the clone pass re-voices that audio onto
// a user supplied sample.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/talktwin/internal/core"
	"github.com/book-expert/talktwin/internal/pdftext"
	"github.com/book-expert/talktwin/internal/tts"
	"github.com/book-expert/talktwin/internal/tts/audio"
	"github.com/book-expert/talktwin/internal/tts/text"
	"github.com/book-expert/talktwin/internal/tts/ttsutils"
	"github.com/book-expert/talktwin/internal/workspace"
)

// GapPolicy decides what a chunk the degrading backend skipped sounds like.
type GapPolicy string

const (
	// GapSilence inserts silence sized by the chunk length.
	GapSilence GapPolicy = "silence"
	// GapSkip drops the chunk from the merge.
	GapSkip GapPolicy = "skip"
)

// DefaultSilencePerChar approximates speaking pace for gap silence.
const DefaultSilencePerChar = 60 * time.Millisecond

var (
	ErrUnknownVoice      = tts.ErrUnknownVoice
	ErrNoText            = errors.New("document contains no readable text")
	ErrNoDocument        = errors.New("no PDF provided")
	ErrBaseRequired      = errors.New("base audio must be generated first")
	ErrNoVoiceSample     = errors.New("no voice sample provided")
	ErrWorkspaceRequired = errors.New("workspace is required")
	ErrInvalidGapPolicy  = errors.New("invalid gap policy")
	ErrEmptyBackendAudio = errors.New("backend returned no audio")
)

// Options configures a Pipeline.
type Options struct {
	MaxChunkLength int
	GapPolicy      GapPolicy
	SilencePerChar time.Duration
	ChunkTimeout   time.Duration
	HealthTimeout  time.Duration
}

// Pipeline runs the base and clone passes.
type Pipeline struct {
	extractor  core.TextExtractor
	normalizer *text.Normalizer
	chunker    *text.Chunker
	catalog    *tts.Catalog
	backends   *tts.Registry
	dispatcher *Dispatcher
	options    Options
	log        *logger.Logger
}

// New validates the options and wires the pipeline.
func New(
	opts Options,
	extractor core.TextExtractor,
	catalog *tts.Catalog,
	backends *tts.Registry,
	log *logger.Logger,
) (*Pipeline, error) {
	chunker, err := text.NewChunker(opts.MaxChunkLength)
	if err != nil {
		return nil, err
	}

	switch opts.GapPolicy {
	case "":
		opts.GapPolicy = GapSilence
	case GapSilence, GapSkip:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidGapPolicy, opts.GapPolicy)
	}

	if opts.SilencePerChar <= 0 {
		opts.SilencePerChar = DefaultSilencePerChar
	}

	return &Pipeline{
		extractor:  extractor,
		normalizer: text.NewNormalizer(),
		chunker:    chunker,
		catalog:    catalog,
		backends:   backends,
		dispatcher: NewDispatcher(log, opts.ChunkTimeout),
		options:    opts,
		log:        log,
	}, nil
}

// Catalog returns the voices the pipeline accepts.
func (p *Pipeline) Catalog() *tts.Catalog {
	return p.catalog
}

// BaseRequest is the input of a base pass.
type BaseRequest struct {
	PDF       []byte
	Name      string
	Voice     string
	Workspace *workspace.Workspace
	Progress  ProgressFunc
}

// BaseResult is the handle a clone pass consumes. It is persisted as the
// workspace manifest.
type BaseResult struct {
	Name      string       `json:"name"`
	Voice     core.Voice   `json:"voice"`
	Workspace string       `json:"workspace"`
	Chunks    []text.Chunk `json:"chunks"`
	Audio     []ChunkAudio `json:"audio"`
	Gaps      []Gap        `json:"gaps,omitempty"`
	Output    string       `json:"output"`
	Info      *audio.Info  `json:"info"`
}

// CloneResult is the outcome of a clone pass.
type CloneResult struct {
	Audio  []ChunkAudio `json:"audio"`
	Output string       `json:"output"`
	Info   *audio.Info  `json:"info"`
}

// Base extracts, normalizes and chunks the document, voices every chunk and
// merges the result into <name>_base.wav in the workspace.
func (p *Pipeline) Base(ctx context.Context, req BaseRequest) (*BaseResult, error) {
	if req.Workspace == nil {
		return nil, ErrWorkspaceRequired
	}

	if len(req.PDF) == 0 {
		return nil, ErrNoDocument
	}

	voice, err := p.catalog.Lookup(req.Voice)
	if err != nil {
		return nil, err
	}

	synth, err := p.backends.SynthesizerFor(voice)
	if err != nil {
		return nil, err
	}

	err = p.healthCheck(ctx, synth)
	if err != nil {
		return nil, err
	}

	pages, err := p.extractor.Extract(ctx, req.PDF)
	if err != nil {
		return nil, fmt.Errorf("text extraction failed: %w", err)
	}

	clean := p.normalizer.Normalize(pdftext.JoinPages(pages))
	if clean == "" {
		return nil, ErrNoText
	}

	chunks := p.chunker.Split(clean)

	p.log.Info("Base pass for '%s': %d pages, %d characters, %d chunks, voice %s via %s",
		req.Name, len(pages), len(clean), len(chunks), voice.ID, synth.Name())

	ws := req.Workspace

	// The previous run's chunk files are about to go away, so its manifest no
	// longer describes anything a clone pass could use.
	err = RemoveManifest(ws.ManifestPath())
	if err != nil {
		return nil, err
	}

	err = ws.Reset(ws.ChunksDir())
	if err != nil {
		return nil, err
	}

	synthesis, err := p.dispatcher.Synthesize(ctx, chunks, voice, synth, ws.ChunksDir(), req.Progress)
	if err != nil {
		return nil, err
	}

	output := ws.OutputPath(ttsutils.OutputName(req.Name, ttsutils.SuffixBase))

	info, err := audio.Merge(Segments(chunks, synthesis.Audio, synthesis.Gaps, p.options.GapPolicy, p.options.SilencePerChar), output)
	if err != nil {
		return nil, fmt.Errorf("failed to merge base audio: %w", err)
	}

	result := &BaseResult{
		Name:      req.Name,
		Voice:     voice,
		Workspace: ws.Root(),
		Chunks:    chunks,
		Audio:     synthesis.Audio,
		Gaps:      synthesis.Gaps,
		Output:    output,
		Info:      info,
	}

	err = SaveManifest(ws.ManifestPath(), result)
	if err != nil {
		return nil, err
	}

	p.log.Info("Base audio '%s' ready: %s, %d gaps", output, info.Duration, len(synthesis.Gaps))

	return result, nil
}

// Clone converts every base chunk, in the same order, onto the voice of
// sample and merges the result into <name>_my_voice.wav.
func (p *Pipeline) Clone(ctx context.Context, base *BaseResult, sample []byte, progress ProgressFunc) (*CloneResult, error) {
	if base == nil || len(base.Audio) == 0 {
		return nil, ErrBaseRequired
	}

	if len(sample) == 0 {
		return nil, ErrNoVoiceSample
	}

	converter, err := p.backends.Converter()
	if err != nil {
		return nil, err
	}

	err = p.healthCheck(ctx, converter)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.FromRoot(base.Workspace)
	if err != nil {
		return nil, err
	}

	err = os.WriteFile(ws.SamplePath(), sample, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to store voice sample: %w", err)
	}

	err = ws.Reset(ws.ClonedDir())
	if err != nil {
		return nil, err
	}

	p.log.Info("Clone pass for '%s': %d chunks via %s", base.Name, len(base.Audio), converter.Name())

	converted, err := p.dispatcher.Convert(ctx, base.Audio, sample, converter, ws.ClonedDir(), progress)
	if err != nil {
		return nil, err
	}

	output := ws.OutputPath(ttsutils.OutputName(base.Name, ttsutils.SuffixCloned))

	info, err := audio.Merge(Segments(base.Chunks, converted, base.Gaps, p.options.GapPolicy, p.options.SilencePerChar), output)
	if err != nil {
		return nil, fmt.Errorf("failed to merge cloned audio: %w", err)
	}

	p.log.Info("Cloned audio '%s' ready: %s", output, info.Duration)

	return &CloneResult{Audio: converted, Output: output, Info: info}, nil
}

func (p *Pipeline) healthCheck(ctx context.Context, backend any) error {
	checker, ok := backend.(core.HealthChecker)
	if !ok {
		return nil
	}

	checkCtx := ctx

	if p.options.HealthTimeout > 0 {
		var cancel context.CancelFunc

		checkCtx, cancel = context.WithTimeout(ctx, p.options.HealthTimeout)
		defer cancel()
	}

	err := checker.HealthCheck(checkCtx)
	if err != nil {
		return fmt.Errorf("speech backend is not available: %w", err)
	}

	return nil
}
