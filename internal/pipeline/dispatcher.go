package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/talktwin/internal/core"
	"github.com/book-expert/talktwin/internal/tts/audio"
	"github.com/book-expert/talktwin/internal/tts/text"
)

const filePermissions = 0o600

// Pass names the two passes of a narration.
type Pass string

const (
	// PassBase synthesizes the document with a catalog voice.
	PassBase Pass = "base"
	// PassClone re-voices the base audio onto a user sample.
	PassClone Pass = "clone"
)

// Progress is reported after every chunk of a pass.
type Progress struct {
	Pass     Pass    `json:"pass"`
	Index    int     `json:"index"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
	Status   string  `json:"status"`
	Warning  string  `json:"warning,omitempty"`
}

// ProgressFunc receives progress updates. It is called synchronously from
// the pass and must not block.
type ProgressFunc func(Progress)

// ChunkAudio is the WAV file produced for the chunk with the same index.
type ChunkAudio struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
}

// Gap is a chunk the degrading backend could not voice.
type Gap struct {
	Index  int    `json:"index"`
	Length int    `json:"length"`
	Reason string `json:"reason"`
}

// ChunkError aborts a pass on the chunk that failed.
type ChunkError struct {
	Pass  Pass
	Index int
	Err   error
}

// Error implements the error interface.
func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s pass failed on chunk %d: %v", e.Pass, e.Index, e.Err)
}

// Unwrap returns the backend error.
func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Synthesis is the outcome of a base dispatch.
type Synthesis struct {
	Audio []ChunkAudio
	Gaps  []Gap
}

// Dispatcher feeds chunks one at a time, in index order, to a backend and
// stores each result as its own file.
type Dispatcher struct {
	log     *logger.Logger
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher. A positive timeout bounds every
// backend call.
func NewDispatcher(log *logger.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{log: log, timeout: timeout}
}

// ChunkFileName is the name of the base audio of chunk index.
func ChunkFileName(index int) string {
	return fmt.Sprintf("chunk_%d.wav", index)
}

// ClonedFileName is the name of the cloned audio of chunk index.
func ClonedFileName(index int) string {
	return fmt.Sprintf("cloned_%d.wav", index)
}

// Synthesize voices every chunk into dir. A strict backend aborts on the
// first failure; a degrading one records the chunk as a gap and continues.
func (d *Dispatcher) Synthesize(
	ctx context.Context,
	chunks []text.Chunk,
	voice core.Voice,
	synth core.Synthesizer,
	dir string,
	progress ProgressFunc,
) (*Synthesis, error) {
	result := &Synthesis{Audio: make([]ChunkAudio, 0, len(chunks))}
	total := len(chunks)

	for position, chunk := range chunks {
		data, err := d.call(ctx, func(callCtx context.Context) ([]byte, error) {
			return synth.Synthesize(callCtx, chunk.Text, voice)
		})

		warning := ""

		switch {
		case err == nil:
			path := filepath.Join(dir, ChunkFileName(chunk.Index))

			writeErr := os.WriteFile(path, data, filePermissions)
			if writeErr != nil {
				return nil, &ChunkError{Pass: PassBase, Index: chunk.Index, Err: writeErr}
			}

			result.Audio = append(result.Audio, ChunkAudio{Index: chunk.Index, Path: path})
		case ctx.Err() != nil || !synth.Degrades():
			return nil, &ChunkError{Pass: PassBase, Index: chunk.Index, Err: err}
		default:
			warning = fmt.Sprintf("chunk %d skipped: %v", chunk.Index, err)
			d.log.Warn("Chunk %d failed on %s, leaving a gap: %v", chunk.Index, synth.Name(), err)

			result.Gaps = append(result.Gaps, Gap{Index: chunk.Index, Length: len(chunk.Text), Reason: err.Error()})
		}

		report(progress, PassBase, position+1, total, warning)
	}

	return result, nil
}

// Convert re-voices every base chunk file into dir, keeping indices.
// Conversion is strict: the first failure aborts.
func (d *Dispatcher) Convert(
	ctx context.Context,
	sources []ChunkAudio,
	sample []byte,
	converter core.VoiceConverter,
	dir string,
	progress ProgressFunc,
) ([]ChunkAudio, error) {
	converted := make([]ChunkAudio, 0, len(sources))
	total := len(sources)

	for position, source := range sources {
		sourceData, err := os.ReadFile(source.Path)
		if err != nil {
			return nil, &ChunkError{Pass: PassClone, Index: source.Index, Err: err}
		}

		data, err := d.call(ctx, func(callCtx context.Context) ([]byte, error) {
			return converter.Convert(callCtx, sourceData, sample)
		})
		if err != nil {
			return nil, &ChunkError{Pass: PassClone, Index: source.Index, Err: err}
		}

		path := filepath.Join(dir, ClonedFileName(source.Index))

		err = os.WriteFile(path, data, filePermissions)
		if err != nil {
			return nil, &ChunkError{Pass: PassClone, Index: source.Index, Err: err}
		}

		converted = append(converted, ChunkAudio{Index: source.Index, Path: path})

		report(progress, PassClone, position+1, total, "")
	}

	return converted, nil
}

func (d *Dispatcher) call(ctx context.Context, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	callCtx := ctx

	if d.timeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	data, err := fn(callCtx)
	if err == nil && len(data) == 0 {
		err = ErrEmptyBackendAudio
	}

	return data, err
}

func report(progress ProgressFunc, pass Pass, done, total int, warning string) {
	if progress == nil {
		return
	}

	verb := "Processing"
	if pass == PassClone {
		verb = "Cloning"
	}

	progress(Progress{
		Pass:     pass,
		Index:    done,
		Total:    total,
		Fraction: float64(done) / float64(total),
		Status:   fmt.Sprintf("%s chunk %d/%d", verb, done, total),
		Warning:  warning,
	})
}

// Segments lays out the merge of a pass: the audio files in chunk order,
// with each gap either dropped or filled with silence proportional to the
// length of the chunk text.
func Segments(chunks []text.Chunk, files []ChunkAudio, gaps []Gap, policy GapPolicy, perChar time.Duration) []audio.Segment {
	byIndex := make(map[int]string, len(files))
	for _, file := range files {
		byIndex[file.Index] = file.Path
	}

	gapLength := make(map[int]int, len(gaps))
	for _, gap := range gaps {
		gapLength[gap.Index] = gap.Length
	}

	segments := make([]audio.Segment, 0, len(chunks))

	for _, chunk := range chunks {
		if path, ok := byIndex[chunk.Index]; ok {
			segments = append(segments, audio.FileSegment(path))

			continue
		}

		length, isGap := gapLength[chunk.Index]
		if isGap && policy == GapSilence && perChar > 0 {
			segments = append(segments, audio.SilenceSegment(time.Duration(length)*perChar))
		}
	}

	return segments
}
