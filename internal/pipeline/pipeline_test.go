package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/talktwin/internal/core"
	"github.com/book-expert/talktwin/internal/pipeline"
	"github.com/book-expert/talktwin/internal/tts"
	"github.com/book-expert/talktwin/internal/tts/audio"
	"github.com/book-expert/talktwin/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fakePDF = []byte("%PDF-1.4 fake")

// pageExtractor returns fixed pages regardless of the document.
type pageExtractor []string

func (p pageExtractor) Extract(context.Context, []byte) ([]string, error) {
	return p, nil
}

type fixture struct {
	pipeline  *pipeline.Pipeline
	speaker   *tts.Mock
	cloud     *tts.Mock
	converter *tts.Mock
	workspace *workspace.Workspace
}

func newFixture(t *testing.T, pages []string, opts pipeline.Options) *fixture {
	t.Helper()

	log, err := logger.New(t.TempDir(), "pipeline-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	fix := &fixture{
		speaker:   tts.NewMock(),
		cloud:     tts.NewMock(),
		converter: tts.NewMock(),
	}
	fix.cloud.Degrading = true

	registry := tts.NewRegistry()
	require.NoError(t, registry.Register(core.BackendSpeaker, fix.speaker))
	require.NoError(t, registry.Register(core.BackendCloud, fix.cloud))
	registry.SetConverter(fix.converter)

	if opts.MaxChunkLength == 0 {
		opts.MaxChunkLength = 2000
	}

	fix.pipeline, err = pipeline.New(opts, pageExtractor(pages),
		tts.CatalogFor(core.BackendSpeaker, core.BackendCloud), registry, log)
	require.NoError(t, err)

	fix.workspace, err = workspace.New(t.TempDir())
	require.NoError(t, err)

	return fix
}

func (f *fixture) base(t *testing.T, voice string, progress pipeline.ProgressFunc) (*pipeline.BaseResult, error) {
	t.Helper()

	return f.pipeline.Base(context.Background(), pipeline.BaseRequest{
		PDF:       fakePDF,
		Name:      "book.pdf",
		Voice:     voice,
		Workspace: f.workspace,
		Progress:  progress,
	})
}

func samples(t *testing.T, path string) []int {
	t.Helper()

	buffer, _, err := audio.Decode(path)
	require.NoError(t, err)

	return buffer.Data
}

// repeat returns n copies of value, matching the mock's audio for a chunk of
// length n.
func repeat(value, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = value
	}

	return out
}

func concat(parts ...[]int) []int {
	var out []int
	for _, part := range parts {
		out = append(out, part...)
	}

	return out
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := pipeline.New(pipeline.Options{MaxChunkLength: 0}, pageExtractor(nil), tts.NewCatalog(), tts.NewRegistry(), nil)
	require.Error(t, err)

	_, err = pipeline.New(pipeline.Options{MaxChunkLength: 10, GapPolicy: "louder"},
		pageExtractor(nil), tts.NewCatalog(), tts.NewRegistry(), nil)
	require.ErrorIs(t, err, pipeline.ErrInvalidGapPolicy)
}

func TestBase_EndToEnd(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"Hello World. ", "", "Scan to Download Goodbye."}, pipeline.Options{})

	result, err := fix.base(t, "p225", nil)
	require.NoError(t, err)

	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "Hello World. Goodbye.", result.Chunks[0].Text)

	calls := fix.speaker.CallsTo("Synthesize")
	require.Len(t, calls, 1)
	assert.Equal(t, "Hello World. Goodbye.", calls[0].Text)
	assert.Equal(t, "p225", calls[0].Voice)

	assert.Equal(t, filepath.Join(fix.workspace.OutputDir(), "book_base.wav"), result.Output)
	assert.Equal(t, repeat(21, 21), samples(t, result.Output))
	assert.Empty(t, fix.cloud.CallsTo("Synthesize"))
	assert.Len(t, fix.speaker.CallsTo("HealthCheck"), 1)
}

func TestBase_ChunksInOrder(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"a bb ccc dddd"}, pipeline.Options{MaxChunkLength: 5})

	result, err := fix.base(t, "p230", nil)
	require.NoError(t, err)

	require.Len(t, result.Audio, 3)

	for i, chunkAudio := range result.Audio {
		assert.Equal(t, i, chunkAudio.Index)
		assert.Equal(t, filepath.Join(fix.workspace.ChunksDir(), pipeline.ChunkFileName(i)), chunkAudio.Path)
		assert.FileExists(t, chunkAudio.Path)
	}

	assert.Equal(t, concat(repeat(4, 4), repeat(3, 3), repeat(4, 4)), samples(t, result.Output))
	assert.Equal(t, 11, result.Info.Frames)
}

func TestBase_Progress(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"a bb ccc dddd"}, pipeline.Options{MaxChunkLength: 5})

	var updates []pipeline.Progress

	_, err := fix.base(t, "p225", func(progress pipeline.Progress) {
		updates = append(updates, progress)
	})
	require.NoError(t, err)

	require.Len(t, updates, 3)

	for i, update := range updates {
		assert.Equal(t, pipeline.PassBase, update.Pass)
		assert.Equal(t, i+1, update.Index)
		assert.Equal(t, 3, update.Total)
	}

	assert.Equal(t, "Processing chunk 3/3", updates[2].Status)
	assert.InDelta(t, 1.0, updates[2].Fraction, 1e-9)
	assert.Less(t, updates[0].Fraction, updates[1].Fraction)
}

func TestBase_Rejections(t *testing.T) {
	t.Parallel()

	t.Run("unknown voice", func(t *testing.T) {
		t.Parallel()

		fix := newFixture(t, []string{"text"}, pipeline.Options{})

		_, err := fix.base(t, "p999", nil)
		require.ErrorIs(t, err, pipeline.ErrUnknownVoice)
		assert.Empty(t, fix.speaker.Calls())
	})

	t.Run("no text", func(t *testing.T) {
		t.Parallel()

		fix := newFixture(t, []string{"", "Scan to Download  ", "日本語"}, pipeline.Options{})

		_, err := fix.base(t, "p225", nil)
		require.ErrorIs(t, err, pipeline.ErrNoText)
		assert.Empty(t, fix.speaker.CallsTo("Synthesize"))
	})

	t.Run("no document", func(t *testing.T) {
		t.Parallel()

		fix := newFixture(t, []string{"text"}, pipeline.Options{})

		_, err := fix.pipeline.Base(context.Background(), pipeline.BaseRequest{Voice: "p225", Workspace: fix.workspace})
		require.ErrorIs(t, err, pipeline.ErrNoDocument)
	})

	t.Run("backend down", func(t *testing.T) {
		t.Parallel()

		fix := newFixture(t, []string{"text"}, pipeline.Options{})
		errDown := errors.New("connection refused")
		fix.speaker.HealthFunc = func(context.Context) error { return errDown }

		_, err := fix.base(t, "p225", nil)
		require.ErrorIs(t, err, errDown)
		assert.Empty(t, fix.speaker.CallsTo("Synthesize"))
	})
}

func TestBase_StrictBackendAbortsWithChunkIndex(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"a bb ccc dddd"}, pipeline.Options{MaxChunkLength: 5})
	errModel := errors.New("model crashed")

	fix.speaker.SynthesizeFunc = func(_ context.Context, text string, _ core.Voice) ([]byte, error) {
		if text == "ccc" {
			return nil, errModel
		}

		return tts.MockAudio(text), nil
	}

	_, err := fix.base(t, "p225", nil)

	var chunkErr *pipeline.ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 1, chunkErr.Index)
	assert.Equal(t, pipeline.PassBase, chunkErr.Pass)
	require.ErrorIs(t, err, errModel)

	assert.Len(t, fix.speaker.CallsTo("Synthesize"), 2, "no chunk after the failure is attempted")
	assert.NoFileExists(t, fix.workspace.OutputPath("book_base.wav"))
}

func TestBase_DegradingBackendGaps(t *testing.T) {
	t.Parallel()

	failMiddle := func(_ context.Context, text string, _ core.Voice) ([]byte, error) {
		if text == "ccc" {
			return nil, errors.New("quota exceeded")
		}

		return tts.MockAudio(text), nil
	}

	tests := []struct {
		name     string
		policy   pipeline.GapPolicy
		expected []int
	}{
		{
			name:     "silence fills the gap",
			policy:   pipeline.GapSilence,
			expected: concat(repeat(4, 4), repeat(0, 24), repeat(4, 4)),
		},
		{
			name:     "skip drops the gap",
			policy:   pipeline.GapSkip,
			expected: concat(repeat(4, 4), repeat(4, 4)),
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			fix := newFixture(t, []string{"a bb ccc dddd"}, pipeline.Options{
				MaxChunkLength: 5,
				GapPolicy:      testCase.policy,
				SilencePerChar: time.Millisecond,
			})
			fix.cloud.SynthesizeFunc = failMiddle

			var warnings []string

			result, err := fix.base(t, "en-uk", func(progress pipeline.Progress) {
				if progress.Warning != "" {
					warnings = append(warnings, progress.Warning)
				}
			})
			require.NoError(t, err)

			require.Len(t, result.Gaps, 1)
			assert.Equal(t, 1, result.Gaps[0].Index)
			assert.Equal(t, 3, result.Gaps[0].Length)
			assert.Contains(t, result.Gaps[0].Reason, "quota exceeded")
			require.Len(t, warnings, 1)
			assert.Contains(t, warnings[0], "chunk 1")

			assert.Len(t, result.Audio, 2)
			assert.Equal(t, testCase.expected, samples(t, result.Output))
		})
	}
}

func TestBase_AllChunksFailing(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"a bb ccc"}, pipeline.Options{MaxChunkLength: 5})
	fix.cloud.SynthesizeFunc = func(context.Context, string, core.Voice) ([]byte, error) {
		return nil, errors.New("offline")
	}

	_, err := fix.base(t, "en", nil)
	require.ErrorIs(t, err, audio.ErrNoAudio)
}

func TestBase_CancelledContextIsNotAGap(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"a bb ccc dddd"}, pipeline.Options{MaxChunkLength: 5})

	ctx, cancel := context.WithCancel(context.Background())

	fix.cloud.SynthesizeFunc = func(_ context.Context, text string, _ core.Voice) ([]byte, error) {
		cancel()

		return tts.MockAudio(text), nil
	}

	_, err := fix.pipeline.Base(ctx, pipeline.BaseRequest{
		PDF: fakePDF, Name: "book.pdf", Voice: "en", Workspace: fix.workspace,
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBase_RerunOverwritesArtifacts(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"a bb ccc dddd"}, pipeline.Options{MaxChunkLength: 5})

	first, err := fix.base(t, "p225", nil)
	require.NoError(t, err)

	stale := filepath.Join(fix.workspace.ChunksDir(), pipeline.ChunkFileName(7))
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o600))

	second, err := fix.base(t, "p227", nil)
	require.NoError(t, err)

	assert.Equal(t, first.Output, second.Output)
	assert.NoFileExists(t, stale)
	assert.Equal(t, "p227", second.Voice.ID)
}

func TestBase_FailedRerunDropsManifest(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"a bb ccc dddd"}, pipeline.Options{MaxChunkLength: 5})

	_, err := fix.base(t, "p225", nil)
	require.NoError(t, err)
	require.FileExists(t, fix.workspace.ManifestPath())

	fix.speaker.SynthesizeFunc = func(_ context.Context, text string, _ core.Voice) ([]byte, error) {
		if text == "ccc" {
			return nil, errors.New("model crashed")
		}

		return tts.MockAudio(text), nil
	}

	_, err = fix.base(t, "p225", nil)
	require.Error(t, err)

	_, err = pipeline.LoadManifest(fix.workspace.ManifestPath())
	require.ErrorIs(t, err, pipeline.ErrBaseRequired)
}

func TestBase_RejectedRequestKeepsManifest(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"a bb ccc dddd"}, pipeline.Options{MaxChunkLength: 5})

	first, err := fix.base(t, "p225", nil)
	require.NoError(t, err)

	_, err = fix.base(t, "p999", nil)
	require.ErrorIs(t, err, pipeline.ErrUnknownVoice)

	loaded, err := pipeline.LoadManifest(fix.workspace.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, first, loaded)
}

func TestClone_ConvertsBaseChunksInOrder(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"a bb ccc dddd"}, pipeline.Options{MaxChunkLength: 5})

	base, err := fix.base(t, "p225", nil)
	require.NoError(t, err)

	var sources [][]byte

	var mu sync.Mutex

	fix.converter.ConvertFunc = func(_ context.Context, source, target []byte) ([]byte, error) {
		mu.Lock()
		sources = append(sources, source)
		mu.Unlock()

		assert.Equal(t, []byte("RIFF sample"), target)

		return source, nil
	}

	var statuses []string

	cloned, err := fix.pipeline.Clone(context.Background(), base, []byte("RIFF sample"), func(progress pipeline.Progress) {
		statuses = append(statuses, progress.Status)
	})
	require.NoError(t, err)

	require.Len(t, cloned.Audio, len(base.Audio))

	for i := range base.Audio {
		assert.Equal(t, base.Audio[i].Index, cloned.Audio[i].Index)
		assert.Equal(t, filepath.Join(fix.workspace.ClonedDir(), pipeline.ClonedFileName(i)), cloned.Audio[i].Path)

		original, readErr := os.ReadFile(base.Audio[i].Path)
		require.NoError(t, readErr)
		assert.Equal(t, original, sources[i])
	}

	assert.Equal(t, []string{"Cloning chunk 1/3", "Cloning chunk 2/3", "Cloning chunk 3/3"}, statuses)
	assert.Equal(t, filepath.Join(fix.workspace.OutputDir(), "book_my_voice.wav"), cloned.Output)
	assert.Equal(t, samples(t, base.Output), samples(t, cloned.Output))

	storedSample, err := os.ReadFile(fix.workspace.SamplePath())
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF sample"), storedSample)
}

func TestClone_Rejections(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"some text"}, pipeline.Options{})

	_, err := fix.pipeline.Clone(context.Background(), nil, []byte("sample"), nil)
	require.ErrorIs(t, err, pipeline.ErrBaseRequired)

	base, err := fix.base(t, "p225", nil)
	require.NoError(t, err)

	_, err = fix.pipeline.Clone(context.Background(), base, nil, nil)
	require.ErrorIs(t, err, pipeline.ErrNoVoiceSample)

	assert.Empty(t, fix.converter.CallsTo("Convert"))
}

func TestClone_FailureNamesChunk(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"a bb ccc dddd"}, pipeline.Options{MaxChunkLength: 5})

	base, err := fix.base(t, "p225", nil)
	require.NoError(t, err)

	calls := 0
	fix.converter.ConvertFunc = func(_ context.Context, source, _ []byte) ([]byte, error) {
		calls++
		if calls == 3 {
			return nil, errors.New("out of memory")
		}

		return source, nil
	}

	_, err = fix.pipeline.Clone(context.Background(), base, []byte("sample"), nil)

	var chunkErr *pipeline.ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 2, chunkErr.Index)
	assert.Equal(t, pipeline.PassClone, chunkErr.Pass)
	assert.NoFileExists(t, fix.workspace.OutputPath("book_my_voice.wav"))
}

func TestClone_FromManifest(t *testing.T) {
	t.Parallel()

	fix := newFixture(t, []string{"a bb ccc dddd"}, pipeline.Options{MaxChunkLength: 5})

	base, err := fix.base(t, "p225", nil)
	require.NoError(t, err)

	loaded, err := pipeline.LoadManifest(fix.workspace.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, base, loaded)

	cloned, err := fix.pipeline.Clone(context.Background(), loaded, []byte("sample"), nil)
	require.NoError(t, err)
	assert.FileExists(t, cloned.Output)

	_, err = pipeline.LoadManifest(filepath.Join(t.TempDir(), "manifest.json"))
	require.ErrorIs(t, err, pipeline.ErrBaseRequired)
}
