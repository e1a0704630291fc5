package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/talktwin/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NamespacesSessions(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()

	first, err := workspace.New(parent)
	require.NoError(t, err)

	second, err := workspace.New(parent)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID())
	assert.NotEqual(t, first.ChunksDir(), second.ChunksDir())
	assert.DirExists(t, first.Root())
	assert.Equal(t, filepath.Join(parent, first.ID()), first.Root())
}

func TestLayout(t *testing.T) {
	t.Parallel()

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(ws.Root(), "chunks"), ws.ChunksDir())
	assert.Equal(t, filepath.Join(ws.Root(), "cloned"), ws.ClonedDir())
	assert.Equal(t, filepath.Join(ws.Root(), "voice_sample.wav"), ws.SamplePath())
	assert.Equal(t, filepath.Join(ws.Root(), "manifest.json"), ws.ManifestPath())
	assert.Equal(t, filepath.Join(ws.Root(), "output", "book_base.wav"), ws.OutputPath("../../book_base.wav"))
}

func TestOpen(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()

	created, err := workspace.New(parent)
	require.NoError(t, err)

	opened, err := workspace.Open(parent, created.ID())
	require.NoError(t, err)
	assert.Equal(t, created.Root(), opened.Root())

	_, err = workspace.Open(parent, "../etc")
	require.ErrorIs(t, err, workspace.ErrInvalidID)

	_, err = workspace.Open(parent, "8f14e45f-ceea-467a-9af0-5c1f3a7b2d10")
	require.ErrorIs(t, err, workspace.ErrNotFound)

	reopened, err := workspace.OpenOrCreate(parent, "8f14e45f-ceea-467a-9af0-5c1f3a7b2d10")
	require.NoError(t, err)
	assert.DirExists(t, reopened.Root())
}

func TestReset(t *testing.T) {
	t.Parallel()

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, ws.Reset(ws.ChunksDir()))

	stale := filepath.Join(ws.ChunksDir(), "chunk_9.wav")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o600))

	require.NoError(t, ws.Reset(ws.ChunksDir()))
	assert.NoFileExists(t, stale)
	assert.DirExists(t, ws.ChunksDir())

	require.Error(t, ws.Reset(ws.Root()))
	require.Error(t, ws.Reset(filepath.Dir(ws.Root())))
}

func TestRemove(t *testing.T) {
	t.Parallel()

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, ws.Remove())
	assert.NoDirExists(t, ws.Root())
}

func TestFromRoot(t *testing.T) {
	t.Parallel()

	created, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	found, err := workspace.FromRoot(created.Root())
	require.NoError(t, err)
	assert.Equal(t, created.ID(), found.ID())

	_, err = workspace.FromRoot(t.TempDir())
	require.ErrorIs(t, err, workspace.ErrInvalidID)
}
