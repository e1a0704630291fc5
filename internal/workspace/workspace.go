// Package workspace gives every narration session its own directory tree so
// concurrent sessions never share chunk files or outputs.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/talktwin/internal/tts/ttsutils"
	"github.com/google/uuid"
)

const (
	chunksDir    = "chunks"
	clonedDir    = "cloned"
	outputDir    = "output"
	sampleFile   = "voice_sample.wav"
	manifestFile = "manifest.json"
)

var (
	// ErrInvalidID is returned for ids that are not UUIDs.
	ErrInvalidID = errors.New("invalid workspace id")
	// ErrNotFound is returned when opening a workspace that does not exist.
	ErrNotFound = errors.New("workspace not found")
)

// Workspace is one session's directory under a shared parent.
type Workspace struct {
	id   string
	root string
}

// New creates a fresh workspace with a random id under parent.
func New(parent string) (*Workspace, error) {
	return create(parent, uuid.NewString())
}

// Open returns an existing workspace.
func Open(parent, id string) (*Workspace, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	root := filepath.Join(parent, id)

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return &Workspace{id: id, root: root}, nil
}

// FromRoot returns the workspace whose directory is root, as recorded in a
// manifest.
func FromRoot(root string) (*Workspace, error) {
	return Open(filepath.Dir(root), filepath.Base(root))
}

// OpenOrCreate opens the workspace with id, creating it when missing.
func OpenOrCreate(parent, id string) (*Workspace, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	return create(parent, id)
}

func create(parent, id string) (*Workspace, error) {
	root := filepath.Join(parent, id)

	err := ttsutils.EnsureDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	return &Workspace{id: id, root: root}, nil
}

// ID returns the workspace id.
func (w *Workspace) ID() string { return w.id }

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// ChunksDir holds the per-chunk audio of the base pass.
func (w *Workspace) ChunksDir() string { return filepath.Join(w.root, chunksDir) }

// ClonedDir holds the per-chunk audio of the clone pass.
func (w *Workspace) ClonedDir() string { return filepath.Join(w.root, clonedDir) }

// OutputDir holds the merged deliverables.
func (w *Workspace) OutputDir() string { return filepath.Join(w.root, outputDir) }

// OutputPath returns the path of a merged deliverable.
func (w *Workspace) OutputPath(name string) string {
	return filepath.Join(w.OutputDir(), filepath.Base(name))
}

// SamplePath is where the uploaded voice sample is stored.
func (w *Workspace) SamplePath() string { return filepath.Join(w.root, sampleFile) }

// ManifestPath is where the base pass result is persisted.
func (w *Workspace) ManifestPath() string { return filepath.Join(w.root, manifestFile) }

// Reset empties dir, which must lie inside the workspace, and recreates it.
// Stale chunk files of an earlier run never leak into a new pass.
func (w *Workspace) Reset(dir string) error {
	rel, err := filepath.Rel(w.root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to reset %s outside workspace %s", dir, w.root)
	}

	err = os.RemoveAll(dir)
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", dir, err)
	}

	return ttsutils.EnsureDir(dir)
}

// Remove deletes the whole workspace.
func (w *Workspace) Remove() error {
	err := os.RemoveAll(w.root)
	if err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", w.root, err)
	}

	return nil
}
