package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/talktwin/internal/workspace"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigTemplate = `
[paths]
base_logs_dir = %q
workspace_dir = %q

[tts_service]
enabled = true
url = %q
health_timeout_seconds = 2
`

func writeConfig(t *testing.T, serviceURL string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	workspaces := filepath.Join(dir, "workspaces")
	path := filepath.Join(dir, "project.toml")

	content := fmt.Sprintf(testConfigTemplate, filepath.Join(dir, "logs"), workspaces, serviceURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path, workspaces
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags([]string{"-pdf", "book.pdf", "-sample", "me.wav", "-verbose"})
	require.NoError(t, err)
	assert.Equal(t, "book.pdf", flags.pdf)
	assert.Equal(t, "me.wav", flags.sample)
	assert.Equal(t, "p225", flags.voice)
	assert.True(t, flags.verbose)

	_, err = parseFlags([]string{"-unknown"})
	require.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   appFlags
		wantErr error
	}{
		{name: "pdf only", flags: appFlags{pdf: "book.pdf"}},
		{name: "pdf and sample", flags: appFlags{pdf: "book.PDF", sample: "me.wav"}},
		{name: "clone existing workspace", flags: appFlags{sample: "me.wav", workspace: uuid.NewString()}},
		{name: "health needs nothing else", flags: appFlags{health: true}},
		{name: "list voices needs nothing else", flags: appFlags{listVoices: true}},
		{name: "no input", flags: appFlags{}, wantErr: errNoInput},
		{name: "sample without workspace", flags: appFlags{sample: "me.wav"}, wantErr: errNoInput},
		{name: "not a pdf", flags: appFlags{pdf: "book.txt"}, wantErr: errPDFFormat},
		{name: "not a wav", flags: appFlags{pdf: "book.pdf", sample: "me.mp3"}, wantErr: errSampleFormat},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := validateFlags(testCase.flags)
			if testCase.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, testCase.wantErr)
			}
		})
	}
}

func TestRun_ListVoices(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, "http://127.0.0.1:1")

	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", configPath, "-list-voices"}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "* p225"))
	assert.Contains(t, lines[4], "p236")
}

func TestRun_Health(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(healthy.Close)

	configPath, _ := writeConfig(t, healthy.URL)

	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", configPath, "-health"}, &out))
	assert.Contains(t, out.String(), msgBackendsHealthy)

	down := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)

	configPath, _ = writeConfig(t, down.URL)

	out.Reset()
	require.Error(t, run([]string{"-config", configPath, "-health"}, &out))
	assert.Contains(t, out.String(), "Backends are not healthy")
}

func TestRun_CloneRequiresRecordedBase(t *testing.T) {
	t.Parallel()

	configPath, workspaces := writeConfig(t, "http://127.0.0.1:1")

	ws, err := workspace.New(workspaces)
	require.NoError(t, err)

	sample := filepath.Join(t.TempDir(), "me.wav")
	require.NoError(t, os.WriteFile(sample, []byte("RIFF....WAVE"), 0o600))

	err = run([]string{"-config", configPath, "-workspace", ws.ID(), "-sample", sample}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base audio must be generated first")

	err = run([]string{"-config", configPath, "-workspace", uuid.NewString(), "-sample", sample}, &bytes.Buffer{})
	require.ErrorIs(t, err, workspace.ErrNotFound)
}

func TestRun_RejectsMissingInput(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, run([]string{}, &bytes.Buffer{}), errNoInput)
}
