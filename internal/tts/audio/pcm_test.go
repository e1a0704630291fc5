package audio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/talktwin/internal/tts/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPCM16_DecodesBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wrapped.wav")
	require.NoError(t, os.WriteFile(path, audio.WrapPCM16([]int16{1, -2, 300, -32768}, 16000, 2), 0o600))

	buffer, format, err := audio.Decode(path)
	require.NoError(t, err)

	assert.Equal(t, audio.Format{SampleRate: 16000, Channels: 2, BitDepth: 16}, format)
	assert.Equal(t, []int{1, -2, 300, -32768}, buffer.Data)
}
