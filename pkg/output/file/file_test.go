package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ericogr/vcnl4020-stream/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAppendsFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01}, 0o644))

	sink, err := NewFile(path, true, true)
	require.NoError(t, err)
	enc := frame.NewEncoder(sink)
	require.NoError(t, enc.Emit(0x0203))

	// flushed frames are on disk before Close
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0x03}, b)
	require.NoError(t, sink.Close())
}

func TestFileTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.bin")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xFF, 0xFF}, 0o644))

	sink, err := NewFile(path, false, false)
	require.NoError(t, err)
	require.NoError(t, frame.NewEncoder(sink).Emit(0x0A0B))
	require.NoError(t, sink.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0A, 0x0B}, b)
}

func TestFileOpenError(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "missing", "samples.bin"), true, false)
	assert.Error(t, err)
}
