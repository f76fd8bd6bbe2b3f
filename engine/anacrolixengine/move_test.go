package anacrolixengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveFiles(t *testing.T) {
	src := filepath.Join(t.TempDir(), "ubuntu")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "a.iso"), []byte("data"), 0640))

	dst := filepath.Join(t.TempDir(), "archive", "ubuntu")
	require.NoError(t, moveFiles(src, dst))

	b, err := os.ReadFile(filepath.Join(dst, "sub", "a.iso"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveFilesMissingSource(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "ubuntu")
	assert.Error(t, moveFiles(filepath.Join(t.TempDir(), "missing"), dst))
	_, err := os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
}
