package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandTilde("~/x/history.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "history.db"), got)

	got, err = ExpandTilde("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	got, err = ExpandTilde("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}

func TestEnsureParentDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a", "b", "history.db")
	require.NoError(t, EnsureParentDir(file))

	info, err := os.Stat(filepath.Dir(file))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
