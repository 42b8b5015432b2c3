package os_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	tmos "github.com/tendermint/intentd/libs/os"
)

func TestEnsureDir(t *testing.T) {
	tmp := t.TempDir()
	dir := filepath.Join(tmp, "a", "b")

	require.False(t, tmos.FileExists(dir))
	require.NoError(t, tmos.EnsureDir(dir, 0700))
	require.True(t, tmos.FileExists(dir))

	// existing directories are left alone
	require.NoError(t, tmos.EnsureDir(dir, 0700))
}
