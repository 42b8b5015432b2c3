package os

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// EnsureDir creates dir and its parents with the given mode. An existing
// directory is left as is.
func EnsureDir(dir string, mode os.FileMode) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return fmt.Errorf("ensure dir %s: %w", dir, err)
	}
	return nil
}

// FileExists reports whether anything exists at path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
