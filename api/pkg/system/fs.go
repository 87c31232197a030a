package system

import (
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory that will hold path. Used before
// opening sqlite files so a fresh install can point at a nested path.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
