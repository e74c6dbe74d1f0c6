package config

import (
	"os"

	"github.com/hugo-lorenzo-mato/crashlog/internal/fsutil"
)

// AtomicWrite replaces the config file at path, keeping the existing file's
// permissions when there is one.
func AtomicWrite(path string, data []byte) error {
	perm := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return fsutil.WriteFile(path, data, perm)
}
