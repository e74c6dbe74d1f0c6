//go:build !windows

package fsutil

import (
	"os"

	"github.com/google/renameio/v2"
)

// atomicWriteFile writes through a temp file that is fsynced and renamed.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
