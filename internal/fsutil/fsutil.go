// Package fsutil holds the file helpers shared by crash logs, delivery
// envelopes and the collection server: durable writes and directory-scoped
// reads.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadFileScoped reads a file by opening a root at the file's directory,
// so a name containing path elements cannot escape it.
func ReadFileScoped(path string) ([]byte, error) {
	cleaned := filepath.Clean(path)
	return ReadFileIn(filepath.Dir(cleaned), filepath.Base(cleaned))
}

// ReadFileIn reads name inside dir. Names that resolve outside dir fail.
func ReadFileIn(dir, name string) ([]byte, error) {
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file name: %q", name)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// WriteFile durably replaces path with data, creating the parent directory.
// Readers observe either the old content or the new content, never a
// partial file.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := atomicWriteFile(path, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
