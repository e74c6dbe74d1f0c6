package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

func TestAtomicWrite_BasicOperation(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".crashlog.yaml")

	content := []byte("log:\n  level: info\n")
	if err := AtomicWrite(configPath, content); err != nil {
		t.Fatalf("AtomicWrite error: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(data) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", string(data), string(content))
	}

	entries, _ := os.ReadDir(tmpDir)
	if len(entries) != 1 {
		t.Fatalf("expected no temp files, found %d entries", len(entries))
	}
}

func TestAtomicWrite_OverwriteExisting(t *testing.T) {
	t.Parallel()
	configPath := filepath.Join(t.TempDir(), ".crashlog.yaml")

	if err := os.WriteFile(configPath, []byte("original"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if err := AtomicWrite(configPath, []byte("updated")); err != nil {
		t.Fatalf("AtomicWrite error: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(data) != "updated" {
		t.Fatalf("content mismatch: got %q", string(data))
	}
}

func TestAtomicWrite_PreservesPermissions(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("Skipping permission test on Windows - Unix permissions not supported")
	}

	configPath := filepath.Join(t.TempDir(), ".crashlog.yaml")
	if err := os.WriteFile(configPath, []byte("original"), 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if err := AtomicWrite(configPath, []byte("updated")); err != nil {
		t.Fatalf("AtomicWrite error: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Stat error: %v", err)
	}
	if info.Mode().Perm() != os.FileMode(0o600) {
		t.Fatalf("expected perms 0600, got %v", info.Mode().Perm())
	}
}

func TestAtomicWrite_ConcurrentWrites(t *testing.T) {
	t.Parallel()
	configPath := filepath.Join(t.TempDir(), ".crashlog.yaml")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = AtomicWrite(configPath, []byte(fmt.Sprintf("content from goroutine %d", n)))
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if !strings.HasPrefix(string(data), "content from goroutine") {
		t.Fatalf("expected one complete write, got %q", string(data))
	}
}

func TestAtomicWrite_CreatesDirectory(t *testing.T) {
	t.Parallel()
	configPath := filepath.Join(t.TempDir(), "nested", "dir", ".crashlog.yaml")
	if err := AtomicWrite(configPath, []byte(DefaultConfigYAML)); err != nil {
		t.Fatalf("AtomicWrite error: %v", err)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}
