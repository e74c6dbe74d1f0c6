// Package testutil holds golden file helpers for crash log output.
package testutil

import (
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var update = flag.Bool("update", false, "update golden files")

// Golden compares rendered output against files under baseDir.
type Golden struct {
	t       *testing.T
	baseDir string
}

// NewGolden creates a golden file helper.
func NewGolden(t *testing.T, baseDir string) *Golden {
	return &Golden{
		t:       t,
		baseDir: baseDir,
	}
}

// AssertString compares actual with name.golden after normalizing both.
// Run tests with -update to rewrite the file.
func (g *Golden) AssertString(name, actual string) {
	g.t.Helper()

	goldenPath := filepath.Join(g.baseDir, name+".golden")
	if *update {
		g.updateGolden(goldenPath, Normalize(actual)+"\n")
		return
	}

	expected, err := os.ReadFile(goldenPath)
	if err != nil {
		g.t.Fatalf("reading golden file %s: %v", goldenPath, err)
	}

	if Normalize(string(expected)) != Normalize(actual) {
		g.t.Errorf("output mismatch for %s:\n--- expected ---\n%s\n--- actual ---\n%s",
			name, expected, actual)
	}
}

func (g *Golden) updateGolden(path, actual string) {
	g.t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		g.t.Fatalf("creating golden directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(actual), 0o600); err != nil {
		g.t.Fatalf("writing golden file: %v", err)
	}
	g.t.Logf("updated golden file: %s", path)
}

// Normalize unifies line endings and drops trailing whitespace and newlines.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

var crashScrubbers = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?m)^pid:( +)\d+$`), "pid:${1}[PID]"},
	{regexp.MustCompile(`(?m)^runtime:( +).+$`), "runtime:${1}[RUNTIME]"},
	{regexp.MustCompile(`goroutine \d+ \[`), "goroutine [N] ["},
	{regexp.MustCompile(` \+0x[0-9a-f]+`), ""},
	{regexp.MustCompile(`0x[0-9a-f]{6,}`), "[ADDR]"},
}

// ScrubCrashLog replaces the process-specific parts of a crash log: pid,
// runtime version, goroutine ids, program counters and pointers.
func ScrubCrashLog(s string) string {
	for _, sc := range crashScrubbers {
		s = sc.re.ReplaceAllString(s, sc.repl)
	}
	return s
}

// ScrubPaths replaces basePath with [DIR].
func ScrubPaths(s, basePath string) string {
	return strings.ReplaceAll(s, basePath, "[DIR]")
}
