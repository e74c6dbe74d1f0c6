// Package clip copies crash reports to the clipboard for "crashlog show
// --copy". It tries the native clipboard, then an OSC52 escape sequence on
// the terminal, then falls back to writing a file.
package clip

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"

	"github.com/hugo-lorenzo-mato/crashlog/internal/fsutil"
)

// Method is how the text was made available.
type Method string

const (
	MethodNative Method = "native"
	MethodOSC52  Method = "osc52"
	MethodFile   Method = "file"
)

// Result reports where the text went. FilePath is set only for MethodFile.
type Result struct {
	Method   Method
	FilePath string
}

// Terminals may drop larger OSC52 payloads.
const osc52LimitBytes = 100_000

// Copier copies text using the first mechanism that works.
type Copier struct {
	// Terminal receives OSC52 sequences; defaults to os.Stderr.
	Terminal *os.File
	// FallbackDir receives the file fallback; defaults to os.TempDir.
	FallbackDir string

	native func(string) error
	osc52  func(io.Writer, string) error
	isTTY  func(*os.File) bool
	now    func() time.Time
}

// New creates a Copier with the default mechanisms.
func New() *Copier {
	return &Copier{
		Terminal: os.Stderr,
		native:   atotto.WriteAll,
		osc52:    writeOSC52,
		isTTY:    func(f *os.File) bool { return term.IsTerminal(int(f.Fd())) },
		now:      time.Now,
	}
}

// Copy copies text. An error means even the file fallback failed.
func (c *Copier) Copy(text string) (Result, error) {
	if text == "" {
		return Result{}, errors.New("nothing to copy")
	}

	if err := c.native(text); err == nil {
		return Result{Method: MethodNative}, nil
	}

	if c.Terminal != nil && c.isTTY(c.Terminal) && len(text) <= osc52LimitBytes {
		if err := c.osc52(c.Terminal, text); err == nil {
			return Result{Method: MethodOSC52}, nil
		}
	}

	dir := c.FallbackDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("crashlog-copy-%d.txt", c.now().UnixNano()))
	if err := fsutil.WriteFile(path, []byte(text), 0o600); err != nil {
		return Result{}, fmt.Errorf("writing copy fallback: %w", err)
	}
	return Result{Method: MethodFile, FilePath: path}, nil
}

func writeOSC52(w io.Writer, text string) error {
	seq := osc52.New(text).Limit(osc52LimitBytes)
	if os.Getenv("TMUX") != "" {
		seq = seq.Tmux()
	} else if os.Getenv("STY") != "" {
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(w)
	return err
}
