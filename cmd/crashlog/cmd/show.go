package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashlog/internal/clip"
	"github.com/hugo-lorenzo-mato/crashlog/internal/logwriter"
)

var showCmd = &cobra.Command{
	Use:   "show <file|latest>",
	Short: "Print a crash log",
	Long: `Print a crash log. The argument is a path, a file name inside the crash log
directory, or "latest".`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var showCopy bool

// newCopier is replaced in tests.
var newCopier = clip.New

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showCopy, "copy", false, "copy the crash log to the clipboard")
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	path, err := resolveLog(cfg.Crash.LogDir, args[0])
	if err != nil {
		return err
	}
	content, err := logwriter.Read(path)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), content)

	if showCopy {
		res, err := newCopier().Copy(content)
		if err != nil {
			return err
		}
		if res.Method == clip.MethodFile {
			fmt.Fprintf(cmd.ErrOrStderr(), "clipboard unavailable, wrote %s\n", res.FilePath)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "copied to clipboard (%s)\n", res.Method)
		}
	}
	return nil
}

func resolveLog(dir, arg string) (string, error) {
	if arg == "latest" {
		e, err := logwriter.Latest(dir)
		if err != nil {
			return "", fmt.Errorf("%w in %s", err, dir)
		}
		return e.Path, nil
	}
	if fileExists(arg) {
		return arg, nil
	}
	candidate := filepath.Join(dir, filepath.Base(arg))
	if fileExists(candidate) {
		return candidate, nil
	}
	return "", fmt.Errorf("crash log %q not found", arg)
}
