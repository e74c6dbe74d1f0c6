package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// testEnv is a config file whose data paths live in a temp dir.
type testEnv struct {
	dir        string
	configPath string
	logDir     string
	outboxPath string
	handoffDir string
}

// newTestEnv writes the config. deliveryExtra is appended to the delivery
// section.
func newTestEnv(t *testing.T, deliveryExtra string) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, ".crashlog.yaml"),
		logDir:     filepath.Join(dir, "logs"),
		outboxPath: filepath.Join(dir, "outbox.db"),
		handoffDir: filepath.Join(dir, "envelopes"),
	}
	cfg := fmt.Sprintf(`log:
  level: debug
  format: json
crash:
  tag: payments
  log_dir: %s
  collector: app
  exit_wait: 0s
delivery:
  mode: none
  handoff_dir: %s
%soutbox:
  path: %s
server:
  dir: %s
`, env.logDir, env.handoffDir, deliveryExtra, env.outboxPath, filepath.Join(dir, "reports"))
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o600))
	return env
}

// runCmd executes the root command with args and returns stdout and stderr.
// Commands share package state, so tests using it do not run in parallel.
func runCmd(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()

	viper.Reset()
	resetFlags(rootCmd)
	bindFlags()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// resetFlags restores every flag to its default, since cobra keeps parsed
// values between executions.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}
