package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/hugo-lorenzo-mato/crashlog/internal/crash"
	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ProcessStarter persists the envelope and starts a detached
// "<exe> deliver --envelope <path>" process. It does not wait for the child.
type ProcessStarter struct {
	// HandoffDir receives envelope files.
	HandoffDir string
	// Executable overrides the binary to run; defaults to the platform
	// context's executable, then os.Executable.
	Executable string
	// ConfigFile is forwarded as --config when set; defaults to the
	// platform context's config file.
	ConfigFile string
	Logger     *slog.Logger

	// command builds the child; replaced in tests.
	command func(name string, args ...string) *exec.Cmd
}

var _ crash.Deliverer = (*ProcessStarter)(nil)

// StartDelivery implements crash.Deliverer.
func (s *ProcessStarter) StartDelivery(app *platform.Context, report, logPath string) error {
	logger := s.Logger
	if logger == nil {
		logger = discardLogger()
	}
	if s.HandoffDir == "" {
		return errors.New("delivery: handoff dir is required")
	}

	env := NewEnvelope(app, report, logPath)
	path, err := env.Save(s.HandoffDir)
	if err != nil {
		return err
	}

	exe, err := s.executable(app)
	if err != nil {
		return err
	}
	args := []string{"deliver", "--envelope", path}
	if cfg := s.configFile(app); cfg != "" {
		args = append(args, "--config", cfg)
	}

	command := s.command
	if command == nil {
		command = exec.Command
	}
	cmd := command(exe, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting delivery process: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		logger.Warn("releasing delivery process failed", "pid", pid, "error", err)
	}
	logger.Info("delivery process started", "pid", pid, "envelope", path, "id", env.ID)
	return nil
}

func (s *ProcessStarter) executable(app *platform.Context) (string, error) {
	if s.Executable != "" {
		return s.Executable, nil
	}
	if app != nil && app.Executable != "" {
		return app.Executable, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolving executable: %w", err)
	}
	return exe, nil
}

func (s *ProcessStarter) configFile(app *platform.Context) string {
	if s.ConfigFile != "" {
		return s.ConfigFile
	}
	if app != nil {
		return app.ConfigFile
	}
	return ""
}

// InlineStarter delivers from a goroutine inside the crashing process. The
// exit grace period is all the time it gets.
type InlineStarter struct {
	Dispatcher *Dispatcher
	// HandoffDir, when set, also receives the envelope so that an
	// interrupted delivery can be resent later.
	HandoffDir string
	Logger     *slog.Logger
}

var _ crash.Deliverer = (*InlineStarter)(nil)

// StartDelivery implements crash.Deliverer.
func (s *InlineStarter) StartDelivery(app *platform.Context, report, logPath string) error {
	if s.Dispatcher == nil {
		return errors.New("delivery: inline starter has no dispatcher")
	}
	logger := s.Logger
	if logger == nil {
		logger = discardLogger()
	}

	env := NewEnvelope(app, report, logPath)
	envPath := ""
	if s.HandoffDir != "" {
		p, err := env.Save(s.HandoffDir)
		if err != nil {
			logger.Warn("saving envelope failed, delivering anyway", "id", env.ID, "error", err)
		} else {
			envPath = p
		}
	}

	go func() {
		if err := s.Dispatcher.Deliver(context.Background(), env, envPath); err != nil {
			logger.Error("inline delivery failed", "id", env.ID, "error", err)
		}
	}()
	return nil
}

// NopStarter keeps crash logs local.
type NopStarter struct{}

// StartDelivery implements crash.Deliverer.
func (NopStarter) StartDelivery(*platform.Context, string, string) error {
	return nil
}
