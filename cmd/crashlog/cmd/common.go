package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/crashlog/internal/config"
	"github.com/hugo-lorenzo-mato/crashlog/internal/logging"
	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

const appName = "crashlog"

// loadConfig loads and validates configuration. Flags bound to the global
// viper take precedence over the file and the environment.
func loadConfig() (*config.Config, string, error) {
	loader := config.NewLoaderWithViper(viper.GetViper()).WithConfigFile(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, "", err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, absPath(loader.ConfigFile()), nil
}

func newLogger(cfg *config.Config, stderr io.Writer) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stderr,
		File:   cfg.Log.File,
	})
}

// appContext describes this process to the crash pipeline.
func appContext(configFile, tag string) *platform.Context {
	ctx := platform.Current(appName, appVersion, appCommit)
	ctx.ConfigFile = configFile
	return ctx.With("tag", tag)
}

func absPath(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
