package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance,
// so CLI flag bindings take part in precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "CRASHLOG",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (CRASHLOG_*)
// 3. Project config (.crashlog.yaml in current directory)
// 4. User config (~/.config/crashlog/.crashlog.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".crashlog")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "crashlog"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")
	l.v.SetDefault("log.file", "")

	l.v.SetDefault("crash.tag", DefaultTag)
	l.v.SetDefault("crash.description", DefaultDescription)
	l.v.SetDefault("crash.separator", DefaultSeparator)
	l.v.SetDefault("crash.exit_wait", DefaultExitWait)
	l.v.SetDefault("crash.handoff_timeout", DefaultHandoffTimeout)
	l.v.SetDefault("crash.exit_code", DefaultExitCode)
	l.v.SetDefault("crash.log_dir", DefaultLogDir)
	l.v.SetDefault("crash.max_files", DefaultMaxFiles)
	l.v.SetDefault("crash.collector", DefaultCollector)
	l.v.SetDefault("crash.include_env", false)

	l.v.SetDefault("delivery.mode", "process")
	l.v.SetDefault("delivery.send_with_net", false)
	l.v.SetDefault("delivery.handoff_dir", DefaultHandoffDir)
	l.v.SetDefault("delivery.email.enabled", false)
	l.v.SetDefault("delivery.email.host", "")
	l.v.SetDefault("delivery.email.port", 587)
	l.v.SetDefault("delivery.email.username", "")
	l.v.SetDefault("delivery.email.password", "")
	l.v.SetDefault("delivery.email.from", "")
	l.v.SetDefault("delivery.email.to", []string{})
	l.v.SetDefault("delivery.email.subject", "Crash report")
	l.v.SetDefault("delivery.upload.enabled", false)
	l.v.SetDefault("delivery.upload.url", "")
	l.v.SetDefault("delivery.upload.token", "")
	l.v.SetDefault("delivery.upload.timeout", "10s")
	l.v.SetDefault("delivery.upload.max_retries", 3)

	l.v.SetDefault("outbox.path", DefaultOutboxPath)

	l.v.SetDefault("server.addr", DefaultServerAddr)
	l.v.SetDefault("server.dir", DefaultServerDir)
	l.v.SetDefault("server.token", "")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}
