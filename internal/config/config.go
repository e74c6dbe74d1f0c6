package config

// Config holds all application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Crash    CrashConfig    `mapstructure:"crash" yaml:"crash"`
	Delivery DeliveryConfig `mapstructure:"delivery" yaml:"delivery"`
	Outbox   OutboxConfig   `mapstructure:"outbox" yaml:"outbox"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// CrashConfig configures crash interception and the crash log.
type CrashConfig struct {
	Tag            string `mapstructure:"tag" yaml:"tag"`
	Description    string `mapstructure:"description" yaml:"description"`
	Separator      string `mapstructure:"separator" yaml:"separator"`
	ExitWait       string `mapstructure:"exit_wait" yaml:"exit_wait"`
	HandoffTimeout string `mapstructure:"handoff_timeout" yaml:"handoff_timeout"`
	ExitCode       int    `mapstructure:"exit_code" yaml:"exit_code"`
	LogDir         string `mapstructure:"log_dir" yaml:"log_dir"`
	MaxFiles       int    `mapstructure:"max_files" yaml:"max_files"`
	Collector      string `mapstructure:"collector" yaml:"collector"`
	IncludeEnv     bool   `mapstructure:"include_env" yaml:"include_env"`
}

// DeliveryConfig configures how finished reports leave the process.
type DeliveryConfig struct {
	// Mode is process, inline or none.
	Mode        string       `mapstructure:"mode" yaml:"mode"`
	SendWithNet bool         `mapstructure:"send_with_net" yaml:"send_with_net"`
	HandoffDir  string       `mapstructure:"handoff_dir" yaml:"handoff_dir"`
	Email       EmailConfig  `mapstructure:"email" yaml:"email"`
	Upload      UploadConfig `mapstructure:"upload" yaml:"upload"`
}

// EmailConfig configures the SMTP transport.
type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Host     string   `mapstructure:"host" yaml:"host"`
	Port     int      `mapstructure:"port" yaml:"port"`
	Username string   `mapstructure:"username" yaml:"username"`
	Password string   `mapstructure:"password" yaml:"password"`
	From     string   `mapstructure:"from" yaml:"from"`
	To       []string `mapstructure:"to" yaml:"to"`
	Subject  string   `mapstructure:"subject" yaml:"subject"`
}

// UploadConfig configures the HTTP upload transport.
type UploadConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	URL        string `mapstructure:"url" yaml:"url"`
	Token      string `mapstructure:"token" yaml:"token"`
	Timeout    string `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// OutboxConfig configures the delivery ledger.
type OutboxConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ServerConfig configures the report collection server.
type ServerConfig struct {
	Addr  string `mapstructure:"addr" yaml:"addr"`
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Token string `mapstructure:"token" yaml:"token"`
}

// Redacted returns a copy with credentials masked, for display.
func (c Config) Redacted() Config {
	const mask = "********"
	if c.Delivery.Email.Password != "" {
		c.Delivery.Email.Password = mask
	}
	if c.Delivery.Upload.Token != "" {
		c.Delivery.Upload.Token = mask
	}
	if c.Server.Token != "" {
		c.Server.Token = mask
	}
	c.Delivery.Email.To = append([]string(nil), c.Delivery.Email.To...)
	return c
}
