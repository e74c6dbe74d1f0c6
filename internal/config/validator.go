package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Collectors lists the collector names accepted by crash.collector.
var Collectors = []string{"app", "runtime", "device", "full"}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateCrash(&cfg.Crash)
	v.validateDelivery(&cfg.Delivery)
	v.validateOutbox(&cfg.Outbox)
	v.validateServer(&cfg.Server)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}

	if cfg.File != "" && !isValidPath(cfg.File) {
		v.addError("log.file", cfg.File, "invalid file path")
	}
}

func (v *Validator) validateCrash(cfg *CrashConfig) {
	if strings.TrimSpace(cfg.Tag) == "" {
		v.addError("crash.tag", cfg.Tag, "tag required")
	}
	if strings.TrimSpace(cfg.Description) == "" {
		v.addError("crash.description", cfg.Description, "description required")
	}
	if cfg.Separator == "" {
		v.addError("crash.separator", cfg.Separator, "separator required")
	}
	v.validateDuration("crash.exit_wait", cfg.ExitWait)
	v.validateDuration("crash.handoff_timeout", cfg.HandoffTimeout)

	if cfg.ExitCode < 0 || cfg.ExitCode > 125 {
		v.addError("crash.exit_code", cfg.ExitCode, "must be between 0 and 125")
	}

	if cfg.LogDir == "" {
		v.addError("crash.log_dir", cfg.LogDir, "directory required")
	} else if !isValidPath(cfg.LogDir) {
		v.addError("crash.log_dir", cfg.LogDir, "invalid directory path")
	}

	if cfg.MaxFiles < 0 {
		v.addError("crash.max_files", cfg.MaxFiles, "must be non-negative")
	}

	valid := false
	for _, name := range Collectors {
		if cfg.Collector == name {
			valid = true
			break
		}
	}
	if !valid {
		v.addError("crash.collector", cfg.Collector, "must be one of: "+strings.Join(Collectors, ", "))
	}
}

func (v *Validator) validateDelivery(cfg *DeliveryConfig) {
	validModes := map[string]bool{
		"process": true, "inline": true, "none": true,
	}
	if !validModes[cfg.Mode] {
		v.addError("delivery.mode", cfg.Mode, "must be one of: process, inline, none")
	}

	if cfg.Mode == "process" && cfg.HandoffDir == "" {
		v.addError("delivery.handoff_dir", cfg.HandoffDir, "directory required for process mode")
	}

	if cfg.Email.Enabled {
		if cfg.Email.Host == "" {
			v.addError("delivery.email.host", cfg.Email.Host, "host required when enabled")
		}
		if cfg.Email.Port <= 0 || cfg.Email.Port > 65535 {
			v.addError("delivery.email.port", cfg.Email.Port, "must be between 1 and 65535")
		}
		if cfg.Email.From == "" {
			v.addError("delivery.email.from", cfg.Email.From, "sender required when enabled")
		}
		if len(cfg.Email.To) == 0 {
			v.addError("delivery.email.to", cfg.Email.To, "at least one recipient required")
		}
	}

	if cfg.Upload.Enabled {
		u, err := url.Parse(cfg.Upload.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v.addError("delivery.upload.url", cfg.Upload.URL, "must be an http(s) URL")
		}
		v.validateDuration("delivery.upload.timeout", cfg.Upload.Timeout)
		if cfg.Upload.MaxRetries < 0 || cfg.Upload.MaxRetries > 10 {
			v.addError("delivery.upload.max_retries", cfg.Upload.MaxRetries, "must be between 0 and 10")
		}
	}
}

func (v *Validator) validateOutbox(cfg *OutboxConfig) {
	if cfg.Path == "" {
		v.addError("outbox.path", cfg.Path, "path required")
	} else if !isValidPath(cfg.Path) {
		v.addError("outbox.path", cfg.Path, "invalid file path")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Addr == "" {
		v.addError("server.addr", cfg.Addr, "address required")
	}
	if cfg.Dir == "" {
		v.addError("server.dir", cfg.Dir, "directory required")
	}
}

func (v *Validator) validateDuration(field, value string) {
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "invalid duration format")
		return
	}
	if d < 0 {
		v.addError(field, value, "must not be negative")
	}
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
