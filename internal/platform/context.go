// Package platform describes the running application to crash collaborators.
//
// A Context is created once at startup and handed to the crash handler on
// install. The crash core never reads it; it only passes it through to
// metadata collectors and the delivery handoff.
package platform

import (
	"os"
	"time"
)

// Context carries process and application identity.
type Context struct {
	AppName    string            `json:"app_name"`
	Version    string            `json:"version,omitempty"`
	Commit     string            `json:"commit,omitempty"`
	Executable string            `json:"executable,omitempty"`
	Args       []string          `json:"args,omitempty"`
	WorkDir    string            `json:"work_dir,omitempty"`
	PID        int               `json:"pid"`
	StartedAt  time.Time         `json:"started_at"`
	Values     map[string]string `json:"values,omitempty"`

	// ConfigFile is the config file used by this process, if any. Out-of-process
	// delivery re-reads it so the child sees the same transports.
	ConfigFile string `json:"config_file,omitempty"`
}

// Current builds a Context from the running process.
func Current(appName, version, commit string) *Context {
	ctx := &Context{
		AppName:   appName,
		Version:   version,
		Commit:    commit,
		Args:      append([]string(nil), os.Args...),
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		Values:    map[string]string{},
	}
	if exe, err := os.Executable(); err == nil {
		ctx.Executable = exe
	}
	if wd, err := os.Getwd(); err == nil {
		ctx.WorkDir = wd
	}
	return ctx
}

// With returns a copy of c with an extra value set.
func (c *Context) With(key, value string) *Context {
	out := *c
	out.Values = make(map[string]string, len(c.Values)+1)
	for k, v := range c.Values {
		out.Values[k] = v
	}
	out.Values[key] = value
	return &out
}

// Uptime returns the time since the context was created.
func (c *Context) Uptime() time.Duration {
	if c.StartedAt.IsZero() {
		return 0
	}
	return time.Since(c.StartedAt)
}
