// Package delivery moves finished crash reports out of the crashing process.
//
// The crash handler hands a report to a Starter, which must return quickly.
// The default ProcessStarter persists an Envelope and launches a detached
// "crashlog deliver" process; that process runs a Dispatcher, which sends the
// report through the configured transports and records the outcome in the
// outbox.
package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/crashlog/internal/fsutil"
	"github.com/hugo-lorenzo-mato/crashlog/internal/logwriter"
	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

// Envelope is the unit handed from the crashing process to delivery.
type Envelope struct {
	ID        string            `json:"id"`
	Tag       string            `json:"tag"`
	App       *platform.Context `json:"app,omitempty"`
	Report    string            `json:"report"`
	LogPath   string            `json:"log_path"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewEnvelope creates an envelope with a fresh id. The tag is taken from the
// crash log file name.
func NewEnvelope(app *platform.Context, report, logPath string) Envelope {
	tag, _, ok := logwriter.ParseName(filepath.Base(logPath))
	if !ok && app != nil {
		tag = app.Values["tag"]
	}
	return Envelope{
		ID:        uuid.NewString(),
		Tag:       tag,
		App:       app,
		Report:    report,
		LogPath:   logPath,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the fields delivery depends on.
func (e Envelope) Validate() error {
	if e.ID == "" {
		return errors.New("envelope: id is required")
	}
	if e.Report == "" {
		return errors.New("envelope: report is required")
	}
	return nil
}

// FileName is the envelope's file name inside a handoff directory.
func (e Envelope) FileName() string {
	return "envelope-" + e.ID + ".json"
}

// Save writes the envelope durably into dir and returns its path.
func (e Envelope) Save(dir string) (string, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling envelope: %w", err)
	}
	path := filepath.Join(dir, e.FileName())
	if err := fsutil.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("saving envelope: %w", err)
	}
	return path, nil
}

// LoadEnvelope reads and validates an envelope file.
func LoadEnvelope(path string) (Envelope, error) {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return Envelope{}, fmt.Errorf("reading envelope: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("parsing envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
