package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/crashlog/internal/delivery"
	"github.com/hugo-lorenzo-mato/crashlog/internal/fsutil"
)

// ErrNotFound is returned for unknown report ids.
var ErrNotFound = errors.New("report not found")

// ErrInvalidID is returned for ids that cannot name a report file.
var ErrInvalidID = errors.New("invalid report id")

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// Report is a received upload.
type Report struct {
	delivery.Payload
	ReceivedAt time.Time `json:"received_at"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
}

// Summary is the list view of a report.
type Summary struct {
	ID         string    `json:"id"`
	Tag        string    `json:"tag"`
	AppName    string    `json:"app_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ReceivedAt time.Time `json:"received_at"`
}

// Store keeps one JSON file per report in a directory.
type Store struct {
	dir string
}

// NewStore creates the report directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the report directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes r durably. Saving an existing id replaces it.
func (s *Store) Save(r Report) error {
	if !validID.MatchString(r.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, r.ID)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return fsutil.WriteFile(filepath.Join(s.dir, r.ID+".json"), data, 0o600)
}

// Get returns the report with id.
func (s *Store) Get(id string) (Report, error) {
	if !validID.MatchString(id) {
		return Report{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	data, err := fsutil.ReadFileIn(s.dir, id+".json")
	if errors.Is(err, fs.ErrNotExist) {
		return Report{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Report{}, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("parsing report %s: %w", id, err)
	}
	return r, nil
}

// List returns summaries of all readable reports, most recently received
// first.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		r, err := s.Get(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		sum := Summary{ID: r.ID, Tag: r.Tag, CreatedAt: r.CreatedAt, ReceivedAt: r.ReceivedAt}
		if r.App != nil {
			sum.AppName = r.App.AppName
		}
		out = append(out, sum)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	return out, nil
}
