// Package outbox is the delivery ledger: one row per crash report handed to
// delivery, with its status and attempt history. Several delivery processes
// may write to the same database concurrently.
package outbox

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/crashlog/internal/delivery"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// Status is the delivery state of an entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// ErrNotFound is returned when no entry has the requested id.
var ErrNotFound = errors.New("outbox: entry not found")

// Entry is one recorded delivery.
type Entry struct {
	ID           string     `json:"id"`
	Tag          string     `json:"tag"`
	AppName      string     `json:"app_name"`
	LogPath      string     `json:"log_path"`
	EnvelopePath string     `json:"envelope_path"`
	Status       Status     `json:"status"`
	Attempts     int        `json:"attempts"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
}

// Store is the sqlite-backed ledger.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
	now  func() time.Time
}

var _ delivery.Ledger = (*Store)(nil)

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating outbox directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{path: path, db: db, now: time.Now}

	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet
		version = 0
	}

	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// Record inserts env as pending. Recording the same id again only refreshes
// its envelope path.
func (s *Store) Record(ctx context.Context, env delivery.Envelope, envelopePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	appName := ""
	if env.App != nil {
		appName = env.App.AppName
	}
	created := env.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	now := s.now().UnixNano()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, tag, app_name, log_path, envelope_path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			envelope_path = CASE WHEN excluded.envelope_path = '' THEN envelope_path ELSE excluded.envelope_path END,
			updated_at = excluded.updated_at`,
		env.ID, env.Tag, appName, env.LogPath, envelopePath, string(StatusPending), created.UnixNano(), now)
	if err != nil {
		return fmt.Errorf("recording %s: %w", env.ID, err)
	}
	return nil
}

// MarkDelivered marks id delivered and counts the attempt.
func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	now := s.now().UnixNano()
	return s.update(ctx, id, `
		UPDATE deliveries
		SET status = ?, attempts = attempts + 1, last_error = '', updated_at = ?, delivered_at = ?
		WHERE id = ?`, string(StatusDelivered), now, now, id)
}

// MarkFailed marks id failed with cause and counts the attempt.
func (s *Store) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.update(ctx, id, `
		UPDATE deliveries
		SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?`, string(StatusFailed), msg, s.now().UnixNano(), id)
}

// MarkSkipped marks id skipped. Skipping is not an attempt.
func (s *Store) MarkSkipped(ctx context.Context, id, reason string) error {
	return s.update(ctx, id, `
		UPDATE deliveries
		SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ?`, string(StatusSkipped), reason, s.now().UnixNano(), id)
}

func (s *Store) update(ctx context.Context, id, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectColumns = `SELECT id, tag, app_name, log_path, envelope_path, status, attempts, last_error,
	created_at, updated_at, delivered_at FROM deliveries`

// Get returns the entry for id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// Pending returns entries that still need delivery (pending or failed),
// oldest first. A limit of zero or less returns all.
func (s *Store) Pending(ctx context.Context, limit int) ([]Entry, error) {
	return s.query(ctx, selectColumns+` WHERE status IN ('pending', 'failed') ORDER BY created_at ASC`, limit)
}

// List returns all entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	return s.query(ctx, selectColumns+` ORDER BY created_at DESC`, limit)
}

// HasLog reports whether any entry references the crash log at path.
func (s *Store) HasLog(ctx context.Context, logPath string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries WHERE log_path = ?`, logPath).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("looking up %s: %w", logPath, err)
	}
	return n > 0, nil
}

func (s *Store) query(ctx context.Context, query string, limit int) ([]Entry, error) {
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying outbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e                Entry
		status           string
		created, updated int64
		delivered        sql.NullInt64
	)
	if err := sc.Scan(&e.ID, &e.Tag, &e.AppName, &e.LogPath, &e.EnvelopePath, &status, &e.Attempts,
		&e.LastError, &created, &updated, &delivered); err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	e.CreatedAt = time.Unix(0, created).UTC()
	e.UpdatedAt = time.Unix(0, updated).UTC()
	if delivered.Valid {
		t := time.Unix(0, delivered.Int64).UTC()
		e.DeliveredAt = &t
	}
	return e, nil
}
