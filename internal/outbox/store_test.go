package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/crashlog/internal/delivery"
	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func envelope(id string, created time.Time) delivery.Envelope {
	return delivery.Envelope{
		ID:        id,
		Tag:       "payments",
		App:       &platform.Context{AppName: "billing"},
		Report:    "meta<br>panic: boom",
		LogPath:   "/var/crash/" + id + ".log",
		CreatedAt: created,
	}
}

func TestStore_RecordAndGet(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, envelope("a", created), "/tmp/envelope-a.json"))

	e, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "payments", e.Tag)
	assert.Equal(t, "billing", e.AppName)
	assert.Equal(t, "/var/crash/a.log", e.LogPath)
	assert.Equal(t, "/tmp/envelope-a.json", e.EnvelopePath)
	assert.Equal(t, StatusPending, e.Status)
	assert.Zero(t, e.Attempts)
	assert.True(t, created.Equal(e.CreatedAt))
	assert.Nil(t, e.DeliveredAt)
}

func TestStore_RecordIsIdempotent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	env := envelope("a", time.Now())

	require.NoError(t, s.Record(ctx, env, "/tmp/first.json"))
	require.NoError(t, s.MarkFailed(ctx, "a", errors.New("timeout")))
	require.NoError(t, s.Record(ctx, env, ""))

	e, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/first.json", e.EnvelopePath)
	assert.Equal(t, StatusFailed, e.Status, "re-recording keeps the outcome")
	assert.Equal(t, 1, e.Attempts)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_Outcomes(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"ok", "bad", "skip"} {
		require.NoError(t, s.Record(ctx, envelope(id, time.Now()), ""))
	}

	require.NoError(t, s.MarkFailed(ctx, "ok", errors.New("first try")))
	require.NoError(t, s.MarkDelivered(ctx, "ok"))
	require.NoError(t, s.MarkFailed(ctx, "bad", errors.New("smtp: 554")))
	require.NoError(t, s.MarkSkipped(ctx, "skip", delivery.ReasonNetworkDisabled))

	ok, err := s.Get(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, ok.Status)
	assert.Equal(t, 2, ok.Attempts)
	assert.Empty(t, ok.LastError)
	require.NotNil(t, ok.DeliveredAt)

	bad, err := s.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, bad.Status)
	assert.Equal(t, "smtp: 554", bad.LastError)

	skip, err := s.Get(ctx, "skip")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, skip.Status)
	assert.Zero(t, skip.Attempts)
	assert.Equal(t, delivery.ReasonNetworkDisabled, skip.LastError)
}

func TestStore_UnknownID(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.MarkDelivered(ctx, "missing"), ErrNotFound)
	assert.ErrorIs(t, s.MarkFailed(ctx, "missing", nil), ErrNotFound)
	assert.ErrorIs(t, s.MarkSkipped(ctx, "missing", "x"), ErrNotFound)
}

func TestStore_PendingAndList(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"oldest", "middle", "newest", "done"} {
		require.NoError(t, s.Record(ctx, envelope(id, base.Add(time.Duration(i)*time.Minute)), ""))
	}
	require.NoError(t, s.MarkFailed(ctx, "middle", errors.New("x")))
	require.NoError(t, s.MarkDelivered(ctx, "done"))

	pending, err := s.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"oldest", "middle", "newest"}, ids(pending))

	limited, err := s.Pending(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"oldest", "middle"}, ids(limited))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"done", "newest", "middle", "oldest"}, ids(all))
}

func TestStore_HasLog(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, envelope("a", time.Now()), ""))

	has, err := s.HasLog(ctx, "/var/crash/a.log")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasLog(ctx, "/var/crash/b.log")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "outbox.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Record(ctx, envelope("a", time.Now()), ""))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "outbox.db")
	ctx := context.Background()

	first, err := Open(path)
	require.NoError(t, err)
	defer first.Close()
	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	var wg sync.WaitGroup
	for i, s := range []*Store{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				id := string(rune('a'+i)) + string(rune('0'+j))
				assert.NoError(t, s.Record(ctx, envelope(id, time.Now()), ""))
			}
		}()
	}
	wg.Wait()

	all, err := first.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func TestStore_ImplementsLedger(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	d := delivery.NewDispatcher(false, delivery.WithLedger(s))
	require.NoError(t, d.Deliver(ctx, envelope("a", time.Now()), ""))

	e, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, e.Status)
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
