package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories lets the backend contract tests run against both backends.
func storeFactories(t *testing.T, ttl time.Duration) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), ttl)
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(ttl),
		"sqlite": sqlite,
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	for name, store := range storeFactories(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put(ctx, "sid-1", []byte(`{"a":1}`)))
			got, err := store.Get(ctx, "sid-1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(got))

			// Overwrite wins.
			require.NoError(t, store.Put(ctx, "sid-1", []byte(`{"a":2}`)))
			got, err = store.Get(ctx, "sid-1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(got))
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, store := range storeFactories(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, "sid-1", []byte(`{}`)))
			require.NoError(t, store.Delete(ctx, "sid-1"))

			_, err := store.Get(ctx, "sid-1")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting an absent session is fine.
			assert.NoError(t, store.Delete(ctx, "sid-1"))
		})
	}
}

func TestStore_ExpiryAndSweep(t *testing.T) {
	for name, store := range storeFactories(t, 10*time.Millisecond) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, "sid-1", []byte(`{}`)))
			time.Sleep(30 * time.Millisecond)

			_, err := store.Get(ctx, "sid-1")
			assert.ErrorIs(t, err, ErrNotFound)

			deleted, err := store.DeleteExpired(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, deleted)

			n, err := store.Len(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStore_Len(t *testing.T) {
	for name, store := range storeFactories(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, "a", []byte(`{}`)))
			require.NoError(t, store.Put(ctx, "b", []byte(`{}`)))

			n, err := store.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

// fakeResult reports a fixed affected-row count or an error, standing in for
// drivers whose results cannot report one.
type fakeResult struct {
	n   int64
	err error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, r.err }

func TestSweptCount(t *testing.T) {
	n, err := sweptCount(fakeResult{n: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = sweptCount(fakeResult{err: errors.New("not supported")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count swept sessions")
}

func TestSweeper_SweepNow(t *testing.T) {
	store := NewMemoryStore(10 * time.Millisecond)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "sid-1", []byte(`{}`)))
	time.Sleep(30 * time.Millisecond)

	sw := NewSweeper(store, DefaultSweepSchedule)
	require.NoError(t, sw.SweepNow())

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_StartStop(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	sw := NewSweeper(store, "@every 1h")
	require.NoError(t, sw.Start())
	assert.Error(t, sw.Start())
	sw.Stop()
}
