package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	logpkg "github.com/liuran001/MusicPlayer-Go/player/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func newTestSQLiteStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	base := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewSQLiteStore(path, logpkg.NewGormLogger(base, logger.Silent))
	require.NoError(t, err)
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.db")
	store := newTestSQLiteStore(t, path)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "volume", "0.5"))
	require.NoError(t, store.Set(ctx, "volume", "0.8"))

	value, found, err := store.Get(ctx, "volume")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "0.8", value)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	require.NoError(t, store.Delete(ctx, "volume"))
	require.NoError(t, store.Delete(ctx, "volume"))
	_, found, err = store.Get(ctx, "volume")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, store.Close())
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	ctx := context.Background()

	store := newTestSQLiteStore(t, path)
	require.NoError(t, store.Set(ctx, "currentIndex", "3"))
	require.NoError(t, store.Close())

	reopened := newTestSQLiteStore(t, path)
	defer reopened.Close()
	value, found, err := reopened.Get(ctx, "currentIndex")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "3", value)
}

func TestNewSQLiteStoreRequiresDSN(t *testing.T) {
	_, err := NewSQLiteStore("", nil)
	assert.Error(t, err)
}
