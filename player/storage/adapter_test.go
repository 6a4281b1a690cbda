package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/liuran001/MusicPlayer-Go/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	getErr error
	setErr error
}

func (f failingStore) Get(context.Context, string) (string, bool, error) { return "", false, f.getErr }
func (f failingStore) Set(context.Context, string, string) error        { return f.setErr }
func (f failingStore) Delete(context.Context, string) error             { return f.setErr }
func (f failingStore) Close() error                                     { return nil }

func TestAdapterRoundTrip(t *testing.T) {
	adapter := NewAdapter(NewMemoryStore(), "", nil)

	playlist := []player.Song{
		{ID: "1", Name: "A", Artist: player.ArtistList{"X"}, Source: "netease"},
		{ID: "2", Name: "B", Artist: player.ArtistList{"Y", "Z"}, Source: "kuwo"},
	}
	adapter.Save(KeyPlaylist, playlist)
	adapter.Save(KeyCurrentIndex, 1)
	adapter.Save(KeyShowLyrics, true)

	assert.Equal(t, playlist, Load(adapter, KeyPlaylist, []player.Song{}))
	assert.Equal(t, 1, Load(adapter, KeyCurrentIndex, 0))
	assert.True(t, Load(adapter, KeyShowLyrics, false))
}

func TestAdapterLoadDefaults(t *testing.T) {
	store := NewMemoryStore()
	adapter := NewAdapter(store, "", nil)

	assert.Equal(t, "netease", Load(adapter, KeyCurrentSource, "netease"))

	require.NoError(t, store.Set(context.Background(), KeyCurrentIndex, "{not json"))
	assert.Equal(t, 0, Load(adapter, KeyCurrentIndex, 0))

	require.NoError(t, store.Set(context.Background(), KeyShowLyrics, `"yes"`))
	assert.False(t, Load(adapter, KeyShowLyrics, false))
}

func TestAdapterSwallowsStoreErrors(t *testing.T) {
	adapter := NewAdapter(failingStore{getErr: errors.New("boom"), setErr: errors.New("boom")}, "", nil)

	assert.Equal(t, "discover", Load(adapter, KeyCurrentView, "discover"))
	assert.NotPanics(t, func() {
		adapter.Save(KeyCurrentView, "playlist")
		adapter.Remove(KeyCurrentView)
		adapter.ClearKnown()
	})
	assert.Zero(t, adapter.Usage())
}

func TestAdapterClearKnownKeepsForeignKeys(t *testing.T) {
	store := NewMemoryStore()
	adapter := NewAdapter(store, "mp:", nil)
	ctx := context.Background()

	for _, key := range KnownKeys {
		adapter.Save(key, "value")
	}
	require.NoError(t, store.Set(ctx, "mp:unrelated", "keep"))
	require.NoError(t, store.Set(ctx, "otherApp", "keep"))

	adapter.ClearKnown()

	assert.Equal(t, 2, store.Len())
	value, found, err := store.Get(ctx, "mp:unrelated")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "keep", value)
}

func TestAdapterUsage(t *testing.T) {
	adapter := NewAdapter(NewMemoryStore(), "p:", nil)
	assert.Zero(t, adapter.Usage())

	adapter.Save(KeyCurrentSource, "kuwo")
	// "p:currentSource" is 15 bytes and `"kuwo"` is 6.
	assert.Equal(t, 21, adapter.Usage())
}
