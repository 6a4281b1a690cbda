package storage

import (
	"context"
	"encoding/json"

	"github.com/liuran001/MusicPlayer-Go/player"
)

// Persisted session keys.
const (
	KeySearchResults     = "searchResults"
	KeyCurrentSong       = "currentSong"
	KeyPlaylist          = "playlist"
	KeyCurrentIndex      = "currentIndex"
	KeyShowLyrics        = "showLyrics"
	KeyLyrics            = "lyrics"
	KeyCurrentSource     = "currentSource"
	KeyCurrentView       = "currentView"
	KeyLastSearchKeyword = "lastSearchKeyword"

	// Recognized so ClearKnown removes them, but nothing writes them yet.
	KeyCurrentPlayTime = "currentPlayTime"
	KeyVolume          = "volume"
	KeyPlayMode        = "playMode"
)

// KnownKeys lists every key owned by the adapter.
var KnownKeys = []string{
	KeySearchResults,
	KeyCurrentSong,
	KeyPlaylist,
	KeyCurrentIndex,
	KeyShowLyrics,
	KeyLyrics,
	KeyCurrentSource,
	KeyCurrentView,
	KeyLastSearchKeyword,
	KeyCurrentPlayTime,
	KeyVolume,
	KeyPlayMode,
}

// Adapter stores JSON-encoded values in a Store. It never returns errors:
// failed reads fall back to defaults and failed writes are logged.
type Adapter struct {
	store  player.Store
	prefix string
	logger player.Logger
}

// NewAdapter wraps store. Every key is prefixed with prefix.
func NewAdapter(store player.Store, prefix string, logger player.Logger) *Adapter {
	if logger == nil {
		logger = player.NopLogger{}
	}
	return &Adapter{
		store:  store,
		prefix: prefix,
		logger: logger.With("component", "storage"),
	}
}

func (a *Adapter) key(name string) string {
	return a.prefix + name
}

// Load decodes the value under key into T. A missing key, store error or
// undecodable value yields def.
func Load[T any](a *Adapter, key string, def T) T {
	raw, found, err := a.store.Get(context.Background(), a.key(key))
	if err != nil {
		a.logger.Error("failed to read persisted value", "key", key, "error", err)
		return def
	}
	if !found {
		return def
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		a.logger.Warn("discarding corrupt persisted value", "key", key, "error", err)
		return def
	}
	return out
}

// Save encodes value as JSON and writes it under key.
func (a *Adapter) Save(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		a.logger.Error("failed to encode value", "key", key, "error", err)
		return
	}
	if err := a.store.Set(context.Background(), a.key(key), string(data)); err != nil {
		a.logger.Error("failed to persist value", "key", key, "error", err)
	}
}

// Remove deletes key.
func (a *Adapter) Remove(key string) {
	if err := a.store.Delete(context.Background(), a.key(key)); err != nil {
		a.logger.Error("failed to remove value", "key", key, "error", err)
	}
}

// ClearKnown removes every key in KnownKeys. Other keys are left alone.
func (a *Adapter) ClearKnown() {
	for _, key := range KnownKeys {
		a.Remove(key)
	}
	a.logger.Info("session cache cleared")
}

// Usage estimates the bytes held by the known keys as the sum of key and
// value lengths.
func (a *Adapter) Usage() int {
	total := 0
	for _, key := range KnownKeys {
		full := a.key(key)
		raw, found, err := a.store.Get(context.Background(), full)
		if err != nil || !found {
			continue
		}
		total += len(full) + len(raw)
	}
	return total
}
