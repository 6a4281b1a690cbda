// Package platform defines the remote resolver contract and the provider
// source registry.
package platform

import (
	"context"

	"github.com/liuran001/MusicPlayer-Go/player"
)

// Resolver turns search keywords and song identifiers into playable assets.
// Failures are always returned as errors, never as empty results.
// Implementations return a non-nil value with a nil error; callers treat a nil
// stream as unavailable and a nil cover or lyric payload as empty.
type Resolver interface {
	// Search returns one page of results for keyword on source.
	Search(ctx context.Context, keyword, source string, count, page int) ([]player.Song, error)

	// StreamURL resolves a playable URL at the requested bitrate (kbps).
	StreamURL(ctx context.Context, id, source string, bitrate int) (*player.StreamInfo, error)

	// Cover resolves a cover image URL at the requested pixel size.
	Cover(ctx context.Context, picID, source string, size int) (*player.CoverInfo, error)

	// Lyrics fetches raw LRC text and its translation.
	Lyrics(ctx context.Context, id, source string) (*player.LyricPayload, error)
}
