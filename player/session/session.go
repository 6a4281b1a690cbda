// Package session owns the search results, playlist, play cursor and lyrics
// of a single listener, and keeps them persisted across restarts.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/liuran001/MusicPlayer-Go/player"
	"github.com/liuran001/MusicPlayer-Go/player/lyric"
	"github.com/liuran001/MusicPlayer-Go/player/platform"
	"github.com/liuran001/MusicPlayer-Go/player/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultView is the screen shown when nothing was persisted.
const DefaultView = "discover"

var (
	// ErrSuperseded is returned by Play when a newer Play started before this
	// one finished. Its result has been discarded.
	ErrSuperseded = errors.New("session: play superseded by a newer request")

	// ErrIndexOutOfRange is returned by PlayAt for an invalid playlist index.
	ErrIndexOutOfRange = errors.New("session: playlist index out of range")
)

// Options tunes a Session. Zero values pick the defaults noted per field.
type Options struct {
	// DefaultSource is the active source before anything is persisted. Defaults to netease.
	DefaultSource string
	// PageSize is the search result count. Defaults to 30.
	PageSize int
	// Bitrate is the requested stream bitrate in kbps. Defaults to 320.
	Bitrate int
	// CoverSize is the requested cover size in pixels. Defaults to 500.
	CoverSize int
	// Intn returns a uniform integer in [0, n). Defaults to math/rand/v2.
	Intn   func(n int) int
	Logger player.Logger
}

func (o *Options) applyDefaults() {
	if strings.TrimSpace(o.DefaultSource) == "" {
		o.DefaultSource = platform.DefaultSource
	}
	if o.PageSize <= 0 {
		o.PageSize = 30
	}
	if o.Bitrate <= 0 {
		o.Bitrate = 320
	}
	if o.CoverSize <= 0 {
		o.CoverSize = 500
	}
	if o.Intn == nil {
		o.Intn = rand.Intn
	}
	if o.Logger == nil {
		o.Logger = player.NopLogger{}
	}
}

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	Keyword       string
	Source        string
	Results       []player.Song
	SearchLoading bool

	Playlist []player.Song
	Cursor   int
	Current  *player.Song
	Loading  bool

	ShowLyrics bool
	Lyrics     player.LyricPayload
	Lines      []lyric.MergedLine
	View       string
}

// Session is safe for concurrent use. Remote calls run without holding the
// state lock.
type Session struct {
	resolver platform.Resolver
	store    *storage.Adapter
	opts     Options
	logger   player.Logger

	mu            sync.Mutex
	keyword       string
	source        string
	results       []player.Song
	searchLoading bool
	searchGen     uint64
	playlist      []player.Song
	cursor        int
	current       *player.Song
	loading       bool
	playGen       uint64
	showLyrics    bool
	lyrics        player.LyricPayload
	lines         []lyric.MergedLine
	view          string

	subMu       sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSub     int
}

// New creates a session and rehydrates it from store.
func New(resolver platform.Resolver, store *storage.Adapter, opts Options) *Session {
	opts.applyDefaults()
	s := &Session{
		resolver:    resolver,
		store:       store,
		opts:        opts,
		logger:      opts.Logger.With("component", "session"),
		subscribers: make(map[int]func(Snapshot)),
	}
	s.hydrate()
	return s
}

func (s *Session) hydrate() {
	s.results = storage.Load(s.store, storage.KeySearchResults, []player.Song{})
	s.current = storage.Load[*player.Song](s.store, storage.KeyCurrentSong, nil)
	s.playlist = storage.Load(s.store, storage.KeyPlaylist, []player.Song{})
	s.cursor = storage.Load(s.store, storage.KeyCurrentIndex, 0)
	s.showLyrics = storage.Load(s.store, storage.KeyShowLyrics, false)
	s.source = storage.Load(s.store, storage.KeyCurrentSource, s.opts.DefaultSource)
	s.view = storage.Load(s.store, storage.KeyCurrentView, DefaultView)
	s.keyword = storage.Load(s.store, storage.KeyLastSearchKeyword, "")
	s.setLyricsLocked(storage.Load(s.store, storage.KeyLyrics, player.LyricPayload{}))

	if s.results == nil {
		s.results = []player.Song{}
	}
	if s.playlist == nil {
		s.playlist = []player.Song{}
	}
	if s.cursor < 0 || (len(s.playlist) > 0 && s.cursor >= len(s.playlist)) || (len(s.playlist) == 0 && s.cursor != 0) {
		s.logger.Warn("persisted cursor out of range, resetting", "cursor", s.cursor, "playlist_len", len(s.playlist))
		s.cursor = 0
	}
	if strings.TrimSpace(s.source) == "" {
		s.source = s.opts.DefaultSource
	}
	if strings.TrimSpace(s.view) == "" {
		s.view = DefaultView
	}
}

// Search replaces the results with one page for keyword. A failed search
// leaves the results empty; the error is logged, not returned. An empty
// source keeps the active one.
func (s *Session) Search(ctx context.Context, keyword, source string) {
	log := s.logger.With("request_id", uuid.NewString())

	s.mu.Lock()
	if strings.TrimSpace(source) == "" {
		source = s.source
	}
	s.searchGen++
	gen := s.searchGen
	s.searchLoading = true
	s.source = source
	s.keyword = keyword
	s.persistSourceLocked()
	s.store.Save(storage.KeyLastSearchKeyword, keyword)
	s.mu.Unlock()
	s.notify()

	defer func() {
		s.mu.Lock()
		if gen == s.searchGen {
			s.searchLoading = false
		}
		s.mu.Unlock()
		s.notify()
	}()

	results, err := s.resolver.Search(ctx, keyword, source, s.opts.PageSize, 1)
	if err != nil {
		log.Error("search failed", "keyword", keyword, "source", source, "error", err)
		results = nil
	}
	if results == nil {
		results = []player.Song{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.searchGen {
		log.Debug("discarding stale search results", "keyword", keyword)
		return
	}
	s.results = results
	s.store.Save(storage.KeySearchResults, s.results)
	if err == nil {
		log.Info("search completed", "keyword", keyword, "source", source, "count", len(results))
	}
}

// Play resolves song and makes it current, appending it to the playlist if
// its identity is not already queued. Cover and lyric failures degrade to
// empty values. A stream failure leaves the state untouched and is returned.
func (s *Session) Play(ctx context.Context, song player.Song) error {
	s.mu.Lock()
	s.playGen++
	gen := s.playGen
	s.loading = true
	if strings.TrimSpace(song.Source) == "" {
		song.Source = s.source
	}
	s.mu.Unlock()
	s.notify()
	defer s.finishPlay(gen)

	log := s.logger.With("request_id", uuid.NewString(), "song", song.Key())

	stream, err := s.resolver.StreamURL(ctx, string(song.ID), song.Source, s.opts.Bitrate)
	if err == nil && (stream == nil || stream.URL == "") {
		err = platform.NewUnavailableError(song.Source, "stream", string(song.ID), "empty stream url")
	}
	if err != nil {
		log.Error("failed to resolve stream", "error", err)
		return fmt.Errorf("play %s: %w", song.Key(), err)
	}

	var (
		cover  string
		lyrics player.LyricPayload
	)
	g, gctx := errgroup.WithContext(ctx)
	if song.PicID != "" {
		g.Go(func() error {
			info, err := s.resolver.Cover(gctx, string(song.PicID), song.Source, s.opts.CoverSize)
			if err != nil {
				if canceled(err) {
					return err
				}
				log.Warn("failed to resolve cover", "pic_id", song.PicID, "error", err)
				return nil
			}
			if info != nil {
				cover = info.URL
			}
			return nil
		})
	}
	g.Go(func() error {
		lyricID := song.LyricID
		if lyricID == "" {
			lyricID = song.ID
		}
		payload, err := s.resolver.Lyrics(gctx, string(lyricID), song.Source)
		if err != nil {
			if canceled(err) {
				return err
			}
			log.Warn("failed to fetch lyrics", "lyric_id", lyricID, "error", err)
			return nil
		}
		if payload != nil {
			lyrics = *payload
		}
		return nil
	})
	// Cover and lyric failures degrade; only cancellation aborts the play.
	if err := g.Wait(); err != nil {
		log.Info("play canceled", "error", err)
		return fmt.Errorf("play %s: %w", song.Key(), err)
	}

	resolved := song
	resolved.URL = stream.URL
	resolved.Pic = cover
	resolved.Bitrate = stream.Bitrate
	resolved.Size = stream.Size

	s.mu.Lock()
	if gen != s.playGen {
		s.mu.Unlock()
		log.Info("discarding superseded play result")
		return ErrSuperseded
	}
	s.setLyricsLocked(lyrics)
	s.current = &resolved
	if idx := s.indexOfLocked(resolved); idx >= 0 {
		s.cursor = idx
	} else {
		s.playlist = append(s.playlist, resolved)
		s.cursor = len(s.playlist) - 1
		s.store.Save(storage.KeyPlaylist, s.playlist)
	}
	s.store.Save(storage.KeyLyrics, s.lyrics)
	s.store.Save(storage.KeyCurrentSong, s.current)
	s.store.Save(storage.KeyCurrentIndex, s.cursor)
	s.mu.Unlock()

	log.Info("now playing", "title", resolved.Title(), "bitrate", int64(resolved.Bitrate))
	return nil
}

func (s *Session) finishPlay(gen uint64) {
	s.mu.Lock()
	if gen == s.playGen {
		s.loading = false
	}
	s.mu.Unlock()
	s.notify()
}

// Next advances the cursor circularly and plays that entry.
func (s *Session) Next(ctx context.Context) error {
	return s.step(ctx, func(cursor, n int) int { return (cursor + 1) % n })
}

// Previous moves the cursor back circularly and plays that entry.
func (s *Session) Previous(ctx context.Context) error {
	return s.step(ctx, func(cursor, n int) int {
		if cursor == 0 {
			return n - 1
		}
		return cursor - 1
	})
}

// Random picks a uniformly random entry and plays it.
func (s *Session) Random(ctx context.Context) error {
	return s.step(ctx, func(_, n int) int { return s.opts.Intn(n) })
}

// PlayAt moves the cursor to index and plays that entry.
func (s *Session) PlayAt(ctx context.Context, index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.playlist) {
		n := len(s.playlist)
		s.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, n)
	}
	s.mu.Unlock()
	return s.step(ctx, func(int, int) int { return index })
}

// step moves the cursor with move and plays the entry there. An empty
// playlist is a no-op.
func (s *Session) step(ctx context.Context, move func(cursor, n int) int) error {
	s.mu.Lock()
	n := len(s.playlist)
	if n == 0 {
		s.mu.Unlock()
		return nil
	}
	next := move(s.cursor, n)
	if next < 0 || next >= n {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, next, n)
	}
	s.cursor = next
	s.store.Save(storage.KeyCurrentIndex, s.cursor)
	song := s.playlist[next]
	s.mu.Unlock()
	s.notify()

	return s.Play(ctx, song)
}

// Remove deletes the playlist entry at index. The cursor shifts back when the
// removed entry was at or before it. An invalid index is ignored.
func (s *Session) Remove(index int) {
	s.mu.Lock()
	if index < 0 || index >= len(s.playlist) {
		s.mu.Unlock()
		return
	}
	s.playlist = append(s.playlist[:index:index], s.playlist[index+1:]...)
	if s.cursor >= index && s.cursor > 0 {
		s.cursor--
	}
	s.store.Save(storage.KeyPlaylist, s.playlist)
	s.store.Save(storage.KeyCurrentIndex, s.cursor)
	s.mu.Unlock()
	s.notify()
}

// Clear empties the playlist and forgets the current song.
func (s *Session) Clear() {
	s.mu.Lock()
	s.playlist = []player.Song{}
	s.cursor = 0
	s.current = nil
	s.store.Save(storage.KeyPlaylist, s.playlist)
	s.store.Save(storage.KeyCurrentIndex, s.cursor)
	s.store.Save(storage.KeyCurrentSong, s.current)
	s.mu.Unlock()
	s.notify()
}

// ToggleLyrics flips lyric visibility.
func (s *Session) ToggleLyrics() {
	s.mu.Lock()
	s.showLyrics = !s.showLyrics
	s.store.Save(storage.KeyShowLyrics, s.showLyrics)
	s.mu.Unlock()
	s.notify()
}

// SetSource changes the active source used by searches and by songs that
// carry none.
func (s *Session) SetSource(source string) {
	source = strings.TrimSpace(source)
	if source == "" {
		return
	}
	s.mu.Lock()
	s.source = source
	s.persistSourceLocked()
	s.mu.Unlock()
	s.notify()
}

// SetView records the last viewed screen.
func (s *Session) SetView(view string) {
	view = strings.TrimSpace(view)
	if view == "" {
		view = DefaultView
	}
	s.mu.Lock()
	s.view = view
	s.store.Save(storage.KeyCurrentView, s.view)
	s.mu.Unlock()
	s.notify()
}

// Lyrics returns the merged lyric lines of the current song.
func (s *Session) Lyrics() []lyric.MergedLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lyric.MergedLine(nil), s.lines...)
}

// ResetCache removes every persisted session key and restores defaults.
// In-flight plays and searches are discarded.
func (s *Session) ResetCache() {
	s.mu.Lock()
	s.searchGen++
	s.playGen++
	s.keyword = ""
	s.source = s.opts.DefaultSource
	s.results = []player.Song{}
	s.searchLoading = false
	s.playlist = []player.Song{}
	s.cursor = 0
	s.current = nil
	s.loading = false
	s.showLyrics = false
	s.setLyricsLocked(player.LyricPayload{})
	s.view = DefaultView
	s.store.ClearKnown()
	s.mu.Unlock()

	s.logger.Info("session reset to defaults")
	s.notify()
}

// CacheUsage estimates the persisted session size in bytes.
func (s *Session) CacheUsage() int {
	return s.store.Usage()
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Keyword:       s.keyword,
		Source:        s.source,
		Results:       cloneSongs(s.results),
		SearchLoading: s.searchLoading,
		Playlist:      cloneSongs(s.playlist),
		Cursor:        s.cursor,
		Loading:       s.loading,
		ShowLyrics:    s.showLyrics,
		Lyrics:        s.lyrics,
		Lines:         append([]lyric.MergedLine(nil), s.lines...),
		View:          s.view,
	}
	if s.current != nil {
		current := cloneSong(*s.current)
		snap.Current = &current
	}
	return snap
}

// Subscribe registers fn to receive a snapshot after every change. fn runs
// on the goroutine that made the change and must not block. The returned
// function cancels the subscription.
func (s *Session) Subscribe(fn func(Snapshot)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Session) notify() {
	s.subMu.Lock()
	if len(s.subscribers) == 0 {
		s.subMu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Session) persistSourceLocked() {
	s.store.Save(storage.KeyCurrentSource, s.source)
}

func (s *Session) setLyricsLocked(payload player.LyricPayload) {
	s.lyrics = payload
	s.lines = lyric.Sync(payload.Lyric, payload.TLyric)
}

func (s *Session) indexOfLocked(song player.Song) int {
	for i, item := range s.playlist {
		if item.SameAs(song) {
			return i
		}
	}
	return -1
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func cloneSongs(songs []player.Song) []player.Song {
	if songs == nil {
		return nil
	}
	out := make([]player.Song, len(songs))
	for i, song := range songs {
		out[i] = cloneSong(song)
	}
	return out
}

func cloneSong(song player.Song) player.Song {
	song.Artist = append(player.ArtistList(nil), song.Artist...)
	return song
}
