// Package console is a line-oriented front end for a playback session.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/liuran001/MusicPlayer-Go/player"
	"github.com/liuran001/MusicPlayer-Go/player/lyric"
	"github.com/liuran001/MusicPlayer-Go/player/platform"
	"github.com/liuran001/MusicPlayer-Go/player/session"
)

// ErrQuit is returned by Exec for the quit command.
var ErrQuit = errors.New("console: quit")

// Player is the session surface the console drives.
type Player interface {
	Search(ctx context.Context, keyword, source string)
	Play(ctx context.Context, song player.Song) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Random(ctx context.Context) error
	PlayAt(ctx context.Context, index int) error
	Remove(index int)
	Clear()
	ToggleLyrics()
	SetSource(source string)
	SetView(view string)
	Lyrics() []lyric.MergedLine
	ResetCache()
	CacheUsage() int
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) (cancel func())
}

// Command is a named console action.
type Command struct {
	Name        string
	Usage       string
	Description string
	// Remote marks commands that wait on the network. They run on the pool.
	Remote  bool
	Handler func(ctx context.Context, args string) (string, error)
}

// Console reads commands from in and writes replies to out.
type Console struct {
	player   Player
	sources  *platform.Sources
	pool     player.WorkerPool
	logger   player.Logger
	commands map[string]Command

	pending sync.WaitGroup

	outMu       sync.Mutex
	out         io.Writer
	lastPlaying string
}

// New builds a console. pool may be nil, in which case remote commands run
// inline.
func New(p Player, sources *platform.Sources, pool player.WorkerPool, out io.Writer, logger player.Logger) *Console {
	if sources == nil {
		sources = platform.NewSources()
	}
	if logger == nil {
		logger = player.NopLogger{}
	}
	c := &Console{
		player:   p,
		sources:  sources,
		pool:     pool,
		logger:   logger.With("component", "console"),
		out:      out,
		commands: make(map[string]Command),
	}
	if snap := p.Snapshot(); snap.Current != nil {
		c.lastPlaying = snap.Current.Key()
	}
	for _, cmd := range c.builtinCommands() {
		c.commands[cmd.Name] = cmd
	}
	return c
}

// Run processes lines from in until EOF, quit, or ctx is done. At EOF it
// waits for remote commands still running on the pool.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	cancel := c.player.Subscribe(c.render)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	c.println(`type "help" for commands`)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				c.pending.Wait()
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if err := c.dispatch(ctx, line); errors.Is(err, ErrQuit) {
				return nil
			}
		}
	}
}

func (c *Console) dispatch(ctx context.Context, line string) error {
	name, args := splitCommand(line)
	if name == "" {
		return nil
	}
	cmd, ok := c.commands[name]
	if !ok || !cmd.Remote || c.pool == nil {
		reply, err := c.Exec(ctx, line)
		c.report(reply, err)
		return err
	}

	c.pending.Add(1)
	err := c.pool.Submit(func() {
		defer c.pending.Done()
		reply, err := cmd.Handler(ctx, args)
		c.report(reply, err)
	})
	if err != nil {
		c.pending.Done()
		c.report("", fmt.Errorf("%s: %w", name, err))
	}
	return nil
}

// Exec runs one command line synchronously and returns its reply. Remote
// commands still take a pool slot when a pool is set.
func (c *Console) Exec(ctx context.Context, line string) (string, error) {
	name, args := splitCommand(line)
	if name == "" {
		return "", nil
	}
	cmd, ok := c.commands[name]
	if !ok {
		return "", fmt.Errorf("unknown command %q, try help", name)
	}
	if !cmd.Remote || c.pool == nil {
		return cmd.Handler(ctx, args)
	}

	var reply string
	err := c.pool.SubmitWaitContext(ctx, func() error {
		var err error
		reply, err = cmd.Handler(ctx, args)
		return err
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (c *Console) report(reply string, err error) {
	switch {
	case errors.Is(err, ErrQuit):
		c.println("bye")
	case platform.IsRetryable(err):
		c.println("error: " + err.Error() + " (try again later)")
	case err != nil:
		c.println("error: " + err.Error())
	case reply != "":
		c.println(reply)
	}
}

// render prints a notice when the current song changes. Notifications may
// arrive out of order across goroutines, so the state is re-read under outMu.
func (c *Console) render(session.Snapshot) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	snap := c.player.Snapshot()
	key := ""
	if snap.Current != nil {
		key = snap.Current.Key()
	}
	if key == c.lastPlaying {
		return
	}
	c.lastPlaying = key
	if snap.Current != nil {
		fmt.Fprintf(c.out, "now playing: %s [%s]\n", snap.Current.Title(), snap.Current.Source)
	}
}

func (c *Console) println(text string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, text)
}

func (c *Console) builtinCommands() []Command {
	return []Command{
		{Name: "search", Usage: "search [source] <keyword>", Description: "search the active or given source", Remote: true, Handler: c.handleSearch},
		{Name: "play", Usage: "play <n>", Description: "play result n", Remote: true, Handler: c.handlePlay},
		{Name: "queue", Usage: "queue", Description: "list the playlist", Handler: c.handleQueue},
		{Name: "jump", Usage: "jump <n>", Description: "play playlist entry n", Remote: true, Handler: c.handleJump},
		{Name: "next", Usage: "next", Description: "play the next entry", Remote: true, Handler: c.wrapStep((Player).Next)},
		{Name: "prev", Usage: "prev", Description: "play the previous entry", Remote: true, Handler: c.wrapStep((Player).Previous)},
		{Name: "random", Usage: "random", Description: "play a random entry", Remote: true, Handler: c.wrapStep((Player).Random)},
		{Name: "rm", Usage: "rm <n>", Description: "remove playlist entry n", Handler: c.handleRemove},
		{Name: "clear", Usage: "clear", Description: "empty the playlist", Handler: c.handleClear},
		{Name: "lyrics", Usage: "lyrics [seconds]", Description: "show lyrics, marking the line at seconds", Handler: c.handleLyrics},
		{Name: "toggle", Usage: "toggle", Description: "toggle lyric visibility", Handler: c.handleToggle},
		{Name: "source", Usage: "source [name]", Description: "show or set the active source", Handler: c.handleSource},
		{Name: "view", Usage: "view <name>", Description: "remember the current screen", Handler: c.handleView},
		{Name: "status", Usage: "status", Description: "show session state", Handler: c.handleStatus},
		{Name: "cache", Usage: "cache", Description: "show persisted session size", Handler: c.handleCache},
		{Name: "reset", Usage: "reset", Description: "forget all persisted session state", Handler: c.handleReset},
		{Name: "help", Usage: "help", Description: "list commands", Handler: c.handleHelp},
		{Name: "quit", Usage: "quit", Description: "exit", Handler: func(context.Context, string) (string, error) { return "", ErrQuit }},
	}
}

func (c *Console) handleSearch(ctx context.Context, args string) (string, error) {
	source := ""
	keyword := args
	if first, rest := splitCommand(args); rest != "" {
		if name, ok := c.sources.Resolve(first); ok {
			source, keyword = name, rest
		}
	}
	if keyword == "" {
		return "", errors.New("usage: search [source] <keyword>")
	}

	c.player.Search(ctx, keyword, source)
	snap := c.player.Snapshot()
	if len(snap.Results) == 0 {
		return fmt.Sprintf("no results for %q on %s", keyword, snap.Source), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d results for %q on %s:", len(snap.Results), keyword, snap.Source)
	for i, song := range snap.Results {
		fmt.Fprintf(&b, "\n%3d. %s", i+1, describe(song))
	}
	return b.String(), nil
}

func (c *Console) handlePlay(ctx context.Context, args string) (string, error) {
	results := c.player.Snapshot().Results
	idx, err := parseIndex(args, len(results))
	if err != nil {
		return "", err
	}
	if err := c.player.Play(ctx, results[idx]); err != nil {
		return "", err
	}
	return "", nil
}

func (c *Console) handleJump(ctx context.Context, args string) (string, error) {
	idx, err := parseIndex(args, len(c.player.Snapshot().Playlist))
	if err != nil {
		return "", err
	}
	return "", c.player.PlayAt(ctx, idx)
}

func (c *Console) wrapStep(step func(Player, context.Context) error) func(context.Context, string) (string, error) {
	return func(ctx context.Context, _ string) (string, error) {
		if len(c.player.Snapshot().Playlist) == 0 {
			return "playlist is empty", nil
		}
		return "", step(c.player, ctx)
	}
}

func (c *Console) handleQueue(context.Context, string) (string, error) {
	snap := c.player.Snapshot()
	if len(snap.Playlist) == 0 {
		return "playlist is empty", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d queued:", len(snap.Playlist))
	for i, song := range snap.Playlist {
		marker := " "
		if i == snap.Cursor {
			marker = ">"
		}
		fmt.Fprintf(&b, "\n%s%3d. %s", marker, i+1, describe(song))
	}
	return b.String(), nil
}

func (c *Console) handleRemove(_ context.Context, args string) (string, error) {
	snap := c.player.Snapshot()
	idx, err := parseIndex(args, len(snap.Playlist))
	if err != nil {
		return "", err
	}
	c.player.Remove(idx)
	return "removed " + describe(snap.Playlist[idx]), nil
}

func (c *Console) handleClear(context.Context, string) (string, error) {
	c.player.Clear()
	return "playlist cleared", nil
}

func (c *Console) handleLyrics(_ context.Context, args string) (string, error) {
	lines := c.player.Lyrics()
	if len(lines) == 0 {
		return "no lyrics", nil
	}
	active := -1
	if args != "" {
		pos, err := strconv.ParseFloat(args, 64)
		if err != nil {
			return "", fmt.Errorf("invalid position %q", args)
		}
		active = lyric.LineAt(lines, pos)
	}

	var b strings.Builder
	if !c.player.Snapshot().ShowLyrics {
		b.WriteString("(lyrics hidden, use toggle)\n")
	}
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		marker := " "
		if i == active {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s[%s] %s", marker, formatTime(line.Time), line.Text)
		if line.Translation != "" {
			fmt.Fprintf(&b, " / %s", line.Translation)
		}
	}
	return b.String(), nil
}

func (c *Console) handleToggle(context.Context, string) (string, error) {
	c.player.ToggleLyrics()
	if c.player.Snapshot().ShowLyrics {
		return "lyrics shown", nil
	}
	return "lyrics hidden", nil
}

func (c *Console) handleSource(_ context.Context, args string) (string, error) {
	if args == "" {
		active := c.player.Snapshot().Source
		var b strings.Builder
		for i, meta := range c.sources.List() {
			if i > 0 {
				b.WriteByte('\n')
			}
			marker := " "
			if meta.Name == active {
				marker = "*"
			}
			fmt.Fprintf(&b, "%s %-9s %s", marker, meta.Name, meta.DisplayName)
			if len(meta.Aliases) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(meta.Aliases, ", "))
			}
		}
		return b.String(), nil
	}
	name, ok := c.sources.Resolve(args)
	if !ok {
		if meta, known := c.sources.Meta(args); known {
			return "", platform.NewUnsupportedError(meta.Name, "source")
		}
		return "", fmt.Errorf("unknown source %q", args)
	}
	c.player.SetSource(name)
	return "source set to " + name, nil
}

func (c *Console) handleView(_ context.Context, args string) (string, error) {
	if args == "" {
		return "view: " + c.player.Snapshot().View, nil
	}
	c.player.SetView(args)
	return "view set to " + c.player.Snapshot().View, nil
}

func (c *Console) handleStatus(context.Context, string) (string, error) {
	snap := c.player.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "source: %s\n", snap.Source)
	if snap.Current != nil {
		fmt.Fprintf(&b, "playing: %s\n", describe(*snap.Current))
		if snap.Current.URL != "" {
			fmt.Fprintf(&b, "stream: %s (%d kbps)\n", snap.Current.URL, int64(snap.Current.Bitrate))
		}
	} else {
		b.WriteString("playing: nothing\n")
	}
	if len(snap.Playlist) > 0 {
		fmt.Fprintf(&b, "queue: %d/%d\n", snap.Cursor+1, len(snap.Playlist))
	} else {
		b.WriteString("queue: empty\n")
	}
	fmt.Fprintf(&b, "lyrics: %s, view: %s", onOff(snap.ShowLyrics), snap.View)
	if snap.Loading {
		b.WriteString("\nloading track...")
	}
	if snap.SearchLoading {
		b.WriteString("\nsearching...")
	}
	return b.String(), nil
}

func (c *Console) handleCache(context.Context, string) (string, error) {
	return fmt.Sprintf("cache usage: %.2f KB", float64(c.player.CacheUsage())/1024), nil
}

func (c *Console) handleReset(context.Context, string) (string, error) {
	c.player.ResetCache()
	c.logger.Info("session reset from console")
	return "session cache cleared", nil
}

func (c *Console) handleHelp(context.Context, string) (string, error) {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		cmd := c.commands[name]
		fmt.Fprintf(&b, "%-26s %s", cmd.Usage, cmd.Description)
	}
	return b.String(), nil
}

func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	name, rest, _ := strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

// parseIndex converts a 1-based user index into a 0-based one.
func parseIndex(arg string, n int) (int, error) {
	if n == 0 {
		return 0, errors.New("list is empty")
	}
	v, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || v < 1 || v > n {
		return 0, fmt.Errorf("expected a number between 1 and %d", n)
	}
	return v - 1, nil
}

func describe(song player.Song) string {
	text := song.Title()
	if song.Album != "" {
		text += " (" + song.Album + ")"
	}
	return text + " [" + song.Source + "]"
}

func formatTime(seconds float64) string {
	cs := int(math.Round(seconds * 100))
	return fmt.Sprintf("%02d:%02d.%02d", cs/6000, (cs/100)%60, cs%100)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
