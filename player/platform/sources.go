package platform

import (
	"sort"
	"strings"
	"sync"
)

// DefaultSource is used when nothing else selects a provider.
const DefaultSource = "netease"

var builtinSources = []Meta{
	{Name: "netease", DisplayName: "NetEase Cloud Music", Aliases: []string{"163", "wyy", "ncm"}},
	{Name: "tencent", DisplayName: "QQ Music", Aliases: []string{"qq", "qqmusic"}},
	{Name: "kugou", DisplayName: "Kugou", Aliases: []string{"kg"}},
	{Name: "kuwo", DisplayName: "Kuwo", Aliases: []string{"kw"}},
	{Name: "migu", DisplayName: "Migu", Aliases: []string{"mg"}},
	{Name: "joox", DisplayName: "JOOX"},
	{Name: "tidal", DisplayName: "TIDAL"},
	{Name: "spotify", DisplayName: "Spotify"},
	{Name: "ytmusic", DisplayName: "YouTube Music", Aliases: []string{"youtube", "yt"}},
	{Name: "qobuz", DisplayName: "Qobuz"},
	{Name: "deezer", DisplayName: "Deezer"},
	{Name: "ximalaya", DisplayName: "Ximalaya", Aliases: []string{"xmly"}},
	{Name: "apple", DisplayName: "Apple Music", Aliases: []string{"applemusic", "am"}},
}

// SourceSettings exposes [source.<name>] config sections.
type SourceSettings interface {
	SourceNames() []string
	GetSourceBool(source, key string, def bool) bool
	GetSourceList(source, key string) []string
	GetSourceString(source, key string) string
}

// Sources is the registry of provider tags the aggregator understands.
type Sources struct {
	mu       sync.RWMutex
	meta     map[string]Meta
	aliases  map[string]string
	disabled map[string]bool

	// AllowUnknown lets Resolve pass through tags that are not registered.
	AllowUnknown bool
}

// NewSources returns a registry preloaded with the built-in providers.
func NewSources() *Sources {
	s := &Sources{
		meta:     make(map[string]Meta),
		aliases:  make(map[string]string),
		disabled: make(map[string]bool),
	}
	for _, meta := range builtinSources {
		s.Register(meta)
	}
	return s
}

// Register adds or extends a source. Aliases already owned by another source
// are ignored.
func (s *Sources) Register(meta Meta) {
	name := normalizeAlias(meta.Name)
	if name == "" {
		return
	}
	meta.Name = name

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.meta[name]; ok {
		if meta.DisplayName == "" {
			meta.DisplayName = old.DisplayName
		}
		meta.Aliases = mergeAliases(old.Aliases, meta.Aliases)
	}
	if meta.DisplayName == "" {
		meta.DisplayName = name
	}
	s.meta[name] = meta
	for _, alias := range meta.Aliases {
		key := normalizeAlias(alias)
		if key == "" || key == name {
			continue
		}
		if _, taken := s.aliases[key]; taken {
			continue
		}
		if _, isSource := s.meta[key]; isSource {
			continue
		}
		s.aliases[key] = name
	}
}

// SetEnabled toggles whether Resolve accepts a source.
func (s *Sources) SetEnabled(name string, enabled bool) {
	key := normalizeAlias(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		delete(s.disabled, key)
		return
	}
	s.disabled[key] = true
}

// Apply merges [source.<name>] settings: enabled, aliases, display_name.
func (s *Sources) Apply(settings SourceSettings) {
	if settings == nil {
		return
	}
	for _, name := range settings.SourceNames() {
		s.Register(Meta{
			Name:        name,
			DisplayName: settings.GetSourceString(name, "display_name"),
			Aliases:     settings.GetSourceList(name, "aliases"),
		})
		s.SetEnabled(name, settings.GetSourceBool(name, "enabled", true))
	}
}

// Resolve canonicalises a user supplied source tag or alias.
func (s *Sources) Resolve(input string) (string, bool) {
	key := normalizeAlias(input)
	if key == "" {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := key
	if alias, ok := s.aliases[key]; ok {
		name = alias
	}
	if s.disabled[name] {
		return "", false
	}
	if _, ok := s.meta[name]; ok {
		return name, true
	}
	if s.AllowUnknown {
		return key, true
	}
	return "", false
}

// Meta returns metadata for a canonical name.
func (s *Sources) Meta(name string) (Meta, bool) {
	key := normalizeAlias(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.meta[key]
	if !ok {
		return Meta{Name: key, DisplayName: strings.TrimSpace(name)}, false
	}
	return meta, true
}

// List returns the enabled sources sorted by name.
func (s *Sources) List() []Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Meta, 0, len(s.meta))
	for name, meta := range s.meta {
		if s.disabled[name] {
			continue
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
