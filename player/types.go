package player

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Song is a track as returned by the aggregator, optionally enriched with
// resolved stream and cover data. Identity is the (ID, Source) pair.
type Song struct {
	ID      FlexString `json:"id"`
	Name    string     `json:"name"`
	Artist  ArtistList `json:"artist"`
	Album   string     `json:"album,omitempty"`
	Source  string     `json:"source"`
	PicID   FlexString `json:"pic_id,omitempty"`
	URLID   FlexString `json:"url_id,omitempty"`
	LyricID FlexString `json:"lyric_id,omitempty"`

	// Resolved fields, filled once the song has been played.
	URL     string  `json:"url,omitempty"`
	Pic     string  `json:"pic,omitempty"`
	Bitrate FlexInt `json:"br,omitempty"`
	Size    FlexInt `json:"size,omitempty"`
}

// SameAs reports whether both songs refer to the same provider track.
func (s Song) SameAs(other Song) bool {
	return s.ID == other.ID && s.Source == other.Source
}

// Key returns a printable identity, e.g. "netease:1234".
func (s Song) Key() string {
	return s.Source + ":" + string(s.ID)
}

// Title renders "Artist - Name" for display.
func (s Song) Title() string {
	artist := s.Artist.String()
	if artist == "" {
		return s.Name
	}
	return artist + " - " + s.Name
}

// StreamInfo is a resolved stream URL.
type StreamInfo struct {
	URL     string  `json:"url"`
	Bitrate FlexInt `json:"br"`
	Size    FlexInt `json:"size"`
}

// CoverInfo is a resolved cover image URL.
type CoverInfo struct {
	URL string `json:"url"`
}

// LyricPayload is the raw lyric pair for a track.
type LyricPayload struct {
	Lyric  string `json:"lyric"`
	TLyric string `json:"tlyric"`
}

// FlexString decodes from either a JSON string or a JSON number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// FlexInt decodes from a JSON number or a numeric string. Non-numeric
// strings decode to zero.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	if raw == "" {
		*f = 0
		return nil
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*f = FlexInt(v)
		return nil
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		*f = FlexInt(int64(v))
		return nil
	}
	if data[0] == '"' {
		*f = 0
		return nil
	}
	return fmt.Errorf("flex int: invalid value %s", raw)
}

// ArtistList decodes from either a single JSON string or an array of strings.
type ArtistList []string

func (a *ArtistList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*a = nil
			return nil
		}
		*a = ArtistList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("artist list: %w", err)
	}
	*a = ArtistList(list)
	return nil
}

// String joins artists with " / ".
func (a ArtistList) String() string {
	return strings.Join(a, " / ")
}
