// Package lyric parses LRC text and pairs primary lines with translations.
package lyric

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TimedLine is one timestamped lyric line.
type TimedLine struct {
	Time float64
	Text string
}

// MergedLine is a primary line with its translation, if any.
type MergedLine struct {
	Time        float64 `json:"time"`
	Text        string  `json:"text"`
	Translation string  `json:"translation"`
}

// MatchWindow is the maximum distance in seconds between a primary line and
// its translation.
const MatchWindow = 0.5

var linePattern = regexp.MustCompile(`\[(\d{2}):(\d{2})\.(\d{2,3})\](.*)`)

// ParseTrack extracts timed lines from raw LRC text. Lines without a
// [MM:SS.ff] or [MM:SS.fff] tag and lines with empty text are dropped. Order
// is preserved.
func ParseTrack(raw string) []TimedLine {
	if raw == "" {
		return nil
	}
	var lines []TimedLine
	for _, line := range strings.Split(raw, "\n") {
		m := linePattern.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[4])
		if text == "" {
			continue
		}
		minutes, _ := strconv.Atoi(m[1])
		seconds, _ := strconv.Atoi(m[2])
		frac, _ := strconv.Atoi(m[3])
		// frac is always divided by 1000, so a two-digit ".50" reads as 0.05s.
		lines = append(lines, TimedLine{
			Time: float64(minutes*60+seconds) + float64(frac)/1000,
			Text: text,
		})
	}
	return lines
}

// Merge attaches to each primary line the first translation line within
// MatchWindow of it. Translation-only lines are not emitted.
func Merge(primary, translation []TimedLine) []MergedLine {
	if len(primary) == 0 {
		return nil
	}
	merged := make([]MergedLine, 0, len(primary))
	for _, line := range primary {
		out := MergedLine{Time: line.Time, Text: line.Text}
		for _, t := range translation {
			if math.Abs(t.Time-line.Time) < MatchWindow {
				out.Translation = t.Text
				break
			}
		}
		merged = append(merged, out)
	}
	return merged
}

// Sync parses both tracks and merges them.
func Sync(lyric, tlyric string) []MergedLine {
	return Merge(ParseTrack(lyric), ParseTrack(tlyric))
}

// LineAt returns the index of the last line starting at or before position,
// or -1 when position precedes the first line. lines must be in time order.
func LineAt(lines []MergedLine, position float64) int {
	return sort.Search(len(lines), func(i int) bool {
		return lines[i].Time > position
	}) - 1
}
