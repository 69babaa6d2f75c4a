// Package playlist parses, annotates and renders M3U playlists.
//
// A playlist is a header line followed by entries. Each entry is a metadata
// line starting with #EXTINF and the stream URL on the line after it.
package playlist

import (
	"iter"
	"strings"
)

const (
	// Header is the first line of every rendered playlist.
	Header = "#EXTM3U"
	// InfoPrefix marks a metadata line.
	InfoPrefix = "#EXTINF"
)

// Entry is one playlist record. It is never modified after parsing.
type Entry struct {
	// Index is the position of the entry among all parsed entries.
	Index int    `json:"index"`
	Meta  string `json:"meta"`
	URL   string `json:"url"`
	Name  string `json:"name"`
}

// NewEntry builds an entry from a metadata line and URL.
func NewEntry(index int, meta, url string) Entry {
	return Entry{Index: index, Meta: meta, URL: url, Name: ChannelName(meta)}
}

// ChannelName returns the display name, the text after the last comma.
func ChannelName(meta string) string {
	if i := strings.LastIndexByte(meta, ','); i >= 0 {
		return strings.TrimSpace(meta[i+1:])
	}
	return strings.TrimSpace(meta)
}

// Parse lazily yields the entries of a playlist given as lines.
//
// Lines that are not metadata lines are skipped. A metadata line takes the
// first following line that is neither blank nor a "#" directive (such as
// #EXTVLCOPT) as its URL, and everything up to that line is consumed. A
// metadata line with no such line before the next metadata line or the end
// of input yields an entry with an empty URL.
func Parse(lines []string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		idx := 0
		for i := 0; i < len(lines); i++ {
			line := strings.TrimSpace(lines[i])
			if !strings.HasPrefix(line, InfoPrefix) {
				continue
			}
			url, next := findURL(lines, i+1)
			i = next - 1
			if !yield(NewEntry(idx, line, url)) {
				return
			}
			idx++
		}
	}
}

// findURL scans lines from start for the URL of the preceding metadata line.
// It returns the URL and the index to resume parsing at.
func findURL(lines []string, start int) (string, int) {
	for j := start; j < len(lines); j++ {
		next := strings.TrimSpace(lines[j])
		switch {
		case strings.HasPrefix(next, InfoPrefix):
			return "", j
		case next == "", strings.HasPrefix(next, "#"):
			continue
		default:
			return next, j + 1
		}
	}
	return "", len(lines)
}

// ParseString splits raw playlist text into lines and parses it.
func ParseString(raw string) iter.Seq[Entry] {
	return Parse(strings.Split(raw, "\n"))
}
