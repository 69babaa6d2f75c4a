// Package stats decides which probed entries are kept, annotates them, and
// folds them into per-run aggregate counts.
package stats

import (
	"encoding/json"
	"maps"

	"github.com/streamsweep/streamsweep/engine/playlist"
	"github.com/streamsweep/streamsweep/engine/probe"
	"github.com/streamsweep/streamsweep/pkg/fn"
)

// Annotated is a retained entry with its final metadata line.
type Annotated struct {
	Entry   playlist.Entry
	Outcome probe.Outcome
	// Meta is the metadata line to emit; geo-blocked entries are tagged.
	Meta  string
	Attrs playlist.Attrs
}

// Output returns the entry as it should be written to the playlist.
func (a Annotated) Output() playlist.Entry {
	e := a.Entry
	e.Meta = a.Meta
	return e
}

// Annotate applies the retention rule to a probe result. Dead results
// return false. Geo-blocked results get the geo marker in their category.
func Annotate(r probe.Result) (Annotated, bool) {
	if !r.Outcome.Retained() {
		return Annotated{}, false
	}
	meta := r.Entry.Meta
	if r.Outcome == probe.GeoBlocked {
		meta = playlist.TagGeo(meta)
	}
	return Annotated{
		Entry:   r.Entry,
		Outcome: r.Outcome,
		Meta:    meta,
		Attrs:   playlist.ParseAttrs(meta),
	}, true
}

// Pin wraps an entry that is kept without probing.
func Pin(e playlist.Entry) Annotated {
	return Annotated{Entry: e, Outcome: probe.Alive, Meta: e.Meta, Attrs: playlist.ParseAttrs(e.Meta)}
}

// RunStats aggregates the retained entries of one run. Every field is
// derived from the Annotated entries folded into it.
type RunStats struct {
	TotalChannels int            `json:"total_channels"`
	GeoBlocked    int            `json:"geo_blocked"`
	ByCountry     map[string]int `json:"countries"`
	ByCategory    map[string]int `json:"categories"`
	Channels      Set            `json:"channels_set"`
}

// New returns empty stats.
func New() *RunStats {
	return &RunStats{
		ByCountry:  make(map[string]int),
		ByCategory: make(map[string]int),
		Channels:   make(Set),
	}
}

// Add folds one retained entry into s.
func (s *RunStats) Add(a Annotated) {
	s.TotalChannels++
	if a.Outcome == probe.GeoBlocked {
		s.GeoBlocked++
	}
	if c, ok := a.Attrs.Country(); ok {
		s.ByCountry[c]++
	}
	if g, ok := a.Attrs.Group(); ok {
		s.ByCategory[g]++
	}
	s.Channels.Add(a.Entry.Name)
}

// Merge adds the counts and channels of other into s.
func (s *RunStats) Merge(other *RunStats) {
	if other == nil {
		return
	}
	s.TotalChannels += other.TotalChannels
	s.GeoBlocked += other.GeoBlocked
	for k, v := range other.ByCountry {
		s.ByCountry[k] += v
	}
	for k, v := range other.ByCategory {
		s.ByCategory[k] += v
	}
	for n := range other.Channels {
		s.Channels.Add(n)
	}
}

// Fold builds stats from a sequence of retained entries. The result does not
// depend on the order of items.
func Fold(items []Annotated) *RunStats {
	return fn.Reduce(items, New(), func(acc *RunStats, a Annotated) *RunStats {
		acc.Add(a)
		return acc
	})
}

// Equal reports whether s and other hold the same counts and channels.
func (s *RunStats) Equal(other *RunStats) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.TotalChannels == other.TotalChannels &&
		s.GeoBlocked == other.GeoBlocked &&
		maps.Equal(s.ByCountry, other.ByCountry) &&
		maps.Equal(s.ByCategory, other.ByCategory) &&
		maps.Equal(s.Channels, other.Channels)
}

// UnmarshalJSON also accepts the by_country/by_category keys written by
// older snapshots.
func (s *RunStats) UnmarshalJSON(data []byte) error {
	type plain RunStats
	var raw struct {
		plain
		LegacyCountry  map[string]int `json:"by_country"`
		LegacyCategory map[string]int `json:"by_category"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = RunStats(raw.plain)
	if s.ByCountry == nil {
		s.ByCountry = raw.LegacyCountry
	}
	if s.ByCategory == nil {
		s.ByCategory = raw.LegacyCategory
	}
	if s.ByCountry == nil {
		s.ByCountry = make(map[string]int)
	}
	if s.ByCategory == nil {
		s.ByCategory = make(map[string]int)
	}
	if s.Channels == nil {
		s.Channels = make(Set)
	}
	return nil
}
