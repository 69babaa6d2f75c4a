// Package diff compares the stats of the current run with the previous one.
package diff

import (
	"strings"
	"time"

	"github.com/streamsweep/streamsweep/engine/playlist"
	"github.com/streamsweep/streamsweep/engine/stats"
)

// TimeLayout is the format of Report.RunTime.
const TimeLayout = "2006-01-02 15:04:05 UTC"

// Report is the run-over-run delta. Channel identity is the display name, so
// a channel whose URL changes under the same name does not show up here.
type Report struct {
	RunID           string         `json:"run_id,omitempty"`
	RunTime         string         `json:"run_time"`
	Added           int            `json:"added"`
	Removed         int            `json:"removed"`
	GeoAdded        int            `json:"geo_added"`
	GeoRemoved      int            `json:"geo_removed"`
	AddedChannels   []string       `json:"added_channels"`
	RemovedChannels []string       `json:"removed_channels"`
	ByCountry       map[string]int `json:"by_country"`
	ByCategory      map[string]int `json:"by_category"`
}

// Baseline is the report of a run with no previous snapshot.
func Baseline(now time.Time) Report {
	return Report{
		RunTime:         now.UTC().Format(TimeLayout),
		AddedChannels:   []string{},
		RemovedChannels: []string{},
		ByCountry:       map[string]int{},
		ByCategory:      map[string]int{},
	}
}

// Compute diffs cur against prev. A nil prev yields the Baseline report.
// Neither argument is modified.
func Compute(cur, prev *stats.RunStats, now time.Time) Report {
	r := Baseline(now)
	if prev == nil {
		return r
	}
	if cur == nil {
		cur = stats.New()
	}

	r.AddedChannels = cur.Channels.Minus(prev.Channels)
	r.RemovedChannels = prev.Channels.Minus(cur.Channels)
	r.Added = len(r.AddedChannels)
	r.Removed = len(r.RemovedChannels)
	r.GeoAdded = countGeo(r.AddedChannels)
	r.GeoRemoved = countGeo(r.RemovedChannels)
	r.ByCountry = delta(cur.ByCountry, prev.ByCountry)
	r.ByCategory = delta(cur.ByCategory, prev.ByCategory)
	return r
}

// delta returns cur-prev for every key present in either map.
func delta(cur, prev map[string]int) map[string]int {
	out := make(map[string]int, len(cur))
	for k, v := range cur {
		out[k] = v - prev[k]
	}
	for k, v := range prev {
		if _, ok := cur[k]; !ok {
			out[k] = -v
		}
	}
	return out
}

func countGeo(names []string) int {
	n := 0
	for _, name := range names {
		if strings.Contains(name, playlist.GeoMarker) {
			n++
		}
	}
	return n
}
