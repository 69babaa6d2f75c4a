package diff

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/streamsweep/streamsweep/engine/stats"
)

var now = time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC)

func snapshot(channels []string, countries, categories map[string]int) *stats.RunStats {
	s := stats.New()
	for _, c := range channels {
		s.Channels.Add(c)
	}
	s.TotalChannels = len(channels)
	for k, v := range countries {
		s.ByCountry[k] = v
	}
	for k, v := range categories {
		s.ByCategory[k] = v
	}
	return s
}

func TestComputeSetDifference(t *testing.T) {
	prev := snapshot([]string{"A", "B"}, nil, nil)
	cur := snapshot([]string{"B", "C"}, nil, nil)

	r := Compute(cur, prev, now)
	if r.Added != 1 || len(r.AddedChannels) != 1 || r.AddedChannels[0] != "C" {
		t.Fatalf("added: %d %v", r.Added, r.AddedChannels)
	}
	if r.Removed != 1 || len(r.RemovedChannels) != 1 || r.RemovedChannels[0] != "A" {
		t.Fatalf("removed: %d %v", r.Removed, r.RemovedChannels)
	}
	if r.RunTime != "2026-10-17 08:30:00 UTC" {
		t.Fatalf("run time: %q", r.RunTime)
	}
}

func TestComputeBaseline(t *testing.T) {
	cur := snapshot([]string{"A"}, map[string]int{"US": 1}, map[string]int{"News": 1})
	r := Compute(cur, nil, now)

	if r.Added != 0 || r.Removed != 0 || r.GeoAdded != 0 || r.GeoRemoved != 0 {
		t.Fatalf("baseline should be zero: %+v", r)
	}
	if r.AddedChannels == nil || len(r.AddedChannels) != 0 || r.RemovedChannels == nil || len(r.RemovedChannels) != 0 {
		t.Fatalf("baseline sets should be empty: %+v", r)
	}
	if len(r.ByCountry) != 0 || len(r.ByCategory) != 0 {
		t.Fatalf("baseline deltas should be empty: %+v", r)
	}

	data, _ := json.Marshal(r)
	if !strings.Contains(string(data), `"added_channels":[]`) || !strings.Contains(string(data), `"by_country":{}`) {
		t.Fatalf("baseline must serialise empty collections, got %s", data)
	}
}

func TestComputeDeltasOverKeyUnion(t *testing.T) {
	prev := snapshot(nil, map[string]int{"US": 5, "FR": 2}, map[string]int{"News": 3})
	cur := snapshot(nil, map[string]int{"US": 3, "DE": 4}, map[string]int{"News": 3, "Kids": 1})

	r := Compute(cur, prev, now)
	want := map[string]int{"US": -2, "FR": -2, "DE": 4}
	if len(r.ByCountry) != len(want) {
		t.Fatalf("by_country: %v", r.ByCountry)
	}
	for k, v := range want {
		if r.ByCountry[k] != v {
			t.Errorf("country %s: got %d want %d", k, r.ByCountry[k], v)
		}
	}
	if r.ByCategory["News"] != 0 || r.ByCategory["Kids"] != 1 || len(r.ByCategory) != 2 {
		t.Fatalf("by_category: %v", r.ByCategory)
	}
}

func TestComputeGeoCounts(t *testing.T) {
	prev := snapshot([]string{"Old [GEO]", "Keep"}, nil, nil)
	cur := snapshot([]string{"Keep", "New [GEO]", "Plain"}, nil, nil)

	r := Compute(cur, prev, now)
	if r.GeoAdded != 1 || r.GeoRemoved != 1 || r.Added != 2 {
		t.Fatalf("geo counts: %+v", r)
	}
}

func TestComputeDoesNotMutateInputs(t *testing.T) {
	prev := snapshot([]string{"A"}, map[string]int{"US": 1}, nil)
	cur := snapshot([]string{"B"}, map[string]int{"FR": 1}, nil)
	Compute(cur, prev, now)

	if len(prev.ByCountry) != 1 || len(cur.ByCountry) != 1 || !prev.Channels.Has("A") || prev.Channels.Has("B") {
		t.Fatal("inputs were modified")
	}
}

func TestComputeEmptyCurrent(t *testing.T) {
	prev := snapshot([]string{"A"}, map[string]int{"US": 1}, nil)
	r := Compute(nil, prev, now)
	if r.Removed != 1 || r.ByCountry["US"] != -1 {
		t.Fatalf("got %+v", r)
	}
}
