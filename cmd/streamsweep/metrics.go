package main

import (
	"time"

	"github.com/streamsweep/streamsweep/engine/probe"
	"github.com/streamsweep/streamsweep/engine/sweep"
	"github.com/streamsweep/streamsweep/pkg/metrics"
)

var probeBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

type instruments struct {
	probes        map[probe.Outcome]*metrics.Counter
	probeDuration *metrics.Histogram
	entries       *metrics.Gauge
	retained      *metrics.Gauge
	geoBlocked    *metrics.Gauge
	lastRun       *metrics.Gauge
	staleRuns     *metrics.Counter
}

func newInstruments(met *metrics.Registry) *instruments {
	inst := &instruments{
		probes:        make(map[probe.Outcome]*metrics.Counter, len(probe.Outcomes)),
		probeDuration: met.Histogram("streamsweep_probe_duration_seconds", "Probe latency", probeBuckets),
		entries:       met.Gauge("streamsweep_entries", "Entries parsed from the source in the last run"),
		retained:      met.Gauge("streamsweep_retained_channels", "Channels written in the last run"),
		geoBlocked:    met.Gauge("streamsweep_geo_blocked_channels", "Geo-blocked channels in the last run"),
		lastRun:       met.Gauge("streamsweep_last_run_timestamp", "Unix time of the last successful run"),
		staleRuns:     met.Counter("streamsweep_stale_runs_total", "Runs skipped because nothing survived"),
	}
	for _, o := range probe.Outcomes {
		inst.probes[o] = met.Counter(metrics.WithLabels("streamsweep_probes_total", "outcome", o.String()), "Probes by outcome")
	}
	return inst
}

// observe is called by the prober for every finished probe.
func (i *instruments) observe(r probe.Result) {
	i.probes[r.Outcome].Inc()
	i.probeDuration.ObserveDuration(r.Duration)
}

func (i *instruments) record(rep sweep.Report) {
	i.entries.Set(int64(rep.TotalEntries))
	i.retained.Set(int64(rep.Retained()))
	i.geoBlocked.Set(int64(rep.GeoBlocked))
	i.lastRun.Set(time.Now().Unix())
}
