// Package sweep runs one pass over an upstream playlist: fetch, probe,
// filter, aggregate, diff against the previous run and persist.
//
// Nothing is written unless the whole run succeeds and at least one probed
// entry survived, so a broken upstream never replaces a good playlist.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/streamsweep/streamsweep/engine/diff"
	"github.com/streamsweep/streamsweep/engine/playlist"
	"github.com/streamsweep/streamsweep/engine/probe"
	"github.com/streamsweep/streamsweep/engine/source"
	"github.com/streamsweep/streamsweep/engine/stats"
	"github.com/streamsweep/streamsweep/engine/store"
	"github.com/streamsweep/streamsweep/pkg/fn"
)

// ErrStaleSource is returned when no probed entry survived. The previous
// artifacts are left untouched.
var ErrStaleSource = errors.New("sweep: no reachable entries")

// Fetcher returns the upstream playlist as lines.
type Fetcher interface {
	Fetch(ctx context.Context) ([]string, error)
}

// Prober checks entries and returns one result per entry in input order.
type Prober interface {
	Run(ctx context.Context, entries []playlist.Entry) []probe.Result
}

// Publisher announces the diff report of a finished run.
type Publisher interface {
	Publish(ctx context.Context, r diff.Report) error
}

// Catalog mirrors the retained entries of a run.
type Catalog interface {
	Sync(ctx context.Context, runID string, items []stats.Annotated) (int64, error)
}

// Config describes a run.
type Config struct {
	SourceURL string
	Paths     store.Paths
	Probe     probe.Config
	// Pinned entries are kept without probing and written first.
	Pinned []playlist.Entry
}

// Deps are the collaborators of a Runner. Nil fields get defaults built from
// Config; Publisher and Catalog are optional.
type Deps struct {
	Fetcher   Fetcher
	Prober    Prober
	Now       func() time.Time
	NewRunID  func() string
	Logger    *slog.Logger
	Publisher Publisher
	Catalog   Catalog
}

// Report summarises a finished run.
type Report struct {
	RunID        string
	Diff         diff.Report
	Stats        *stats.RunStats
	TotalEntries int // parsed from the source
	Alive        int
	GeoBlocked   int
	Dead         int
	Pinned       int
	Duration     time.Duration
}

// Retained is the number of entries written to the playlist.
func (r Report) Retained() int { return r.Alive + r.GeoBlocked + r.Pinned }

// Runner executes runs.
type Runner struct {
	cfg  Config
	deps Deps
}

// New creates a Runner.
func New(cfg Config, deps Deps) *Runner {
	if cfg.SourceURL == "" {
		cfg.SourceURL = source.DefaultURL
	}
	if deps.Fetcher == nil {
		deps.Fetcher = source.NewFetcher(cfg.SourceURL, cfg.Probe.UserAgent)
	}
	if deps.Prober == nil {
		deps.Prober = probe.New(cfg.Probe)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Runner{cfg: cfg, deps: deps}
}

// state is threaded through the stages of one run.
type state struct {
	id      string
	started time.Time
	log     *slog.Logger

	prev    *stats.RunStats
	lines   []string
	entries []playlist.Entry
	results []probe.Result
	items   []stats.Annotated // pinned first, then survivors in input order
	cur     *stats.RunStats
	diff    diff.Report
	report  Report
}

type stage = fn.Stage[*state, *state]

// Run performs one sweep. It returns ErrStaleSource when nothing survived
// and an error wrapping source.ErrUnavailable when the source could not be
// fetched; in both cases no file is written.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	id := r.deps.NewRunID()
	st := &state{
		id:      id,
		started: r.deps.Now(),
		log:     r.deps.Logger.With("run_id", id),
	}

	pipeline := chain(
		fn.TracedStage("sweep.load_previous", stage(r.loadPrevious)),
		fn.TracedStage("sweep.fetch", stage(r.fetch)),
		fn.TracedStage("sweep.parse", fn.MapStage(r.parse)),
		fn.TracedStage("sweep.probe", stage(r.probe)),
		fn.TracedStage("sweep.aggregate", fn.MapStage(r.aggregate)),
		fn.TracedStage("sweep.guard", stage(r.guard)),
		fn.TracedStage("sweep.diff", fn.MapStage(r.computeDiff)),
		fn.TracedStage("sweep.write", stage(r.write)),
		fn.TracedStage("sweep.notify", stage(r.notify)),
	)

	st, err := pipeline(ctx, st).Unwrap()
	if err != nil {
		return Report{RunID: id}, err
	}
	st.report.Duration = r.deps.Now().Sub(st.started)
	st.log.Info("sweep complete",
		"entries", st.report.TotalEntries,
		"alive", st.report.Alive,
		"geo_blocked", st.report.GeoBlocked,
		"dead", st.report.Dead,
		"pinned", st.report.Pinned,
		"added", st.diff.Added,
		"removed", st.diff.Removed,
		"duration", st.report.Duration,
	)
	return st.report, nil
}

func chain(stages ...stage) stage {
	out := stages[0]
	for _, s := range stages[1:] {
		out = fn.Then(out, s)
	}
	return out
}

func (r *Runner) loadPrevious(_ context.Context, st *state) fn.Result[*state] {
	prev, err := store.LoadStats(r.cfg.Paths.Stats)
	switch {
	case errors.Is(err, store.ErrCorruptSnapshot):
		st.log.Warn("previous snapshot unreadable, treating as first run", "error", err)
	case err != nil:
		return fn.Err[*state](err)
	case prev == nil:
		st.log.Info("no previous snapshot", "path", r.cfg.Paths.Stats)
	}
	st.prev = prev
	return fn.Ok(st)
}

func (r *Runner) fetch(ctx context.Context, st *state) fn.Result[*state] {
	lines, err := r.deps.Fetcher.Fetch(ctx)
	if err != nil {
		return fn.Err[*state](err)
	}
	st.lines = lines
	return fn.Ok(st)
}

func (r *Runner) parse(st *state) *state {
	st.entries = slices.Collect(playlist.Parse(st.lines))
	st.lines = nil
	st.report.TotalEntries = len(st.entries)
	st.log.Info("playlist parsed", "entries", len(st.entries))
	return st
}

func (r *Runner) probe(ctx context.Context, st *state) fn.Result[*state] {
	st.results = r.deps.Prober.Run(ctx, st.entries)
	if err := ctx.Err(); err != nil {
		return fn.Errf[*state]("sweep: interrupted while probing: %w", err)
	}
	return fn.Ok(st)
}

func (r *Runner) aggregate(st *state) *state {
	st.items = make([]stats.Annotated, 0, len(r.cfg.Pinned)+len(st.results))
	for _, e := range r.cfg.Pinned {
		st.items = append(st.items, stats.Pin(e))
	}
	st.report.Pinned = len(r.cfg.Pinned)

	for _, res := range st.results {
		switch res.Outcome {
		case probe.Alive:
			st.report.Alive++
		case probe.GeoBlocked:
			st.report.GeoBlocked++
		default:
			st.report.Dead++
			st.log.Debug("dropped", "name", res.Entry.Name, "url", res.Entry.URL, "status", res.Status, "error", res.Err)
		}
	}
	st.items = append(st.items, fn.FilterMap(st.results, stats.Annotate)...)
	st.cur = stats.Fold(st.items)
	st.report.Stats = st.cur
	return st
}

func (r *Runner) guard(_ context.Context, st *state) fn.Result[*state] {
	if st.report.Alive+st.report.GeoBlocked == 0 {
		st.log.Warn("no entry survived probing, keeping previous artifacts",
			"entries", st.report.TotalEntries, "dead", st.report.Dead)
		return fn.Err[*state](ErrStaleSource)
	}
	return fn.Ok(st)
}

func (r *Runner) computeDiff(st *state) *state {
	st.diff = diff.Compute(st.cur, st.prev, r.deps.Now())
	st.diff.RunID = st.id
	st.report.RunID = st.id
	st.report.Diff = st.diff
	return st
}

func (r *Runner) write(_ context.Context, st *state) fn.Result[*state] {
	out := fn.Map(st.items, stats.Annotated.Output)
	if err := store.WritePlaylist(r.cfg.Paths.Playlist, out); err != nil {
		return fn.Err[*state](err)
	}
	if err := store.WriteJSON(r.cfg.Paths.Stats, st.cur); err != nil {
		return fn.Err[*state](err)
	}
	if err := store.WriteJSON(r.cfg.Paths.Diff, st.diff); err != nil {
		return fn.Err[*state](err)
	}
	st.log.Info("artifacts written",
		"playlist", r.cfg.Paths.Playlist,
		"retained", len(out),
	)
	return fn.Ok(st)
}

// notify hands the run to the optional publisher and catalog. Their failures
// are logged; the artifacts are already in place.
func (r *Runner) notify(ctx context.Context, st *state) fn.Result[*state] {
	if r.deps.Publisher != nil {
		if err := r.deps.Publisher.Publish(ctx, st.diff); err != nil {
			st.log.Error("publish diff failed", "error", err)
		}
	}
	if r.deps.Catalog != nil {
		removed, err := r.deps.Catalog.Sync(ctx, st.id, st.items)
		if err != nil {
			st.log.Error("catalog sync failed", "error", fmt.Errorf("sweep: %w", err))
		} else {
			st.log.Info("catalog synced", "channels", len(st.items), "pruned", removed)
		}
	}
	return fn.Ok(st)
}
