// Package catalog mirrors the retained channels of each run into Neo4j.
//
// Graph shape:
//
//	(:Channel {url, name, geo_blocked, last_run})-[:IN_CATEGORY]->(:Category {name})
//	(:Channel)-[:FROM_COUNTRY]->(:Country {code})
//
// Channels are keyed by URL. A sync stamps every channel it sees with the run
// id and then removes the channels an earlier run left behind.
package catalog

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/streamsweep/streamsweep/engine/playlist"
	"github.com/streamsweep/streamsweep/engine/probe"
	"github.com/streamsweep/streamsweep/engine/stats"
)

// DefaultBatchSize is the number of channels sent per UNWIND statement.
const DefaultBatchSize = 500

type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

// Store writes channel nodes through a Neo4j driver.
type Store struct {
	driver     neo4j.DriverWithContext
	database   string
	batchSize  int
	newSession func(ctx context.Context) runner // for testing
}

// Option configures a Store.
type Option func(*Store)

// WithDatabase selects a database other than the server default.
func WithDatabase(name string) Option {
	return func(s *Store) { s.database = name }
}

// WithBatchSize sets the number of channels per statement.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New creates a Store on driver.
func New(driver neo4j.DriverWithContext, opts ...Option) *Store {
	s := &Store{driver: driver, batchSize: DefaultBatchSize}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Connect opens a driver for url and verifies that the server is reachable.
// An empty user means no authentication.
func Connect(ctx context.Context, url, user, pass string) (neo4j.DriverWithContext, error) {
	auth := neo4j.NoAuth()
	if user != "" {
		auth = neo4j.BasicAuth(user, pass, "")
	}
	driver, err := neo4j.NewDriverWithContext(url, auth)
	if err != nil {
		return nil, fmt.Errorf("catalog: driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("catalog: verify %s: %w", url, err)
	}
	return driver, nil
}

func (s *Store) session(ctx context.Context) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &sessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})}
}

const upsertCypher = `UNWIND $rows AS row
MERGE (c:Channel {url: row.url})
SET c.name = row.name, c.geo_blocked = row.geo_blocked, c.last_run = $run_id
FOREACH (_ IN CASE WHEN row.category = '' THEN [] ELSE [1] END |
  MERGE (g:Category {name: row.category})
  MERGE (c)-[:IN_CATEGORY]->(g))
FOREACH (_ IN CASE WHEN row.country = '' THEN [] ELSE [1] END |
  MERGE (k:Country {code: row.country})
  MERGE (c)-[:FROM_COUNTRY]->(k))`

const pruneCypher = `MATCH (c:Channel) WHERE c.last_run <> $run_id
DETACH DELETE c
RETURN count(*) AS removed`

// Sync upserts items stamped with runID and deletes channels not seen in
// this run. It returns the number of channels removed.
func (s *Store) Sync(ctx context.Context, runID string, items []stats.Annotated) (int64, error) {
	rows := Rows(items)

	sess := s.session(ctx)
	defer sess.Close(ctx)

	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		if _, err := sess.Run(ctx, upsertCypher, map[string]any{
			"rows":   rows[start:end],
			"run_id": runID,
		}); err != nil {
			return 0, fmt.Errorf("catalog: upsert batch %d-%d: %w", start, end, err)
		}
	}

	res, err := sess.Run(ctx, pruneCypher, map[string]any{"run_id": runID})
	if err != nil {
		return 0, fmt.Errorf("catalog: prune: %w", err)
	}
	var removed int64
	if res.Next(ctx) {
		if v, ok := res.Record().Get("removed"); ok {
			removed, _ = v.(int64)
		}
	}
	return removed, nil
}

// Counts returns the number of nodes per catalog label.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `MATCH (n) WHERE n:Channel OR n:Category OR n:Country
RETURN labels(n)[0] AS label, count(*) AS count`, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: counts: %w", err)
	}
	counts := make(map[string]int64)
	for res.Next(ctx) {
		rec := res.Record()
		label, _ := rec.Get("label")
		cnt, _ := rec.Get("count")
		if l, ok := label.(string); ok {
			if c, ok := cnt.(int64); ok {
				counts[l] = c
			}
		}
	}
	return counts, nil
}

// Rows converts annotated entries into statement parameters. The category is
// taken from the untagged metadata so geo-blocked channels share a category
// node with their reachable neighbours. Entries without a URL are skipped.
func Rows(items []stats.Annotated) []map[string]any {
	rows := make([]map[string]any, 0, len(items))
	for _, a := range items {
		if a.Entry.URL == "" {
			continue
		}
		orig := playlist.ParseAttrs(a.Entry.Meta)
		category, _ := orig.Group()
		country, _ := a.Attrs.Country()
		rows = append(rows, map[string]any{
			"url":         a.Entry.URL,
			"name":        a.Entry.Name,
			"geo_blocked": a.Outcome == probe.GeoBlocked,
			"category":    category,
			"country":     country,
		})
	}
	return rows
}
