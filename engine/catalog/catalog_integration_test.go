//go:build integration

package catalog

import (
	"context"
	"os"
	"testing"

	"github.com/streamsweep/streamsweep/engine/playlist"
	"github.com/streamsweep/streamsweep/engine/probe"
	"github.com/streamsweep/streamsweep/engine/stats"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestNeo4j_SyncAndPrune(t *testing.T) {
	ctx := context.Background()
	driver, err := Connect(ctx, envOr("NEO4J_URL", "neo4j://localhost:7687"), os.Getenv("NEO4J_USER"), os.Getenv("NEO4J_PASS"))
	if err != nil {
		t.Fatalf("neo4j connect: %v", err)
	}
	t.Cleanup(func() { driver.Close(ctx) })

	s := New(driver)
	first := []stats.Annotated{
		stats.Pin(playlist.NewEntry(0, `#EXTINF:-1 tvg-country="US" group-title="News",A`, "http://integration/a")),
		stats.Pin(playlist.NewEntry(1, `#EXTINF:-1 group-title="News",B`, "http://integration/b")),
	}
	if _, err := s.Sync(ctx, "integration-1", first); err != nil {
		t.Fatalf("sync 1: %v", err)
	}

	geo, _ := stats.Annotate(probe.Result{
		Entry:   playlist.NewEntry(0, `#EXTINF:-1 group-title="News",A`, "http://integration/a"),
		Outcome: probe.GeoBlocked,
	})
	removed, err := s.Sync(ctx, "integration-2", []stats.Annotated{geo})
	if err != nil {
		t.Fatalf("sync 2: %v", err)
	}
	if removed < 1 {
		t.Fatalf("expected channel b to be pruned, removed=%d", removed)
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["Channel"] != 1 {
		t.Fatalf("expected 1 channel, got %v", counts)
	}
}
