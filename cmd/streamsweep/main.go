// Command streamsweep probes every channel of an IPTV playlist, keeps the
// reachable ones and records what changed since the previous run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/streamsweep/streamsweep/engine/catalog"
	"github.com/streamsweep/streamsweep/engine/diff"
	"github.com/streamsweep/streamsweep/engine/playlist"
	"github.com/streamsweep/streamsweep/engine/probe"
	"github.com/streamsweep/streamsweep/engine/source"
	"github.com/streamsweep/streamsweep/engine/store"
	"github.com/streamsweep/streamsweep/engine/sweep"
	"github.com/streamsweep/streamsweep/pkg/metrics"
	"github.com/streamsweep/streamsweep/pkg/mid"
	"github.com/streamsweep/streamsweep/pkg/natsutil"
)

// Config holds the command line and environment configuration.
type Config struct {
	Source      string
	Dir         string
	Concurrency int
	Timeout     time.Duration
	UserAgent   string
	Rate        float64
	Pins        string
	LogLevel    string

	NATSURL string
	Subject string

	Neo4jURL  string
	Neo4jUser string
	Neo4jPass string

	MetricsPort int
	MetricsFile string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	fs.StringVar(&cfg.Source, "source", envOr("STREAMSWEEP_SOURCE", source.DefaultURL), "upstream playlist URL")
	fs.StringVar(&cfg.Dir, "dir", envOr("STREAMSWEEP_DIR", "."), "output directory")
	fs.IntVar(&cfg.Concurrency, "concurrency", envInt("STREAMSWEEP_CONCURRENCY", probe.DefaultConcurrency), "simultaneous probes")
	fs.DurationVar(&cfg.Timeout, "timeout", envDuration("STREAMSWEEP_TIMEOUT", probe.DefaultTimeout), "per-probe timeout")
	fs.StringVar(&cfg.UserAgent, "user-agent", envOr("STREAMSWEEP_USER_AGENT", probe.DefaultUserAgent), "User-Agent sent with every request")
	fs.Float64Var(&cfg.Rate, "rate", envFloat("STREAMSWEEP_RATE", 0), "max probes started per second (0 = unlimited)")
	fs.StringVar(&cfg.Pins, "pin", envOr("STREAMSWEEP_PIN", ""), "entries kept without probing, as name|url,name|url")
	fs.StringVar(&cfg.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&cfg.NATSURL, "nats", envOr("NATS_URL", ""), "NATS URL (if empty, the diff is not published)")
	fs.StringVar(&cfg.Subject, "subject", envOr("STREAMSWEEP_SUBJECT", "streamsweep.diff"), "NATS subject for the diff report")
	fs.StringVar(&cfg.Neo4jURL, "neo4j", envOr("NEO4J_URL", ""), "Neo4j bolt URL (if empty, no catalog is kept)")
	fs.StringVar(&cfg.Neo4jUser, "neo4j-user", envOr("NEO4J_USER", "neo4j"), "Neo4j username")
	fs.StringVar(&cfg.Neo4jPass, "neo4j-pass", envOr("NEO4J_PASS", ""), "Neo4j password")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", envInt("METRICS_PORT", 0), "serve /metrics on this port while running (0 = off)")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", envOr("STREAMSWEEP_METRICS_FILE", ""), "write metrics to this node_exporter textfile")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Concurrency < 1 {
		return Config{}, fmt.Errorf("-concurrency must be at least 1, got %d", cfg.Concurrency)
	}
	if cfg.Timeout <= 0 {
		return Config{}, fmt.Errorf("-timeout must be positive, got %s", cfg.Timeout)
	}
	return cfg, nil
}

// parsePins reads "name|url,name|url". Blank items are ignored.
func parsePins(s string) ([]playlist.Entry, error) {
	var pins []playlist.Entry
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, url, ok := strings.Cut(item, "|")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("bad pin %q, want name|url", item)
		}
		pins = append(pins, playlist.NewEntry(len(pins), playlist.InfoPrefix+":-1,"+name, url))
	}
	return pins, nil
}

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("sweep failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pins, err := parsePins(cfg.Pins)
	if err != nil {
		return err
	}

	met := metrics.New()
	inst := newInstruments(met)

	if cfg.MetricsPort > 0 {
		shutdown := serveMetrics(met, cfg.MetricsPort, logger)
		defer shutdown()
	}
	if cfg.MetricsFile != "" {
		defer func() {
			if err := met.WriteFile(cfg.MetricsFile); err != nil {
				logger.Error("write metrics file", "path", cfg.MetricsFile, "error", err)
			}
		}()
	}

	probeCfg := probe.Config{
		Concurrency: cfg.Concurrency,
		Timeout:     cfg.Timeout,
		UserAgent:   cfg.UserAgent,
		RateLimit:   cfg.Rate,
	}
	deps := sweep.Deps{
		Prober: probe.New(probeCfg, probe.WithObserver(inst.observe)),
		Logger: logger,
	}

	// --- Optional NATS publication ---
	if cfg.NATSURL != "" {
		nc, err := natsutil.Connect(cfg.NATSURL, "streamsweep", logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		deps.Publisher = natsutil.NewPublisher[diff.Report](nc, cfg.Subject)
		logger.Info("publishing diff reports", "nats", cfg.NATSURL, "subject", cfg.Subject)
	}

	// --- Optional Neo4j catalog ---
	if cfg.Neo4jURL != "" {
		driver, err := catalog.Connect(ctx, cfg.Neo4jURL, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			return err
		}
		defer driver.Close(context.Background())
		deps.Catalog = catalog.New(driver)
		logger.Info("mirroring catalog", "neo4j", cfg.Neo4jURL)
	}

	runner := sweep.New(sweep.Config{
		SourceURL: cfg.Source,
		Paths:     store.DefaultPaths(cfg.Dir),
		Probe:     probeCfg,
		Pinned:    pins,
	}, deps)

	logger.Info("sweep starting",
		"source", cfg.Source,
		"dir", cfg.Dir,
		"concurrency", cfg.Concurrency,
		"timeout", cfg.Timeout,
		"pinned", len(pins),
	)
	rep, err := runner.Run(ctx)
	switch {
	case errors.Is(err, sweep.ErrStaleSource):
		inst.staleRuns.Inc()
		logger.Warn("source looks stale, previous artifacts kept", "run_id", rep.RunID)
		return nil
	case err != nil:
		return err
	}
	inst.record(rep)
	return nil
}

func serveMetrics(met *metrics.Registry, port int, logger *slog.Logger) (shutdown func()) {
	handler := mid.Chain(met.Mux(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.GetOnly(),
		mid.OTel("streamsweep-metrics"),
	)
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	return func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}
}
