package probe

import (
	"errors"
	"time"

	"github.com/streamsweep/streamsweep/engine/playlist"
)

// Outcome is the classification of one probed entry.
type Outcome int

const (
	// Dead entries are dropped from the output playlist.
	Dead Outcome = iota
	// Alive entries answered 200 with a playlist body.
	Alive
	// GeoBlocked entries were refused or timed out; they are kept and tagged.
	GeoBlocked
)

func (o Outcome) String() string {
	switch o {
	case Alive:
		return "alive"
	case GeoBlocked:
		return "geo_blocked"
	default:
		return "dead"
	}
}

// Retained reports whether entries with this outcome stay in the playlist.
func (o Outcome) Retained() bool { return o == Alive || o == GeoBlocked }

// Outcomes lists every outcome, in declaration order.
var Outcomes = []Outcome{Dead, Alive, GeoBlocked}

// Result is the outcome of probing a single entry.
type Result struct {
	Entry    playlist.Entry
	Outcome  Outcome
	Status   int // HTTP status, 0 when no response was received
	Err      error
	Duration time.Duration
}

var (
	// ErrNoURL is recorded for entries whose URL line is missing.
	ErrNoURL = errors.New("probe: entry has no URL")
	// ErrBadURL is recorded for URLs that cannot be requested.
	ErrBadURL = errors.New("probe: invalid URL")
)

// Config bounds a probe run.
type Config struct {
	// Concurrency is the maximum number of probes in flight.
	Concurrency int
	// Timeout bounds one probe, response headers and body read included.
	Timeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
	// RateLimit caps request starts per second. Zero means unlimited.
	RateLimit float64
	// MaxBodyBytes caps how much of a 200 response is searched for markers.
	MaxBodyBytes int64
}

// Defaults.
const (
	DefaultConcurrency  = 50
	DefaultTimeout      = 5 * time.Second
	DefaultUserAgent    = "Mozilla/5.0"
	DefaultMaxBodyBytes = 1 << 20
)

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Concurrency:  DefaultConcurrency,
		Timeout:      DefaultTimeout,
		UserAgent:    DefaultUserAgent,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	return c
}
