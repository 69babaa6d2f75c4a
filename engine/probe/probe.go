// Package probe checks playlist entries for liveness with bounded
// concurrency and classifies each one as alive, geo-blocked or dead.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/streamsweep/streamsweep/engine/playlist"
	"github.com/streamsweep/streamsweep/pkg/fn"
)

// Prober issues one timeout-bounded GET per entry.
type Prober struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	observe func(Result)
}

// Option configures a Prober.
type Option func(*Prober)

// WithClient replaces the HTTP client. Its Timeout is ignored in favour of
// Config.Timeout.
func WithClient(c *http.Client) Option {
	return func(p *Prober) { p.client = c }
}

// WithObserver registers a callback invoked once per result as probes
// complete. It is called from worker goroutines and must be safe for
// concurrent use.
func WithObserver(f func(Result)) Option {
	return func(p *Prober) { p.observe = f }
}

// New creates a Prober. Zero fields of cfg take their defaults.
func New(cfg Config, opts ...Option) *Prober {
	cfg = cfg.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4

	p := &Prober{
		cfg:    cfg,
		client: &http.Client{Transport: otelhttp.NewTransport(transport)},
	}
	if cfg.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Prober) Config() Config { return p.cfg }

// Probe checks a single entry. Entries without a usable URL are Dead and no
// request is made.
func (p *Prober) Probe(ctx context.Context, e playlist.Entry) Result {
	start := time.Now()
	r := p.probe(ctx, e)
	r.Duration = time.Since(start)
	p.notify(r)
	return r
}

func (p *Prober) probe(ctx context.Context, e playlist.Entry) Result {
	r := Result{Entry: e, Outcome: Dead}
	if e.URL == "" {
		r.Err = ErrNoURL
		return r
	}
	if u, err := url.Parse(e.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		r.Err = fmt.Errorf("%w: %q", ErrBadURL, e.URL)
		return r
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			r.Err = err
			return r
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		r.Err = fmt.Errorf("%w: %v", ErrBadURL, err)
		return r
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		r.Err = err
		r.Outcome = Classify(0, nil, err)
		return r
	}
	defer resp.Body.Close()
	r.Status = resp.StatusCode

	var body []byte
	if resp.StatusCode == http.StatusOK {
		body, err = io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBodyBytes))
		if err != nil {
			r.Err = err
		}
	}
	r.Outcome = Classify(resp.StatusCode, body, err)
	return r
}

// Stream probes entries with at most Config.Concurrency requests in flight.
// Probes start in entry order; results arrive in completion order. Exactly
// one Result is sent per entry, and the channel is closed afterwards. When
// ctx is done, entries not yet started are reported Dead without a request.
// The caller must drain the channel.
func (p *Prober) Stream(ctx context.Context, entries []playlist.Entry) <-chan Result {
	in := fn.ParStream(ctx, entries, p.cfg.Concurrency, p.Probe, p.skip)
	out := make(chan Result, p.cfg.Concurrency)
	go func() {
		defer close(out)
		for r := range in {
			out <- r.Value
		}
	}()
	return out
}

// Run probes all entries and returns the results in entry order.
func (p *Prober) Run(ctx context.Context, entries []playlist.Entry) []Result {
	return fn.ParMap(ctx, entries, p.cfg.Concurrency, p.Probe, p.skip)
}

func (p *Prober) skip(e playlist.Entry, err error) Result {
	r := Result{Entry: e, Outcome: Dead, Err: err}
	p.notify(r)
	return r
}

func (p *Prober) notify(r Result) {
	if p.observe != nil {
		p.observe(r)
	}
}
