// Package source downloads the upstream playlist.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/streamsweep/streamsweep/pkg/fn"
)

// DefaultURL is the public iptv-org index.
const DefaultURL = "https://iptv-org.github.io/iptv/index.m3u"

// ErrUnavailable wraps every failure to obtain the upstream playlist.
var ErrUnavailable = errors.New("source: playlist unavailable")

// Fetcher downloads a playlist over HTTP.
type Fetcher struct {
	URL       string
	UserAgent string
	Client    *http.Client
	Retry     fn.RetryOpts
}

// NewFetcher creates a Fetcher with a traced client and the default retry
// policy.
func NewFetcher(url, userAgent string) *Fetcher {
	return &Fetcher{
		URL:       url,
		UserAgent: userAgent,
		Client: &http.Client{
			Timeout:   2 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Retry: fn.DefaultRetry,
	}
}

// Fetch returns the playlist split into lines, with trailing "\r" removed.
func (f *Fetcher) Fetch(ctx context.Context) ([]string, error) {
	r := fn.Retry(ctx, f.Retry, func(ctx context.Context) fn.Result[string] {
		return fn.FromPair(f.get(ctx))
	})
	body, err := r.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, f.URL, err)
	}
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines, nil
}

func (f *Fetcher) get(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return "", err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	return string(body), nil
}
