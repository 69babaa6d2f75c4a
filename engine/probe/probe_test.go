package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streamsweep/streamsweep/engine/playlist"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		err    error
		want   Outcome
	}{
		{"master playlist", 200, "#EXTM3U\n#EXT-X-VERSION:3", nil, Alive},
		{"variant marker only", 200, "junk\n#EXT-X-STREAM-INF:BANDWIDTH=1", nil, Alive},
		{"200 unrelated body", 200, "<html>hello</html>", nil, Dead},
		{"200 empty body", 200, "", nil, Dead},
		{"404", 404, "#EXTM3U", nil, Dead},
		{"500", 500, "", nil, Dead},
		{"302", 302, "", nil, Dead},
		{"deadline", 0, "", fmt.Errorf("get: %w", context.DeadlineExceeded), GeoBlocked},
		{"net timeout", 0, "", timeoutErr{}, GeoBlocked},
		{"refused", 0, "", errors.New("connection refused"), Dead},
		{"canceled", 0, "", context.Canceled, Dead},
		{"body read timeout", 200, "#EXTM3U", timeoutErr{}, GeoBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.status, []byte(tt.body), tt.err); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyGeoStatusIgnoresBody(t *testing.T) {
	bodies := []string{"", "#EXTM3U", "#EXT-X-STREAM-INF", "<html>denied</html>", "\x00\x01"}
	for _, status := range []int{401, 403, 451} {
		for _, b := range bodies {
			if got := Classify(status, []byte(b), nil); got != GeoBlocked {
				t.Fatalf("status %d body %q: got %s", status, b, got)
			}
		}
	}
}

func TestClassifyExactlyOneOutcome(t *testing.T) {
	for status := 100; status < 600; status++ {
		o := Classify(status, []byte("#EXTM3U"), nil)
		var n int
		for _, c := range Outcomes {
			if o == c {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("status %d: outcome %d matched %d known outcomes", status, o, n)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	if Alive.String() != "alive" || GeoBlocked.String() != "geo_blocked" || Dead.String() != "dead" {
		t.Fatal("unexpected outcome names")
	}
	if Dead.Retained() || !Alive.Retained() || !GeoBlocked.Retained() {
		t.Fatal("unexpected retention")
	}
}

func newStreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.m3u8", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "streamsweep-test" {
			http.Error(w, "bad agent", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1280000\nlow.m3u8\n")
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "#EXTM3U", http.StatusForbidden)
	})
	mux.HandleFunc("/html", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html></html>")
	})
	mux.HandleFunc("/slow", func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func entry(i int, url string) playlist.Entry {
	return playlist.NewEntry(i, fmt.Sprintf(`#EXTINF:-1 group-title="News",Chan%d`, i), url)
}

func TestProbe(t *testing.T) {
	srv := newStreamServer(t)
	p := New(Config{Timeout: 100 * time.Millisecond, UserAgent: "streamsweep-test"}, WithClient(srv.Client()))

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name    string
		url     string
		want    Outcome
		wantErr error
	}{
		{"alive", srv.URL + "/ok.m3u8", Alive, nil},
		{"forbidden", srv.URL + "/forbidden", GeoBlocked, nil},
		{"not a playlist", srv.URL + "/html", Dead, nil},
		{"not found", srv.URL + "/missing", Dead, nil},
		{"timeout", srv.URL + "/slow", GeoBlocked, nil},
		{"refused", closedURL + "/x", Dead, nil},
		{"empty url", "", Dead, ErrNoURL},
		{"bad url", "not a url", Dead, ErrBadURL},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := p.Probe(context.Background(), entry(i, tt.url))
			if r.Outcome != tt.want {
				t.Fatalf("got %s (status=%d err=%v), want %s", r.Outcome, r.Status, r.Err, tt.want)
			}
			if tt.wantErr != nil && !errors.Is(r.Err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, r.Err)
			}
		})
	}
}

func TestProbeNoRequestForMissingURL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	p := New(Config{}, WithClient(srv.Client()))
	p.Run(context.Background(), []playlist.Entry{entry(0, ""), entry(1, "")})
	if hits.Load() != 0 {
		t.Fatalf("expected no requests, got %d", hits.Load())
	}
}

func TestRunBoundedConcurrency(t *testing.T) {
	const (
		workers = 2
		n       = 10
		delay   = 50 * time.Millisecond
	)
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(delay)
		fmt.Fprint(w, "#EXTM3U")
	}))
	defer srv.Close()

	entries := make([]playlist.Entry, n)
	for i := range entries {
		entries[i] = entry(i, fmt.Sprintf("%s/%d.m3u8", srv.URL, i))
	}

	p := New(Config{Concurrency: workers, Timeout: 5 * time.Second}, WithClient(srv.Client()))
	start := time.Now()
	results := p.Run(context.Background(), entries)
	elapsed := time.Since(start)

	if elapsed < (n/workers)*delay {
		t.Fatalf("finished in %v, expected at least %v", elapsed, (n/workers)*delay)
	}
	if peak.Load() > workers {
		t.Fatalf("peak in-flight %d exceeds %d", peak.Load(), workers)
	}
	for i, r := range results {
		if r.Entry.Index != i || r.Outcome != Alive {
			t.Fatalf("result %d: %+v", i, r)
		}
	}
}

func TestStreamDeliversEachEntryOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Later entries finish first.
		if r.URL.Path == "/0" {
			time.Sleep(30 * time.Millisecond)
		}
		fmt.Fprint(w, "#EXTM3U")
	}))
	defer srv.Close()

	entries := make([]playlist.Entry, 6)
	for i := range entries {
		entries[i] = entry(i, fmt.Sprintf("%s/%d", srv.URL, i))
	}

	var observed atomic.Int32
	p := New(Config{Concurrency: 3}, WithClient(srv.Client()), WithObserver(func(Result) { observed.Add(1) }))

	seen := make(map[int]int)
	var order []int
	for r := range p.Stream(context.Background(), entries) {
		seen[r.Entry.Index]++
		order = append(order, r.Entry.Index)
	}
	for i := range entries {
		if seen[i] != 1 {
			t.Fatalf("entry %d delivered %d times", i, seen[i])
		}
	}
	if order[0] == 0 {
		t.Fatalf("expected completion order, got %v", order)
	}
	if observed.Load() != int32(len(entries)) {
		t.Fatalf("observer saw %d results", observed.Load())
	}
}

func TestRunCancelledContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Config{}, WithClient(srv.Client()))
	results := p.Run(ctx, []playlist.Entry{entry(0, srv.URL), entry(1, srv.URL)})
	for _, r := range results {
		if r.Outcome != Dead || !errors.Is(r.Err, context.Canceled) {
			t.Fatalf("unexpected result %+v", r)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no requests, got %d", hits.Load())
	}
}

func TestRateLimitExhaustedIsDead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "#EXTM3U")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	p := New(Config{Concurrency: 1, RateLimit: 1}, WithClient(srv.Client()))
	results := p.Run(ctx, []playlist.Entry{entry(0, srv.URL), entry(1, srv.URL)})
	if results[0].Outcome != Alive {
		t.Fatalf("first probe: %+v", results[0])
	}
	if results[1].Outcome != Dead || results[1].Err == nil {
		t.Fatalf("second probe should be rate limited: %+v", results[1])
	}
}

func TestConfigDefaults(t *testing.T) {
	c := New(Config{}).Config()
	if c.Concurrency != DefaultConcurrency || c.Timeout != DefaultTimeout || c.UserAgent != DefaultUserAgent || c.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}
