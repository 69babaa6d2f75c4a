package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/streamsweep/streamsweep/engine/playlist"
	"github.com/streamsweep/streamsweep/engine/stats"
)

func TestDefaultPaths(t *testing.T) {
	p := DefaultPaths("/data")
	if p.Playlist != "/data/playlist.m3u" || p.Stats != "/data/stats.json" || p.Diff != "/data/diff_stats.json" {
		t.Fatalf("unexpected paths %+v", p)
	}
}

func TestLoadStatsMissing(t *testing.T) {
	s, err := LoadStats(filepath.Join(t.TempDir(), "nope.json"))
	if s != nil || err != nil {
		t.Fatalf("expected nil, nil; got %v, %v", s, err)
	}
}

func TestLoadStatsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	os.WriteFile(path, []byte("{not json"), 0o644)

	_, err := LoadStats(path)
	if !errors.Is(err, ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}
}

func TestStatsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	s := stats.New()
	s.TotalChannels = 2
	s.ByCountry["US"] = 2
	s.Channels.Add("A")
	s.Channels.Add("B")

	if err := WriteJSON(path, s); err != nil {
		t.Fatal(err)
	}
	back, err := LoadStats(path)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(s) {
		t.Fatalf("got %+v", back)
	}
}

func TestWritePlaylistKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playlist.m3u")

	first := []playlist.Entry{playlist.NewEntry(0, "#EXTINF:-1,A", "http://a")}
	second := []playlist.Entry{playlist.NewEntry(0, "#EXTINF:-1,B", "http://b")}

	if err := WritePlaylist(path, first); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(BackupPath(path)); !os.IsNotExist(err) {
		t.Fatal("no backup expected on first write")
	}
	if err := WritePlaylist(path, second); err != nil {
		t.Fatal(err)
	}

	cur, _ := os.ReadFile(path)
	bak, _ := os.ReadFile(BackupPath(path))
	if string(cur) != "#EXTM3U\n#EXTINF:-1,B\nhttp://b" {
		t.Fatalf("current: %q", cur)
	}
	if string(bak) != "#EXTM3U\n#EXTINF:-1,A\nhttp://a" {
		t.Fatalf("backup: %q", bak)
	}

	// No temporary files are left behind.
	names, _ := os.ReadDir(dir)
	if len(names) != 2 {
		t.Fatalf("unexpected files: %v", names)
	}
}

func TestWriteAtomicFailureKeepsOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	os.WriteFile(path, []byte("original"), 0o644)

	boom := errors.New("boom")
	err := WriteAtomic(path, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "original" {
		t.Fatalf("original overwritten: %q", data)
	}
}
