// Package store persists run artifacts: the filtered playlist, the stats
// snapshot read back by the next run, and the diff report.
//
// Every file is written to a temporary sibling and renamed into place, so a
// reader never sees a partial file.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/streamsweep/streamsweep/engine/playlist"
	"github.com/streamsweep/streamsweep/engine/stats"
)

// ErrCorruptSnapshot is returned when a stats snapshot cannot be decoded.
var ErrCorruptSnapshot = errors.New("store: corrupt snapshot")

// Paths locates the artifacts of a run.
type Paths struct {
	Playlist string
	Stats    string
	Diff     string
}

// DefaultPaths returns the standard artifact names inside dir.
func DefaultPaths(dir string) Paths {
	return Paths{
		Playlist: filepath.Join(dir, "playlist.m3u"),
		Stats:    filepath.Join(dir, "stats.json"),
		Diff:     filepath.Join(dir, "diff_stats.json"),
	}
}

// BackupPath is where WritePlaylist keeps the previous playlist.
func BackupPath(path string) string { return path + ".bak" }

// LoadStats reads the snapshot at path. A missing file means there was no
// previous run and yields (nil, nil).
func LoadStats(path string) (*stats.RunStats, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	var s stats.RunStats
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSnapshot, path, err)
	}
	return &s, nil
}

// WritePlaylist renders entries to path. An existing playlist is copied to
// BackupPath(path) first.
func WritePlaylist(path string, entries []playlist.Entry) error {
	if err := backup(path); err != nil {
		return err
	}
	return WriteAtomic(path, func(w io.Writer) error {
		return playlist.Render(w, entries)
	})
}

// WriteJSON writes v as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", path, err)
	}
	return WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}

// WriteAtomic writes through a temporary file in the same directory and
// renames it over path once write succeeds.
func WriteAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("store: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("store: rename %s: %w", path, err)
	}
	return nil
}

func backup(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", path, err)
	}
	return WriteAtomic(BackupPath(path), func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
}
