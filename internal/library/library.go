// Package library loads the source track list from a JSON manifest and
// derives playback queues from it.
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dhowden/tag"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/satindergrewal/sonora/internal/media"
)

// entry is one manifest record.
type entry struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Artist   string            `json:"artist"`
	Album    string            `json:"album"`
	Cover    string            `json:"cover"`
	Src      string            `json:"src"`
	Kind     string            `json:"kind"`
	Duration float64           `json:"duration"`
	Moods    []string          `json:"moods"`
	Lyrics   []media.LyricLine `json:"lyrics"`
}

// Library holds the source track list. It is safe for concurrent use.
type Library struct {
	path   string
	logger zerolog.Logger

	mu       sync.RWMutex
	tracks   []media.Track
	onReload func()
}

// New creates an empty library backed by the manifest at path.
func New(path string, logger zerolog.Logger) *Library {
	return &Library{
		path:   path,
		logger: logger.With().Str("component", "library").Logger(),
	}
}

// Load reads the manifest, replacing the current track list. Entries
// without an id or src are skipped.
func (l *Library) Load() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	base := filepath.Dir(l.path)
	tracks := make([]media.Track, 0, len(entries))
	for _, e := range entries {
		t, err := l.toTrack(e, base)
		if err != nil {
			l.logger.Warn().Str("id", e.ID).Err(err).Msg("skipping manifest entry")
			continue
		}
		tracks = append(tracks, t)
	}

	l.mu.Lock()
	l.tracks = tracks
	l.mu.Unlock()
	l.logger.Info().Int("tracks", len(tracks)).Str("path", l.path).Msg("library loaded")
	return nil
}

func (l *Library) toTrack(e entry, base string) (media.Track, error) {
	src := e.Src
	if !isRemote(src) && src != "" && !filepath.IsAbs(src) {
		src = filepath.Join(base, src)
	}
	t, err := media.NewTrack(e.ID, src, media.ParseKind(e.Kind))
	if err != nil {
		return media.Track{}, err
	}
	t.Title = e.Title
	t.Artist = e.Artist
	t.Album = e.Album
	t.Cover = e.Cover
	t.Duration = e.Duration
	t.Moods = e.Moods
	t = t.WithLyrics(e.Lyrics)

	if !isRemote(src) && (t.Title == "" || t.Artist == "" || t.Album == "") {
		l.enrich(&t)
	}
	if t.Title == "" {
		t.Title = strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	}
	return t, nil
}

// enrich fills missing title, artist and album from embedded tags.
func (l *Library) enrich(t *media.Track) {
	f, err := os.Open(t.Src)
	if err != nil {
		return
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		l.logger.Debug().Str("id", t.ID).Err(err).Msg("no tags")
		return
	}
	if t.Title == "" {
		t.Title = meta.Title()
	}
	if t.Artist == "" {
		t.Artist = meta.Artist()
	}
	if t.Album == "" {
		t.Album = meta.Album()
	}
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Tracks returns a copy of the source track list.
func (l *Library) Tracks() []media.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]media.Track, len(l.tracks))
	copy(out, l.tracks)
	return out
}

// Lookup finds a track by id.
func (l *Library) Lookup(id string) (media.Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.tracks {
		if t.ID == id {
			return t, true
		}
	}
	return media.Track{}, false
}

// OnReload registers a callback run after Watch reloads the manifest.
func (l *Library) OnReload(fn func()) {
	l.mu.Lock()
	l.onReload = fn
	l.mu.Unlock()
}

// Watch reloads the manifest whenever it is written or replaced, until
// ctx is cancelled.
func (l *Library) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so editors that replace the file are seen.
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("watch %s: %w", l.path, err)
	}
	name := filepath.Clean(l.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := l.Load(); err != nil {
				l.logger.Warn().Err(err).Msg("manifest reload failed")
				continue
			}
			l.mu.RLock()
			fn := l.onReload
			l.mu.RUnlock()
			if fn != nil {
				fn()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}
