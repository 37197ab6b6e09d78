package library

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/sonora/internal/media"
	"github.com/satindergrewal/sonora/internal/profile"
)

const manifest = `[
  {"id": "a", "title": "Aurora", "artist": "Lumen", "album": "North", "src": "a.mp3", "moods": ["calm"], "duration": 200},
  {"id": "b", "title": "Breaker", "artist": "Tide", "album": "Coast", "src": "https://cdn.example/b.mp3", "moods": ["Energetic"]},
  {"id": "v", "title": "Vista", "artist": "Lumen", "src": "v.mp4", "kind": "video",
   "lyrics": [{"time": 10, "text": "second"}, {"time": 2, "text": "first"}]},
  {"id": "a", "title": "Duplicate", "src": "dup.mp3"},
  {"id": "", "title": "No id", "src": "x.mp3"},
  {"id": "c", "title": "Cascade", "artist": "Tide", "album": "Coast", "src": "c.mp3", "moods": ["calm", "energetic"]}
]`

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "library.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func loadLibrary(t *testing.T) *Library {
	t.Helper()
	l := New(writeManifest(t, t.TempDir(), manifest), zerolog.Nop())
	require.NoError(t, l.Load())
	return l
}

func TestLoadManifest(t *testing.T) {
	l := loadLibrary(t)
	tracks := l.Tracks()
	require.Len(t, tracks, 5, "entries without an id are skipped")

	a, ok := l.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "Aurora", a.Title)
	assert.True(t, filepath.IsAbs(a.Src), "local paths resolve against the manifest")

	b, _ := l.Lookup("b")
	assert.Equal(t, "https://cdn.example/b.mp3", b.Src)

	v, _ := l.Lookup("v")
	assert.True(t, v.IsVideo())
	assert.Equal(t, "first", v.Lyrics[0].Text)
	line, ok := v.LyricAt(5)
	require.True(t, ok)
	assert.Equal(t, "first", line.Text)

	assert.Error(t, New(filepath.Join(t.TempDir(), "missing.json"), zerolog.Nop()).Load())
}

func TestQueueDedupesAndKeepsOrder(t *testing.T) {
	l := loadLibrary(t)
	q := l.Queue(Filter{Collection: CollectionAll}, profile.UserData{})
	assert.Equal(t, []string{"a", "b", "v", "c"}, q.IDs())
	got, _ := q.Lookup("a")
	assert.Equal(t, "Aurora", got.Title, "first occurrence wins")
}

func TestQueueCollections(t *testing.T) {
	l := loadLibrary(t)
	data := profile.UserData{
		Favorites: []string{"c", "a", "gone"},
		Playlists: []profile.Playlist{{ID: "p", Name: "Mix", TrackIDs: []string{"c", "v", "missing", "c"}}},
	}

	fav := l.Queue(Filter{Collection: CollectionFavorites}, data)
	assert.Equal(t, []string{"a", "c"}, fav.IDs(), "library order")

	pl := l.Queue(Filter{Collection: CollectionPlaylist, PlaylistID: "p"}, data)
	assert.Equal(t, []string{"c", "v"}, pl.IDs(), "playlist order, deduplicated")
	assert.Equal(t, media.NotFound, pl.IndexOf("missing"))

	none := l.Queue(Filter{Collection: CollectionPlaylist, PlaylistID: "nope"}, data)
	assert.True(t, none.IsEmpty())
}

func TestQueueMoodAndQuery(t *testing.T) {
	l := loadLibrary(t)
	var data profile.UserData

	assert.Equal(t, []string{"b", "c"}, l.Queue(Filter{Mood: "energetic"}, data).IDs())
	assert.Equal(t, []string{"b", "c"}, l.Queue(Filter{Query: "tide"}, data).IDs())
	assert.Equal(t, []string{"a", "v"}, l.Queue(Filter{Query: "LUMEN"}, data).IDs())
	assert.Equal(t, []string{"c"}, l.Queue(Filter{Mood: "calm", Query: "coast"}, data).IDs())

	// fuzzy title match within two edits
	assert.Equal(t, []string{"c"}, l.Queue(Filter{Query: "cascdae"}, data).IDs())
	assert.Empty(t, l.Queue(Filter{Query: "zzzzzz"}, data).IDs())
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{}.Validate())
	assert.NoError(t, Filter{Collection: CollectionFavorites}.Validate())
	assert.Error(t, Filter{Collection: CollectionPlaylist}.Validate())
	assert.ErrorIs(t, Filter{Collection: "recent"}.Validate(), ErrUnknownCollection)
}

func id3Frame(id, text string) []byte {
	body := append([]byte{0}, text...)
	out := []byte(id)
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	out = append(out, 0, 0)
	return append(out, body...)
}

func TestEnrichFromTags(t *testing.T) {
	dir := t.TempDir()
	var frames []byte
	frames = append(frames, id3Frame("TIT2", "Tagged Title")...)
	frames = append(frames, id3Frame("TPE1", "Tagged Artist")...)
	frames = append(frames, id3Frame("TALB", "Tagged Album")...)
	header := []byte{'I', 'D', '3', 3, 0, 0, 0, 0, 0, byte(len(frames))}
	file := append(header, frames...)
	file = append(file, make([]byte, 64)...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t.mp3"), file, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain.mp3"), []byte("not audio"), 0o644))

	path := writeManifest(t, dir, `[
	  {"id": "t", "artist": "Manifest Artist", "src": "t.mp3"},
	  {"id": "p", "src": "plain.mp3"}
	]`)
	l := New(path, zerolog.Nop())
	require.NoError(t, l.Load())

	tr, _ := l.Lookup("t")
	assert.Equal(t, "Tagged Title", tr.Title)
	assert.Equal(t, "Manifest Artist", tr.Artist, "manifest values win")
	assert.Equal(t, "Tagged Album", tr.Album)

	p, _ := l.Lookup("p")
	assert.Equal(t, "plain", p.Title, "falls back to the file name")
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `[{"id": "a", "src": "a.mp3"}]`)
	l := New(path, zerolog.Nop())
	require.NoError(t, l.Load())

	reloaded := make(chan struct{}, 8)
	l.OnReload(func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx) }()

	updated := `[{"id": "a", "src": "a.mp3"}, {"id": "b", "src": "b.mp3"}]`
	require.Eventually(t, func() bool {
		os.WriteFile(path, []byte(updated), 0o644)
		select {
		case <-reloaded:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	assert.Len(t, l.Tracks(), 2)
	_, ok := l.Lookup("b")
	assert.True(t, ok)

	cancel()
	assert.NoError(t, <-done)
}
