package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/sonora/internal/audio"
	"github.com/satindergrewal/sonora/internal/gesture"
	"github.com/satindergrewal/sonora/internal/library"
	"github.com/satindergrewal/sonora/internal/media"
	"github.com/satindergrewal/sonora/internal/profile"
	"github.com/satindergrewal/sonora/internal/queue"
	"github.com/satindergrewal/sonora/internal/session"
	"github.com/satindergrewal/sonora/internal/sleep"
	"github.com/satindergrewal/sonora/internal/stream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePlayer struct {
	mu       sync.Mutex
	snap     session.Snapshot
	q        media.Queue
	loaded   []string
	loadErr  error
	toggles  int
	eq       audio.EqSettings
	duration float64
	bus      *stream.Broadcaster[session.Snapshot]
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		snap:     session.Snapshot{Volume: 1, Index: media.NotFound},
		eq:       audio.FlatSettings(),
		duration: 100,
		bus:      stream.NewBroadcaster[session.Snapshot](8),
	}
}

func (f *fakePlayer) publishLocked() { f.bus.Publish(f.snap) }

func (f *fakePlayer) Load(_ context.Context, t media.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, t.ID)
	if f.loadErr != nil {
		return f.loadErr
	}
	f.snap.State = session.Playing
	f.snap.Track, f.snap.HasTrack = t, true
	f.snap.Index = f.q.IndexOf(t.ID)
	f.snap.Duration = f.duration
	f.publishLocked()
	return nil
}

func (f *fakePlayer) TogglePlay(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	if f.q.IsEmpty() && !f.snap.HasTrack {
		return session.ErrEmptyQueue
	}
	return nil
}

func (f *fakePlayer) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.State = session.Paused
}

func (f *fakePlayer) Next(context.Context) error { return f.TogglePlay(context.Background()) }
func (f *fakePlayer) Prev(context.Context) error { return f.TogglePlay(context.Background()) }

func (f *fakePlayer) Seek(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.CurrentTime = max(0, min(t, f.duration))
}

func (f *fakePlayer) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Volume = max(0, min(v, 1))
}

func (f *fakePlayer) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.Volume
}

func (f *fakePlayer) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.CurrentTime
}

func (f *fakePlayer) Duration() float64 { return f.duration }

func (f *fakePlayer) Zoomed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.Zoomed
}

func (f *fakePlayer) SetZoomed(z bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Zoomed = z
}

func (f *fakePlayer) SetQueue(q media.Queue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.q = q
	f.snap.QueueLen = q.Len()
}

func (f *fakePlayer) Queue() media.Queue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.q
}

func (f *fakePlayer) SetShuffle(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Shuffle = on
}

func (f *fakePlayer) SetRepeat(m queue.RepeatMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Repeat = m
}

func (f *fakePlayer) ApplyPreset(name string) (audio.EqSettings, error) {
	eq, err := audio.Preset(name)
	if err != nil {
		return f.Equalizer(), err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eq = eq
	f.snap.Equalizer = eq
	return eq, nil
}

func (f *fakePlayer) SetBandGain(freq, db float64) (audio.EqSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	eq, err := f.eq.WithBand(freq, db)
	if err != nil {
		return f.eq, err
	}
	f.eq = eq
	return eq, nil
}

func (f *fakePlayer) Equalizer() audio.EqSettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eq
}

func (f *fakePlayer) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakePlayer) Subscribe() *stream.Listener[session.Snapshot] { return f.bus.Subscribe() }

func (f *fakePlayer) Unsubscribe(l *stream.Listener[session.Snapshot]) { f.bus.Unsubscribe(l) }

const manifest = `[
  {"id": "a", "title": "Aurora", "artist": "Lumen", "src": "https://cdn.example/a.mp3", "moods": ["calm"],
   "lyrics": [{"time": 0, "text": "hello"}]},
  {"id": "b", "title": "Breaker", "artist": "Tide", "src": "https://cdn.example/b.mp3"},
  {"id": "v", "title": "Vista", "artist": "Lumen", "src": "https://cdn.example/v.mp4", "kind": "video"}
]`

type harness struct {
	player  *fakePlayer
	server  *Server
	profile *profile.Syncer
	sleep   *sleep.Scheduler
	hub     *Hub
	router  http.Handler
	paused  chan struct{}
}

type pauseFunc func()

func (p pauseFunc) Pause() { p() }

func newHarness(t *testing.T) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.json")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	lib := library.New(path, zerolog.Nop())
	require.NoError(t, lib.Load())

	h := &harness{player: newFakePlayer(), paused: make(chan struct{}, 1)}
	h.profile = profile.NewSyncer(profile.NopStore{}, time.Second, zerolog.Nop())
	h.hub = NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.hub.Run(ctx)

	h.sleep = sleep.NewScheduler(pauseFunc(func() { h.paused <- struct{}{} }), zerolog.Nop(), sleep.Config{
		FadeDuration: 5 * time.Second,
	})
	t.Cleanup(h.sleep.Cancel)

	h.server = New(h.player, lib, h.profile, h.sleep, h.hub, zerolog.Nop(), Options{})
	go h.server.Run(ctx)
	h.router = h.server.Router()
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestInitialQueueAndStatus(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{"a", "b", "v"}, h.player.Queue().IDs())

	rec := h.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[StatusDTO](t, rec)
	assert.Equal(t, "idle", st.State)
	assert.Nil(t, st.Track)
	assert.Equal(t, 3, st.QueueLength)
	assert.Equal(t, "off", st.Repeat)
	assert.Equal(t, audio.PresetNames(), st.Equalizer.Presets)

	rec = h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoad(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/load", map[string]string{"id": "a"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[StatusDTO](t, rec)
	assert.Equal(t, "playing", st.State)
	require.NotNil(t, st.Track)
	assert.Equal(t, "Aurora", st.Track.Title)
	assert.Equal(t, "audio", st.Track.Kind)
	assert.Equal(t, "hello", st.Lyric)

	rec = h.do(t, http.MethodPost, "/api/load", map[string]string{"id": "zzz"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/load", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadErrors(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		err  error
		code int
		kind string
	}{
		{session.ErrSuperseded, http.StatusConflict, ""},
		{media.Fail(media.ErrUnsupportedSource, "x", nil), http.StatusUnprocessableEntity, session.ErrKindUnsupportedSource},
		{media.Fail(media.ErrNetworkOrDecode, "x", nil), http.StatusUnprocessableEntity, session.ErrKindNetworkOrDecode},
	}
	for _, tc := range cases {
		h.player.mu.Lock()
		h.player.loadErr = tc.err
		h.player.mu.Unlock()

		rec := h.do(t, http.MethodPost, "/api/load", map[string]string{"id": "b"})
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		body := decode[map[string]string](t, rec)
		assert.Equal(t, tc.kind, body["kind"])
	}
}

func TestTransportControls(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/load", map[string]string{"id": "a"})

	st := decode[StatusDTO](t, h.do(t, http.MethodPost, "/api/seek", map[string]float64{"time": 500}))
	assert.Equal(t, 100.0, st.CurrentTime)

	st = decode[StatusDTO](t, h.do(t, http.MethodPost, "/api/volume", map[string]float64{"volume": 0}))
	assert.Equal(t, 0.0, st.Volume, "zero is a valid volume")

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/volume", map[string]string{}).Code)

	st = decode[StatusDTO](t, h.do(t, http.MethodPost, "/api/shuffle", map[string]bool{"enabled": true}))
	assert.True(t, st.Shuffle)

	st = decode[StatusDTO](t, h.do(t, http.MethodPost, "/api/repeat", map[string]string{"mode": "ONE"}))
	assert.Equal(t, "one", st.Repeat)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/repeat", map[string]string{"mode": "twice"}).Code)

	st = decode[StatusDTO](t, h.do(t, http.MethodPost, "/api/zoom", map[string]bool{"enabled": true}))
	assert.True(t, st.Zoomed)

	st = decode[StatusDTO](t, h.do(t, http.MethodPost, "/api/pause", nil))
	assert.Equal(t, "paused", st.State)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/toggle", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/next", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/prev", nil).Code)
}

func TestEmptyQueueConflict(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/filter", map[string]string{"query": "nothing matches this"})
	assert.True(t, h.player.Queue().IsEmpty())

	rec := h.do(t, http.MethodPost, "/api/next", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEqualizer(t *testing.T) {
	h := newHarness(t)

	eq := decode[EqualizerDTO](t, h.do(t, http.MethodPost, "/api/eq/preset", map[string]string{"preset": "bass boost"}))
	assert.Equal(t, audio.PresetBassBoost, eq.Preset)
	assert.Equal(t, 8.0, eq.Gains[60])
	assert.Equal(t, 2.0, eq.Gains[16000])

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/eq/preset", map[string]string{"preset": "loud"}).Code)

	eq = decode[EqualizerDTO](t, h.do(t, http.MethodPost, "/api/eq/band", map[string]float64{"frequency": 1000, "gain": 30}))
	assert.Equal(t, audio.PresetCustom, eq.Preset)
	assert.Equal(t, 12.0, eq.Gains[1000], "clamped")

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/eq/band", map[string]float64{"frequency": 123, "gain": 1}).Code)

	eq = decode[EqualizerDTO](t, h.do(t, http.MethodGet, "/api/eq", nil))
	assert.Equal(t, audio.PresetCustom, eq.Preset)
}

func TestSleepTimer(t *testing.T) {
	h := newHarness(t)

	timer := decode[SleepDTO](t, h.do(t, http.MethodGet, "/api/sleep", nil))
	assert.False(t, timer.Active)

	timer = decode[SleepDTO](t, h.do(t, http.MethodPost, "/api/sleep", map[string]float64{"minutes": 30}))
	assert.True(t, timer.Active)
	assert.InDelta(t, 1800, timer.RemainingSeconds, 1)
	assert.Equal(t, 5.0, timer.FadeSeconds)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/sleep", map[string]float64{"minutes": -1}).Code)

	timer = decode[SleepDTO](t, h.do(t, http.MethodDelete, "/api/sleep", nil))
	assert.False(t, timer.Active)
	assert.Zero(t, len(h.paused))
}

func TestFilterAndFavorites(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/filter", map[string]string{"query": "lumen"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a", "v"}, h.player.Queue().IDs())

	rec = h.do(t, http.MethodPost, "/api/filter", map[string]string{"collection": "favorites"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.player.Queue().IsEmpty())

	// favoriting recomputes the active queue
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/favorites/b", nil).Code)
	assert.Equal(t, []string{"b"}, h.player.Queue().IDs())
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/api/favorites/zzz", nil).Code)

	body := decode[struct {
		Tracks []TrackDTO `json:"tracks"`
	}](t, h.do(t, http.MethodGet, "/api/queue", nil))
	require.Len(t, body.Tracks, 1)
	assert.True(t, body.Tracks[0].Favorite)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, "/api/favorites/b", nil).Code)
	assert.True(t, h.player.Queue().IsEmpty())

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/filter", map[string]string{"collection": "recent"}).Code)

	f := decode[library.Filter](t, h.do(t, http.MethodGet, "/api/filter", nil))
	assert.Equal(t, library.CollectionFavorites, f.Collection)
}

func TestPlaylists(t *testing.T) {
	h := newHarness(t)

	p := decode[profile.Playlist](t, h.do(t, http.MethodPost, "/api/playlists",
		map[string]any{"name": "Night", "track_ids": []string{"v", "a"}}))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, []string{"v", "a"}, p.TrackIDs)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/playlists",
		map[string]any{"name": "Bad", "track_ids": []string{"nope"}}).Code)

	h.do(t, http.MethodPost, "/api/filter", map[string]string{"collection": "playlist", "playlist_id": p.ID})
	assert.Equal(t, []string{"v", "a"}, h.player.Queue().IDs())

	body := decode[struct {
		Playlists []profile.Playlist `json:"playlists"`
	}](t, h.do(t, http.MethodGet, "/api/playlists", nil))
	assert.Len(t, body.Playlists, 1)

	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/api/playlists/"+p.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/api/playlists/"+p.ID, nil).Code)
	assert.True(t, h.player.Queue().IsEmpty())

	rec := h.do(t, http.MethodGet, "/api/profile/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[profile.Status](t, rec).Error)
}

func TestGestures(t *testing.T) {
	h := newHarness(t)

	g := decode[map[string]string](t, h.do(t, http.MethodGet, "/api/gestures", nil))
	assert.Equal(t, map[string]string{"swipe": "seek", "pinch": "volume", "circle": "none"}, g)

	g = decode[map[string]string](t, h.do(t, http.MethodPost, "/api/gestures", map[string]string{"circle": "zoom"}))
	assert.Equal(t, "zoom", g["circle"])
	assert.Equal(t, "zoom", h.profile.Data().Gestures["circle"], "persisted through the profile")

	rec := h.do(t, http.MethodPost, "/api/gestures", map[string]string{"circle": "spin", "swipe": "none"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	g = decode[map[string]string](t, h.do(t, http.MethodGet, "/api/gestures", nil))
	assert.Equal(t, "seek", g["swipe"], "rejected updates change nothing")
}

func TestStoredGesturesSeedServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.json")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	lib := library.New(path, zerolog.Nop())
	require.NoError(t, lib.Load())

	prof := profile.NewSyncer(profile.NopStore{}, time.Second, zerolog.Nop())
	prof.SetGestures(map[string]string{"pinch": "zoom"})
	s := New(newFakePlayer(), lib, prof, nil, NewHub(zerolog.Nop()), zerolog.Nop(), Options{})
	assert.Equal(t, "zoom", s.gestureConfig().Pinch.String())
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/seek", nil)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func readMessage(t *testing.T, conn *websocket.Conn, typ string) json.RawMessage {
	t.Helper()
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg.Data
		}
	}
}

func TestWebsocket(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var st StatusDTO
	require.NoError(t, json.Unmarshal(readMessage(t, conn, MsgStatus), &st))
	assert.Equal(t, "idle", st.State)
	require.Eventually(t, func() bool { return h.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// session changes are pushed
	h.do(t, http.MethodPost, "/api/load", map[string]string{"id": "b"})
	require.NoError(t, json.Unmarshal(readMessage(t, conn, MsgStatus), &st))
	assert.Equal(t, "playing", st.State)

	// spectrum frames go to every client
	SpectrumSink(h.hub)([]float64{0.5, 0.25})
	var bars []float64
	require.NoError(t, json.Unmarshal(readMessage(t, conn, MsgSpectrum), &bars))
	assert.Equal(t, []float64{0.5, 0.25}, bars)

	// a two-finger spread drives volume through the client's interpreter
	h.player.SetVolume(0.5)
	require.NoError(t, conn.WriteJSON(TouchMessage{
		Type:   TouchStart,
		Points: []gesture.Point{{X: 100, Y: 200}, {X: 200, Y: 200}},
		Center: gesture.Point{X: 150, Y: 150},
	}))
	require.NoError(t, conn.WriteJSON(TouchMessage{
		Type:   TouchMove,
		Points: []gesture.Point{{X: 80, Y: 200}, {X: 220, Y: 200}},
	}))
	var g GestureDTO
	require.NoError(t, json.Unmarshal(readMessage(t, conn, MsgGesture), &g))
	assert.Equal(t, "pinch", g.Kind)
	assert.Equal(t, "volume", g.Applied)
	assert.True(t, g.SuppressScroll)
	assert.InDelta(t, 0.7, h.player.Volume(), 1e-9)
	require.NoError(t, conn.WriteJSON(TouchMessage{Type: TouchEnd}))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "wave"}))
	var errMsg string
	require.NoError(t, json.Unmarshal(readMessage(t, conn, MsgError), &errMsg))
	assert.Contains(t, errMsg, "wave")
}
