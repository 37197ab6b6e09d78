package profile

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MinDebounce is the shortest delay between a change and its push.
const MinDebounce = time.Second

const pushTimeout = 10 * time.Second

var ErrUnknownPlaylist = errors.New("profile: unknown playlist")

type syncKind int

const (
	syncPlaylists syncKind = iota
	syncFavorites
	syncGestures
	syncKinds
)

func (k syncKind) String() string {
	switch k {
	case syncPlaylists:
		return "playlists"
	case syncFavorites:
		return "favorites"
	}
	return "gestures"
}

// Status is the outcome of the most recent push. A failed push only lands
// here; local state is kept either way.
type Status struct {
	Syncing bool      `json:"syncing"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Syncer owns the local profile and pushes each collection to the store
// after it has been quiet for the debounce delay. The three collections
// are debounced independently.
type Syncer struct {
	store  Store
	logger zerolog.Logger
	delay  time.Duration

	mu       sync.Mutex
	idle     *sync.Cond // signalled when a push finishes
	data     UserData
	timers   [syncKinds]*time.Timer
	pending  [syncKinds]bool
	inflight [syncKinds]bool
	status   Status
	onChange func(UserData)
}

// NewSyncer creates a syncer with an empty profile. Delays under
// MinDebounce are raised to it.
func NewSyncer(store Store, delay time.Duration, logger zerolog.Logger) *Syncer {
	s := &Syncer{
		store:  store,
		logger: logger.With().Str("component", "profile").Logger(),
		delay:  max(delay, MinDebounce),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// OnChange registers a callback run after every local change, outside
// the syncer's lock.
func (s *Syncer) OnChange(fn func(UserData)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load replaces local state with the store's copy. On failure the local
// state is left empty and the status records the error.
func (s *Syncer) Load(ctx context.Context) error {
	data, err := s.store.Fetch(ctx)
	s.mu.Lock()
	if err != nil {
		s.status = Status{Error: err.Error(), At: time.Now()}
		s.mu.Unlock()
		s.logger.Warn().Err(err).Msg("profile fetch failed")
		return err
	}
	s.data = cloneData(data)
	s.mu.Unlock()
	s.logger.Info().
		Int("playlists", len(data.Playlists)).
		Int("favorites", len(data.Favorites)).
		Msg("profile loaded")
	s.changed()
	return nil
}

// Data returns a copy of the local profile.
func (s *Syncer) Data() UserData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneData(s.data)
}

// Status returns the outcome of the most recent push.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Syncing = slices.Contains(s.pending[:], true) || slices.Contains(s.inflight[:], true)
	return st
}

// SetFavorite adds or removes id from favorites.
func (s *Syncer) SetFavorite(id string, on bool) {
	s.mu.Lock()
	has := slices.Contains(s.data.Favorites, id)
	switch {
	case on && !has:
		s.data.Favorites = append(s.data.Favorites, id)
	case !on && has:
		s.data.Favorites = slices.DeleteFunc(s.data.Favorites, func(f string) bool { return f == id })
	default:
		s.mu.Unlock()
		return
	}
	s.scheduleLocked(syncFavorites)
	s.mu.Unlock()
	s.changed()
}

// SavePlaylist inserts or replaces a playlist and returns its id. A
// playlist without an id gets a new one.
func (s *Syncer) SavePlaylist(p Playlist) string {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.TrackIDs = slices.Clone(p.TrackIDs)

	s.mu.Lock()
	i := slices.IndexFunc(s.data.Playlists, func(q Playlist) bool { return q.ID == p.ID })
	if i >= 0 {
		s.data.Playlists[i] = p
	} else {
		s.data.Playlists = append(s.data.Playlists, p)
	}
	s.scheduleLocked(syncPlaylists)
	s.mu.Unlock()
	s.changed()
	return p.ID
}

// DeletePlaylist removes a playlist.
func (s *Syncer) DeletePlaylist(id string) error {
	s.mu.Lock()
	i := slices.IndexFunc(s.data.Playlists, func(q Playlist) bool { return q.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return ErrUnknownPlaylist
	}
	s.data.Playlists = slices.Delete(s.data.Playlists, i, i+1)
	s.scheduleLocked(syncPlaylists)
	s.mu.Unlock()
	s.changed()
	return nil
}

// SetGestures replaces the gesture table. Values are assumed validated.
func (s *Syncer) SetGestures(g map[string]string) {
	s.mu.Lock()
	s.data.Gestures = maps.Clone(g)
	s.scheduleLocked(syncGestures)
	s.mu.Unlock()
	s.changed()
}

// Flush pushes every pending collection now.
func (s *Syncer) Flush(ctx context.Context) {
	for k := range syncKinds {
		s.mu.Lock()
		pending := s.pending[k]
		if t := s.timers[k]; t != nil {
			t.Stop()
		}
		s.mu.Unlock()
		if pending {
			s.push(ctx, k)
		}
	}
}

func (s *Syncer) scheduleLocked(k syncKind) {
	s.pending[k] = true
	if s.timers[k] == nil {
		s.timers[k] = time.AfterFunc(s.delay, func() {
			ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
			defer cancel()
			s.push(ctx, k)
		})
		return
	}
	s.timers[k].Reset(s.delay)
}

// push sends collection k if it has unpushed changes. Pushes of one
// collection run one at a time, so the store always ends on the newest copy.
func (s *Syncer) push(ctx context.Context, k syncKind) {
	s.mu.Lock()
	for s.inflight[k] {
		s.idle.Wait()
	}
	if !s.pending[k] {
		s.mu.Unlock()
		return
	}
	s.pending[k] = false
	s.inflight[k] = true
	data := cloneData(s.data)
	s.mu.Unlock()

	var err error
	switch k {
	case syncPlaylists:
		err = s.store.SyncPlaylists(ctx, data.Playlists)
	case syncFavorites:
		err = s.store.SyncFavorites(ctx, data.Favorites)
	case syncGestures:
		err = s.store.SyncGestures(ctx, data.Gestures)
	}

	s.mu.Lock()
	s.inflight[k] = false
	s.idle.Broadcast()
	if err != nil {
		s.status = Status{Error: k.String() + " sync failed: " + err.Error(), At: time.Now()}
	} else {
		s.status = Status{At: time.Now()}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).Str("collection", k.String()).Msg("profile sync failed")
		return
	}
	s.logger.Debug().Str("collection", k.String()).Msg("profile synced")
}

func (s *Syncer) changed() {
	s.mu.Lock()
	fn := s.onChange
	data := cloneData(s.data)
	s.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func cloneData(d UserData) UserData {
	out := UserData{
		Favorites: slices.Clone(d.Favorites),
		Gestures:  maps.Clone(d.Gestures),
	}
	if d.Playlists != nil {
		out.Playlists = make([]Playlist, len(d.Playlists))
		for i, p := range d.Playlists {
			p.TrackIDs = slices.Clone(p.TrackIDs)
			out.Playlists[i] = p
		}
	}
	return out
}
