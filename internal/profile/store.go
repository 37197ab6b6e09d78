// Package profile persists the listener's playlists, favorites and gesture
// table. Local state is authoritative; stores only receive pushes.
package profile

import (
	"context"
	"errors"
	"slices"
)

var (
	ErrUnknownDriver = errors.New("profile: unknown store driver")
	ErrUnavailable   = errors.New("profile: store unavailable")
)

// Playlist is a named, ordered list of track ids.
type Playlist struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	TrackIDs []string `json:"track_ids"`
}

// UserData is everything fetched from a store at start.
type UserData struct {
	Playlists []Playlist        `json:"playlists"`
	Favorites []string          `json:"favorites"`
	Gestures  map[string]string `json:"gestures"`
}

// Playlist returns the playlist with the given id.
func (d UserData) Playlist(id string) (Playlist, bool) {
	for _, p := range d.Playlists {
		if p.ID == id {
			return p, true
		}
	}
	return Playlist{}, false
}

// IsFavorite reports whether a track id is in the favorites list.
func (d UserData) IsFavorite(id string) bool {
	return slices.Contains(d.Favorites, id)
}

// Store is the persistence collaborator.
type Store interface {
	Fetch(ctx context.Context) (UserData, error)
	SyncPlaylists(ctx context.Context, playlists []Playlist) error
	SyncFavorites(ctx context.Context, favorites []string) error
	SyncGestures(ctx context.Context, gestures map[string]string) error
}

// NopStore keeps nothing. It is used when no driver is configured.
type NopStore struct{}

func (NopStore) Fetch(context.Context) (UserData, error)                { return UserData{}, nil }
func (NopStore) SyncPlaylists(context.Context, []Playlist) error        { return nil }
func (NopStore) SyncFavorites(context.Context, []string) error          { return nil }
func (NopStore) SyncGestures(context.Context, map[string]string) error { return nil }
