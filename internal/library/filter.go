package library

import (
	"errors"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/satindergrewal/sonora/internal/media"
	"github.com/satindergrewal/sonora/internal/profile"
)

// FuzzyDistance is the largest title edit distance a query still matches.
const FuzzyDistance = 2

// Collection selects which tracks a queue draws from.
type Collection string

const (
	CollectionAll       Collection = "all"
	CollectionFavorites Collection = "favorites"
	CollectionPlaylist  Collection = "playlist"
)

var ErrUnknownCollection = errors.New("library: unknown collection")

// Filter narrows the library down to a queue.
type Filter struct {
	Collection Collection `json:"collection"`
	PlaylistID string     `json:"playlist_id,omitempty"`
	Mood       string     `json:"mood,omitempty"`
	Query      string     `json:"query,omitempty"`
}

// Validate checks the collection name. An empty collection means all.
func (f Filter) Validate() error {
	switch f.Collection {
	case "", CollectionAll, CollectionFavorites:
		return nil
	case CollectionPlaylist:
		if f.PlaylistID == "" {
			return errors.New("library: playlist collection needs a playlist id")
		}
		return nil
	}
	return ErrUnknownCollection
}

// Queue builds a fresh queue from the library and the listener's profile.
// Library order is kept, except for playlists which keep their own order.
func (l *Library) Queue(f Filter, data profile.UserData) media.Queue {
	tracks := l.Tracks()

	switch f.Collection {
	case CollectionFavorites:
		tracks = keep(tracks, func(t media.Track) bool { return data.IsFavorite(t.ID) })
	case CollectionPlaylist:
		p, _ := data.Playlist(f.PlaylistID)
		byID := make(map[string]media.Track, len(tracks))
		for _, t := range tracks {
			byID[t.ID] = t
		}
		tracks = tracks[:0:0]
		for _, id := range p.TrackIDs {
			if t, ok := byID[id]; ok {
				tracks = append(tracks, t)
			}
		}
	}

	if f.Mood != "" {
		tracks = keep(tracks, func(t media.Track) bool { return t.HasMood(f.Mood) })
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		tracks = keep(tracks, func(t media.Track) bool { return Matches(t, q) })
	}
	return media.NewQueue(tracks)
}

// Matches reports whether query hits the track's title, artist or album as
// a case-insensitive substring, or is within FuzzyDistance of the title.
func Matches(t media.Track, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, field := range []string{t.Title, t.Artist, t.Album} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return levenshtein.ComputeDistance(q, strings.ToLower(t.Title)) <= FuzzyDistance
}

func keep(tracks []media.Track, pred func(media.Track) bool) []media.Track {
	out := tracks[:0:0]
	for _, t := range tracks {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}
