// Package media holds the playable unit and queue types shared by the
// session, library and player packages.
package media

import (
	"errors"
	"sort"
	"strings"
)

// Kind is the media class of a track. It never changes after construction.
type Kind int

const (
	KindAudio Kind = iota // streamable audio
	KindVideo
)

func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "audio"
}

// ParseKind maps a manifest value to a Kind. Unknown values are audio.
func ParseKind(s string) Kind {
	if strings.EqualFold(strings.TrimSpace(s), "video") {
		return KindVideo
	}
	return KindAudio
}

// LyricLine is one time-coded lyric.
type LyricLine struct {
	Time float64 `json:"time"` // seconds
	Text string  `json:"text"`
}

var ErrInvalidTrack = errors.New("media: invalid track")

// Track is one playable media unit. Values are copied freely; the kind is
// only assigned through NewTrack.
type Track struct {
	ID       string
	Title    string
	Artist   string
	Album    string
	Cover    string
	Src      string
	Duration float64 // seconds
	Moods    []string
	Lyrics   []LyricLine

	kind Kind
}

// NewTrack builds a track with a fixed kind. Lyrics are sorted by time.
func NewTrack(id, src string, kind Kind) (Track, error) {
	if id == "" || src == "" {
		return Track{}, ErrInvalidTrack
	}
	return Track{ID: id, Src: src, kind: kind}, nil
}

// Kind returns the track's media class.
func (t Track) Kind() Kind { return t.kind }

// IsVideo reports whether the track needs the visual surface.
func (t Track) IsVideo() bool { return t.kind == KindVideo }

// WithLyrics returns a copy of t carrying the given lyrics in time order.
func (t Track) WithLyrics(lines []LyricLine) Track {
	sorted := make([]LyricLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	t.Lyrics = sorted
	return t
}

// HasMood reports whether the track is tagged with mood (case-insensitive).
func (t Track) HasMood(mood string) bool {
	for _, m := range t.Moods {
		if strings.EqualFold(m, mood) {
			return true
		}
	}
	return false
}

// LyricAt returns the lyric line active at the given elapsed time.
func (t Track) LyricAt(seconds float64) (LyricLine, bool) {
	idx := sort.Search(len(t.Lyrics), func(i int) bool { return t.Lyrics[i].Time > seconds })
	if idx == 0 {
		return LyricLine{}, false
	}
	return t.Lyrics[idx-1], true
}
