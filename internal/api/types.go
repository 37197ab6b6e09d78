package api

import (
	"time"

	"github.com/satindergrewal/sonora/internal/audio"
	"github.com/satindergrewal/sonora/internal/gesture"
	"github.com/satindergrewal/sonora/internal/media"
	"github.com/satindergrewal/sonora/internal/session"
)

// TrackDTO is the wire form of a track.
type TrackDTO struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Artist   string            `json:"artist"`
	Album    string            `json:"album,omitempty"`
	Cover    string            `json:"cover,omitempty"`
	Kind     string            `json:"kind"`
	Duration float64           `json:"duration"`
	Moods    []string          `json:"moods,omitempty"`
	Lyrics   []media.LyricLine `json:"lyrics,omitempty"`
	Favorite bool              `json:"favorite"`
}

func newTrackDTO(t media.Track, favorite bool) TrackDTO {
	return TrackDTO{
		ID:       t.ID,
		Title:    t.Title,
		Artist:   t.Artist,
		Album:    t.Album,
		Cover:    t.Cover,
		Kind:     t.Kind().String(),
		Duration: t.Duration,
		Moods:    t.Moods,
		Lyrics:   t.Lyrics,
		Favorite: favorite,
	}
}

// EqualizerDTO is the wire form of the equalizer settings. Gains are keyed
// by band frequency in Hz.
type EqualizerDTO struct {
	Preset  string          `json:"preset"`
	Gains   map[int]float64 `json:"gains"`
	Presets []string        `json:"presets"`
}

func newEqualizerDTO(eq audio.EqSettings) EqualizerDTO {
	return EqualizerDTO{Preset: eq.Preset, Gains: eq.GainMap(), Presets: audio.PresetNames()}
}

// StatusDTO is the wire form of a session snapshot.
type StatusDTO struct {
	State       string       `json:"state"`
	Track       *TrackDTO    `json:"track,omitempty"`
	Index       int          `json:"index"`
	QueueLength int          `json:"queue_length"`
	CurrentTime float64      `json:"current_time"`
	Duration    float64      `json:"duration"`
	Volume      float64      `json:"volume"`
	Shuffle     bool         `json:"shuffle"`
	Repeat      string       `json:"repeat"`
	Zoomed      bool         `json:"zoomed"`
	Error       string       `json:"error,omitempty"`
	Info        string       `json:"info,omitempty"`
	Lyric       string       `json:"lyric,omitempty"`
	Analysis    bool         `json:"analysis"`
	Equalizer   EqualizerDTO `json:"equalizer"`
}

func newStatusDTO(s session.Snapshot, isFavorite func(string) bool) StatusDTO {
	out := StatusDTO{
		State:       s.State.String(),
		Index:       s.Index,
		QueueLength: s.QueueLen,
		CurrentTime: s.CurrentTime,
		Duration:    s.Duration,
		Volume:      s.Volume,
		Shuffle:     s.Shuffle,
		Repeat:      s.Repeat.String(),
		Zoomed:      s.Zoomed,
		Error:       s.Err,
		Info:        s.Info,
		Analysis:    s.Analysis,
		Equalizer:   newEqualizerDTO(s.Equalizer),
	}
	if s.HasTrack {
		t := newTrackDTO(s.Track, isFavorite(s.Track.ID))
		out.Track = &t
		if line, ok := s.Track.LyricAt(s.CurrentTime); ok {
			out.Lyric = line.Text
		}
	}
	return out
}

// SleepDTO is the wire form of the sleep timer.
type SleepDTO struct {
	Active           bool      `json:"active"`
	Deadline         time.Time `json:"deadline,omitzero"`
	RemainingSeconds float64   `json:"remaining_seconds"`
	FadeSeconds      float64   `json:"fade_seconds"`
}

// GestureDTO reports how a touchmove sample was handled.
type GestureDTO struct {
	Kind           string  `json:"kind"`
	Delta          float64 `json:"delta"`
	Applied        string  `json:"applied"`
	SuppressScroll bool    `json:"suppress_scroll"`
}

func newGestureDTO(r gesture.Result) GestureDTO {
	return GestureDTO{
		Kind:           r.Kind.String(),
		Delta:          r.Delta,
		Applied:        r.Applied.String(),
		SuppressScroll: r.SuppressScroll,
	}
}

// Message types pushed to websocket clients.
const (
	MsgStatus   = "status"
	MsgSpectrum = "spectrum"
	MsgSleep    = "sleep"
	MsgGesture  = "gesture"
	MsgError    = "error"
)

// Message is one websocket frame from the server.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Touch message types accepted from websocket clients.
const (
	TouchStart = "touchstart"
	TouchMove  = "touchmove"
	TouchEnd   = "touchend"
)

// TouchMessage is one raw touch sample from a client surface.
type TouchMessage struct {
	Type   string          `json:"type"`
	Points []gesture.Point `json:"points"`
	Center gesture.Point   `json:"center"`
}
