package session

import (
	"errors"

	"github.com/satindergrewal/sonora/internal/audio"
	"github.com/satindergrewal/sonora/internal/media"
	"github.com/satindergrewal/sonora/internal/queue"
)

// State is the playback state machine:
// Idle -> Loading -> {Playing, Paused, Error}; Playing <-> Paused.
type State int

const (
	Idle State = iota
	Loading
	Playing
	Paused
	Error
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Error:
		return "error"
	}
	return "idle"
}

var (
	// ErrSuperseded is returned by a Load that a later Load replaced. It
	// is benign: the session state belongs to the newer request.
	ErrSuperseded = errors.New("session: load superseded")
	ErrEmptyQueue = errors.New("session: queue is empty")
	ErrNoTrack    = errors.New("session: no track loaded")
	ErrClosed     = errors.New("session: closed")
)

// Error kinds reported in Snapshot.Err.
const (
	ErrKindUnsupportedSource = "unsupported_source"
	ErrKindNetworkOrDecode   = "network_or_decode"
)

func errKind(err error) string {
	if errors.Is(err, media.ErrUnsupportedSource) {
		return ErrKindUnsupportedSource
	}
	return ErrKindNetworkOrDecode
}

// Snapshot is a copy of the observable session state.
type Snapshot struct {
	State       State
	Track       media.Track
	HasTrack    bool
	Index       int // position of Track in the queue, or media.NotFound
	QueueLen    int
	CurrentTime float64
	Duration    float64
	Volume      float64
	Shuffle     bool
	Repeat      queue.RepeatMode
	Zoomed      bool
	Err         string // one of the ErrKind constants while in Error
	Info        string // informational notice, e.g. degraded playback
	Equalizer   audio.EqSettings
	Analysis    bool // equalizer and spectrum are live for this track
}
