package media

import (
	"context"

	"github.com/gopxl/beep/v2"
)

// EventType enumerates resource notifications.
type EventType int

const (
	EventTimeUpdate EventType = iota
	EventDurationKnown
	EventEnded
	EventError
	EventVolumeChanged
)

func (e EventType) String() string {
	switch e {
	case EventTimeUpdate:
		return "timeupdate"
	case EventDurationKnown:
		return "durationchange"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	case EventVolumeChanged:
		return "volumechange"
	}
	return "unknown"
}

// Event is delivered to resource subscribers. Time, Duration and Volume are
// set according to Type.
type Event struct {
	Type     EventType
	Time     float64
	Duration float64
	Volume   float64
	Err      error
}

// Source describes what to load. Analysable requests a decode path the
// signal graph can be attached to; when false the resource may use an
// opaque decoder and bypasses processors. Duration is a hint for surfaces
// that cannot probe the media themselves.
type Source struct {
	URL        string
	Analysable bool
	Duration   float64
}

// Resource is a playable media surface. Events are delivered on the
// resource's own goroutine, never from inside a method call.
type Resource interface {
	// ID is the stable identity of this resource instance.
	ID() string
	// Load replaces the current source. It blocks until the source is ready
	// or fails; a cancelled ctx yields ErrAborted.
	Load(ctx context.Context, src Source) error
	Play() error
	Pause()
	Seek(seconds float64)
	SetVolume(v float64)
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Processor is a stage inserted into a resource's output chain.
type Processor interface {
	Wrap(src beep.Streamer, sampleRate beep.SampleRate) beep.Streamer
}

// Processable is implemented by resources that accept a single processor for
// their lifetime. Sources loaded with Analysable=false bypass it.
type Processable interface {
	Install(p Processor) error
}
