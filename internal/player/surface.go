package player

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/satindergrewal/sonora/internal/media"
)

// Surface is a visual resource with no decodable audio. It owns its own
// timeline: playback advances in real time up to the duration given by
// the source, then reports ended. It never accepts a processor.
type Surface struct {
	id     string
	logger zerolog.Logger
	events *notifier
	tick   time.Duration
	now    func() time.Time

	mu       sync.Mutex
	loaded   bool
	duration float64
	offset   float64   // position when last paused or seeked
	started  time.Time // zero while paused
	volume   float64
	stop     chan struct{}
}

// NewSurface creates an empty visual surface.
func NewSurface(logger zerolog.Logger) *Surface {
	id := uuid.NewString()
	return &Surface{
		id:     id,
		logger: logger.With().Str("component", "surface").Str("surface", id[:8]).Logger(),
		events: newNotifier(),
		tick:   timeUpdateInterval,
		now:    time.Now,
		volume: 1,
	}
}

func (s *Surface) ID() string { return s.id }

func (s *Surface) Subscribe(fn func(media.Event)) func() { return s.events.subscribe(fn) }

// Load binds a new timeline of src.Duration seconds.
func (s *Surface) Load(ctx context.Context, src media.Source) error {
	if err := ctx.Err(); err != nil {
		return media.Fail(media.ErrAborted, src.URL, err)
	}
	s.mu.Lock()
	s.halt()
	s.loaded = true
	s.duration = max(src.Duration, 0)
	s.offset = 0
	s.mu.Unlock()

	s.logger.Debug().Str("src", src.URL).Float64("duration", src.Duration).Msg("surface loaded")
	s.events.emit(media.Event{Type: media.EventDurationKnown, Duration: src.Duration})
	s.events.emit(media.Event{Type: media.EventTimeUpdate, Time: 0})
	return nil
}

func (s *Surface) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNoSource
	}
	if !s.started.IsZero() {
		return nil
	}
	if s.offset >= s.duration {
		s.offset = 0
	}
	s.started = s.now()
	s.stop = make(chan struct{})
	go s.run(s.stop)
	return nil
}

func (s *Surface) Pause() {
	s.mu.Lock()
	s.halt()
	s.mu.Unlock()
}

// halt freezes the timeline at the current position. Must be called with mu held.
func (s *Surface) halt() {
	if s.started.IsZero() {
		return
	}
	s.offset = s.positionLocked()
	s.started = time.Time{}
	close(s.stop)
	s.stop = nil
}

func (s *Surface) Seek(seconds float64) {
	s.mu.Lock()
	seconds = max(0, min(seconds, s.duration))
	s.offset = seconds
	if !s.started.IsZero() {
		s.started = s.now()
	}
	s.mu.Unlock()
	s.events.emit(media.Event{Type: media.EventTimeUpdate, Time: seconds})
}

func (s *Surface) SetVolume(v float64) {
	v = max(0, min(v, 1))
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
	s.events.emit(media.Event{Type: media.EventVolumeChanged, Volume: v})
}

// Position returns the current timeline position in seconds.
func (s *Surface) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Surface) positionLocked() float64 {
	if s.started.IsZero() {
		return s.offset
	}
	return min(s.offset+s.now().Sub(s.started).Seconds(), s.duration)
}

func (s *Surface) run(stop chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.stop != stop {
			s.mu.Unlock()
			return
		}
		t := s.positionLocked()
		ended := t >= s.duration
		if ended {
			s.offset = s.duration
			s.started = time.Time{}
			s.stop = nil
		}
		s.mu.Unlock()

		s.events.emit(media.Event{Type: media.EventTimeUpdate, Time: t})
		if ended {
			s.events.emit(media.Event{Type: media.EventEnded, Time: t})
			return
		}
	}
}

// Close stops the timeline and event delivery.
func (s *Surface) Close() error {
	s.Pause()
	s.events.close()
	return nil
}

var _ media.Resource = (*Surface)(nil)
