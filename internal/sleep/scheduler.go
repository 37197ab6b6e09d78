// Package sleep pauses playback at a user-chosen deadline.
package sleep

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is how often an armed timer checks its deadline.
const DefaultInterval = time.Second

// MaxDuration is the longest timer Set accepts.
const MaxDuration = 24 * time.Hour

var ErrInvalidDuration = errors.New("sleep: duration must be positive and at most 24h")

// Pauser is the playback surface the timer stops.
type Pauser interface {
	Pause()
}

// Config holds scheduler parameters. Zero values get defaults.
type Config struct {
	Interval time.Duration
	// FadeDuration is carried on the timer but has no audible effect;
	// playback stops abruptly at the deadline.
	FadeDuration time.Duration
	Now          func() time.Time
	// OnFire is called once each time an armed timer reaches its deadline.
	OnFire func()
}

// Timer is a snapshot of the scheduler state.
type Timer struct {
	Active       bool          `json:"active"`
	Deadline     time.Time     `json:"deadline"`
	FadeDuration time.Duration `json:"fade_duration"`
	Remaining    time.Duration `json:"remaining"`
}

// Scheduler arms a single deadline. The periodic check only runs while a
// timer is armed.
type Scheduler struct {
	pauser Pauser
	logger zerolog.Logger
	cfg    Config

	mu       sync.Mutex
	active   bool
	deadline time.Time
	stop     chan struct{} // non-nil while the check loop runs
}

// NewScheduler creates a disarmed scheduler.
func NewScheduler(p Pauser, logger zerolog.Logger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		pauser: p,
		logger: logger.With().Str("component", "sleep").Logger(),
		cfg:    cfg,
	}
}

// Set arms the timer to fire minutes from now, replacing any earlier deadline.
func (s *Scheduler) Set(minutes float64) error {
	if !(minutes > 0) || minutes > MaxDuration.Minutes() {
		return ErrInvalidDuration
	}
	d := time.Duration(minutes * float64(time.Minute))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.deadline = s.cfg.Now().Add(d)
	if s.stop == nil {
		s.stop = make(chan struct{})
		go s.run(s.stop)
	}
	s.logger.Info().Time("deadline", s.deadline).Msg("sleep timer set")
	return nil
}

// Cancel disarms the timer. Nothing else happens.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active && s.stop == nil {
		return
	}
	s.disarm()
	s.logger.Info().Msg("sleep timer cancelled")
}

// disarm clears the deadline and stops the loop. Must be called with mu held.
func (s *Scheduler) disarm() {
	s.active = false
	s.deadline = time.Time{}
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// Timer returns the current timer state.
func (s *Scheduler) Timer() Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := Timer{Active: s.active, Deadline: s.deadline, FadeDuration: s.cfg.FadeDuration}
	if s.active {
		t.Remaining = max(s.deadline.Sub(s.cfg.Now()), 0)
	}
	return t
}

func (s *Scheduler) run(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if s.check(stop) {
			return
		}
	}
}

// check fires the timer if its deadline has passed. It reports whether
// the loop should exit.
func (s *Scheduler) check(stop chan struct{}) bool {
	s.mu.Lock()
	if s.stop != stop {
		s.mu.Unlock()
		return true
	}
	if !s.active || s.cfg.Now().Before(s.deadline) {
		s.mu.Unlock()
		return false
	}
	s.disarm()
	s.mu.Unlock()

	s.logger.Info().Msg("sleep timer fired, pausing")
	s.pauser.Pause()
	if s.cfg.OnFire != nil {
		s.cfg.OnFire()
	}
	return true
}
