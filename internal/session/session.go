// Package session owns playback: which track is bound to which media
// resource, the state machine around loads, queue sequencing and the
// equalizer/spectrum graph attached to the audio resource.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/sonora/internal/audio"
	"github.com/satindergrewal/sonora/internal/media"
	"github.com/satindergrewal/sonora/internal/queue"
	"github.com/satindergrewal/sonora/internal/stream"
)

// Notices surfaced in Snapshot.Info.
const (
	InfoDegraded    = "playing without equalizer: source does not allow analysis"
	InfoNoEqualizer = "equalizer unavailable for this source"
)

const notifyBuffer = 64

// Options configure a Session.
type Options struct {
	// Analysis requests analysable decoding first so the equalizer and
	// spectrum can attach. Sources that refuse it are retried without.
	Analysis bool
	// Volume is the initial level in (0, 1]; zero means full volume.
	Volume       float64
	Rand         *rand.Rand
	SpectrumTick time.Duration
	// OnSpectrum receives normalized bars once per tick while playing. It
	// runs on the spectrum goroutine and must not call into the session.
	OnSpectrum func(bars []float64)
}

// Session is the single owner of playback state. Every mutator and every
// resource event handler runs under one mutex. Media loads block outside
// it and commit only if no newer load has started since.
//
// Resources deliver events on their own goroutines and never call back
// synchronously, so the session may drive them while holding the lock.
type Session struct {
	logger   zerolog.Logger
	deck     media.Resource // shared audio resource
	surface  media.Resource // visual resource for video tracks
	graphs   *audio.Registry
	spectrum *audio.SpectrumLoop
	bus      *stream.Broadcaster[Snapshot]
	analysis bool
	rng      *rand.Rand

	base       context.Context
	cancelBase context.CancelFunc

	mu         sync.Mutex
	closed     bool
	state      State
	errKind    string
	info       string
	queue      media.Queue
	track      media.Track
	hasTrack   bool
	active     media.Resource
	shuffle    bool
	repeat     queue.RepeatMode
	volume     float64
	zoomed     bool
	elapsed    float64
	duration   float64
	eq         audio.EqSettings
	graph      *audio.Graph
	gen        uint64
	cancelLoad context.CancelFunc
	unbind     func()

	// pauseOnCommit holds a Pause that arrived while loading.
	pauseOnCommit bool
}

// New creates an idle session over the given resources.
func New(logger zerolog.Logger, deck, surface media.Resource, graphs *audio.Registry, opts Options) *Session {
	vol := opts.Volume
	if vol <= 0 || vol > 1 {
		vol = 1
	}
	render := opts.OnSpectrum
	if render == nil {
		render = func([]float64) {}
	}
	base, cancel := context.WithCancel(context.Background())
	return &Session{
		logger:     logger.With().Str("component", "session").Logger(),
		deck:       deck,
		surface:    surface,
		graphs:     graphs,
		spectrum:   audio.NewSpectrumLoop(opts.SpectrumTick, render),
		bus:        stream.NewBroadcaster[Snapshot](notifyBuffer),
		analysis:   opts.Analysis,
		rng:        opts.Rand,
		base:       base,
		cancelBase: cancel,
		volume:     vol,
		eq:         audio.FlatSettings(),
	}
}

// Subscribe returns a listener that receives a snapshot after every
// observable change. Slow listeners miss intermediate snapshots.
func (s *Session) Subscribe() *stream.Listener[Snapshot] { return s.bus.Subscribe() }

// Unsubscribe stops delivery to l.
func (s *Session) Unsubscribe(l *stream.Listener[Snapshot]) { s.bus.Unsubscribe(l) }

// Load binds track to its resource and starts it. A later Load supersedes
// this one, in which case ErrSuperseded is returned and nothing changes.
func (s *Session) Load(ctx context.Context, track media.Track) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.gen++
	gen := s.gen
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel

	s.spectrum.Stop()
	if s.unbind != nil {
		s.unbind()
	}
	// one resource owns timing at a time
	s.deck.Pause()
	s.surface.Pause()
	res := s.deck
	if track.IsVideo() {
		res = s.surface
	}
	s.active = res
	s.track, s.hasTrack = track, true
	s.state = Loading
	s.pauseOnCommit = false
	s.errKind, s.info = "", ""
	s.elapsed, s.duration = 0, track.Duration
	s.graph = nil
	s.unbind = res.Subscribe(func(ev media.Event) { s.handle(gen, ev) })
	s.publishLocked()
	s.mu.Unlock()

	s.logger.Debug().Str("track", track.ID).Str("kind", track.Kind().String()).Msg("loading")

	src := media.Source{URL: track.Src, Analysable: s.analysis && !track.IsVideo(), Duration: track.Duration}
	err := res.Load(ctx, src)
	degraded := false
	if err != nil && src.Analysable && errors.Is(err, media.ErrUnsupportedSource) && s.isCurrent(gen) {
		s.logger.Info().Str("track", track.ID).Msg("source refused analysis, retrying without equalizer")
		src.Analysable = false
		degraded = true
		err = res.Load(ctx, src)
	}
	return s.commit(gen, res, src.Analysable, degraded, err)
}

func (s *Session) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen && !s.closed
}

func (s *Session) commit(gen uint64, res media.Resource, analysable, degraded bool, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if gen != s.gen {
		return ErrSuperseded
	}
	s.cancelLoad()
	s.cancelLoad = nil

	if err != nil {
		if errors.Is(err, media.ErrAborted) {
			s.state = Idle
		} else {
			s.state = Error
			s.errKind = errKind(err)
			s.logger.Warn().Err(err).Str("track", s.track.ID).Msg("load failed")
		}
		s.publishLocked()
		return err
	}

	if degraded {
		s.info = InfoDegraded
	}
	if analysable {
		g, gerr := s.graphs.Attach(res)
		if gerr != nil {
			s.logger.Warn().Err(gerr).Msg("continuing without equalizer")
			s.info = InfoNoEqualizer
		} else {
			g.Apply(s.eq)
			s.graph = g
		}
	}

	res.SetVolume(s.volume)
	if s.pauseOnCommit {
		s.pauseOnCommit = false
		s.state = Paused
		s.publishLocked()
		return nil
	}
	if err := res.Play(); err != nil {
		s.state = Error
		s.errKind = ErrKindNetworkOrDecode
		s.publishLocked()
		return err
	}
	s.enterPlayingLocked()
	s.publishLocked()
	return nil
}

// loadAsync starts a load on behalf of an event handler.
func (s *Session) loadAsync(track media.Track) {
	go func() {
		err := s.Load(s.base, track)
		if err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrClosed) {
			s.logger.Warn().Err(err).Str("track", track.ID).Msg("auto-advance failed")
		}
	}()
}

func (s *Session) enterPlayingLocked() {
	s.state = Playing
	if s.graph != nil {
		s.spectrum.Start(s.graph)
	}
}

func (s *Session) leavePlayingLocked(next State) {
	s.state = next
	s.spectrum.Stop()
}

// handle processes an event from the resource bound by load gen.
func (s *Session) handle(gen uint64, ev media.Event) {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	switch ev.Type {
	case media.EventDurationKnown:
		if ev.Duration > 0 {
			s.duration = ev.Duration
		}
	case media.EventTimeUpdate:
		if s.state == Loading {
			s.mu.Unlock()
			return
		}
		s.elapsed = ev.Time
	case media.EventVolumeChanged:
		s.volume = ev.Volume
	case media.EventError:
		if s.state == Loading {
			s.mu.Unlock()
			return
		}
		s.leavePlayingLocked(Error)
		s.errKind = errKind(ev.Err)
		s.logger.Warn().Err(ev.Err).Str("track", s.track.ID).Msg("playback error")
	case media.EventEnded:
		if s.state != Playing {
			s.mu.Unlock()
			return
		}
		if s.duration > 0 {
			s.elapsed = s.duration
		}
		if next, ok := s.onTrackEndLocked(); ok {
			s.publishLocked()
			s.mu.Unlock()
			s.loadAsync(next)
			return
		}
	}
	s.publishLocked()
	s.mu.Unlock()
}

// onTrackEndLocked advances the queue after the bound resource ended.
func (s *Session) onTrackEndLocked() (media.Track, bool) {
	if s.queue.IsEmpty() {
		s.leavePlayingLocked(Paused)
		return media.Track{}, false
	}
	return s.stepLocked(s.navigatorLocked().Next(true))
}

func (s *Session) navigatorLocked() queue.Navigator {
	n := queue.Navigator{
		Queue:   s.queue,
		Shuffle: s.shuffle,
		Repeat:  s.repeat,
		Rand:    s.rng,
	}
	if s.hasTrack {
		n.CurrentID = s.track.ID
	}
	return n
}

// stepLocked applies a navigator decision. Loads are returned to the
// caller so they run outside the lock.
func (s *Session) stepLocked(d queue.Decision) (media.Track, bool) {
	switch d.Action {
	case queue.ActionPlay:
		return s.queue.At(d.Index), true
	case queue.ActionRestart:
		if !s.hasTrack || s.track.IsVideo() {
			// the visual surface restarts by reloading
			return s.track, s.hasTrack
		}
		s.elapsed = 0
		s.active.Seek(0)
		if err := s.active.Play(); err != nil {
			s.logger.Warn().Err(err).Msg("restart failed")
			return media.Track{}, false
		}
		s.enterPlayingLocked()
	case queue.ActionStop:
		if s.active != nil {
			s.active.Pause()
		}
		s.leavePlayingLocked(Paused)
	case queue.ActionStopThenPlay:
		if s.active != nil {
			s.active.Pause()
		}
		s.leavePlayingLocked(Paused)
		return s.queue.At(d.Index), true
	}
	return media.Track{}, false
}

// Next skips forward.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	if s.queue.IsEmpty() {
		s.mu.Unlock()
		return ErrEmptyQueue
	}
	track, load := s.stepLocked(s.navigatorLocked().Next(false))
	s.publishLocked()
	s.mu.Unlock()
	if load {
		return s.Load(ctx, track)
	}
	return nil
}

// Prev restarts the current track if it has played for more than
// queue.RestartThreshold seconds, else steps back with wrap-around.
func (s *Session) Prev(ctx context.Context) error {
	s.mu.Lock()
	if s.queue.IsEmpty() {
		s.mu.Unlock()
		return ErrEmptyQueue
	}
	track, load := s.stepLocked(s.navigatorLocked().Prev(s.elapsed))
	s.publishLocked()
	s.mu.Unlock()
	if load {
		return s.Load(ctx, track)
	}
	return nil
}

// TogglePlay flips Playing and Paused. From Idle or Error it (re)starts the
// current track, or the head of the queue when nothing is bound.
func (s *Session) TogglePlay(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Playing {
		s.active.Pause()
		s.leavePlayingLocked(Paused)
		s.publishLocked()
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.Play(ctx)
}

// Play resumes or starts playback. It is a no-op while playing; while
// loading it only cancels a pending pause.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Playing:
		s.mu.Unlock()
		return nil
	case Loading:
		s.pauseOnCommit = false
		s.mu.Unlock()
		return nil
	case Paused:
		defer s.mu.Unlock()
		if err := s.active.Play(); err != nil {
			return err
		}
		s.enterPlayingLocked()
		s.publishLocked()
		return nil
	}

	var track media.Track
	switch {
	case s.hasTrack:
		track = s.track
	case !s.queue.IsEmpty():
		track = s.queue.At(0)
	default:
		s.mu.Unlock()
		return ErrEmptyQueue
	}
	s.mu.Unlock()
	return s.Load(ctx, track)
}

// Pause halts playback if playing. A Pause during a load leaves the
// loaded track bound but paused.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Loading {
		s.pauseOnCommit = true
		return
	}
	if s.state != Playing {
		return
	}
	s.active.Pause()
	s.leavePlayingLocked(Paused)
	s.publishLocked()
}

// Seek moves to t seconds, clamped to [0, duration]. The local elapsed time
// is updated immediately rather than waiting for the resource to report.
func (s *Session) Seek(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasTrack || s.state == Loading {
		return
	}
	t = max(0, min(t, s.duration))
	s.elapsed = t
	s.active.Seek(t)
	s.publishLocked()
}

// SetVolume sets the output level of the active resource, clamped to [0, 1].
func (s *Session) SetVolume(v float64) {
	v = max(0, min(v, 1))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
	if s.active != nil {
		s.active.SetVolume(v)
	}
	s.publishLocked()
}

func (s *Session) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Session) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

func (s *Session) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetZoomed toggles the zoomed presentation flag.
func (s *Session) SetZoomed(z bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.zoomed == z {
		return
	}
	s.zoomed = z
	s.publishLocked()
}

func (s *Session) Zoomed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoomed
}

// SetQueue replaces the queue. The current track keeps playing even if
// the new queue no longer contains it.
func (s *Session) SetQueue(q media.Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = q
	s.publishLocked()
}

// Queue returns the current queue.
func (s *Session) Queue() media.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue
}

func (s *Session) SetShuffle(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuffle = on
	s.publishLocked()
}

func (s *Session) SetRepeat(m queue.RepeatMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeat = m
	s.publishLocked()
}

// ApplyPreset swaps all five band gains for a named preset.
func (s *Session) ApplyPreset(name string) (audio.EqSettings, error) {
	eq, err := audio.Preset(name)
	if err != nil {
		return s.Equalizer(), err
	}
	s.SetEqualizer(eq)
	return eq, nil
}

// SetBandGain changes one band and labels the settings Custom.
func (s *Session) SetBandGain(freq, db float64) (audio.EqSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eq, err := s.eq.WithBand(freq, db)
	if err != nil {
		return s.eq, err
	}
	s.eq = eq
	if s.graph != nil {
		s.graph.Apply(eq)
	}
	s.publishLocked()
	return eq, nil
}

// SetEqualizer replaces the equalizer settings, clamping every gain. The
// settings are kept even while no graph is attached.
func (s *Session) SetEqualizer(eq audio.EqSettings) {
	for i := range eq.Gains {
		eq.Gains[i] = audio.ClampGain(eq.Gains[i])
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eq = eq
	if s.graph != nil {
		s.graph.Apply(eq)
	}
	s.publishLocked()
}

// Equalizer returns the requested settings. Snapshot.Analysis reports
// whether they are currently audible.
func (s *Session) Equalizer() audio.EqSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eq
}

// Spectrum returns the current bars, all zero unless analysis is live
// and playback is running.
func (s *Session) Spectrum() []float64 {
	s.mu.Lock()
	g, playing := s.graph, s.state == Playing
	s.mu.Unlock()
	if g == nil || !playing {
		return make([]float64, audio.BinCount)
	}
	return g.Spectrum()
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:       s.state,
		Track:       s.track,
		HasTrack:    s.hasTrack,
		Index:       media.NotFound,
		QueueLen:    s.queue.Len(),
		CurrentTime: s.elapsed,
		Duration:    s.duration,
		Volume:      s.volume,
		Shuffle:     s.shuffle,
		Repeat:      s.repeat,
		Zoomed:      s.zoomed,
		Err:         s.errKind,
		Info:        s.info,
		Equalizer:   s.eq,
		Analysis:    s.graph != nil,
	}
	if s.hasTrack {
		snap.Index = s.queue.IndexOf(s.track.ID)
	}
	return snap
}

// publishLocked hands a snapshot to subscribers. Delivery is a
// non-blocking channel send, so ordering follows the lock.
func (s *Session) publishLocked() {
	s.bus.Publish(s.snapshotLocked())
}

// Close stops playback, drops resource subscriptions and releases the graph.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.spectrum.Stop()
	if s.unbind != nil {
		s.unbind()
		s.unbind = nil
	}
	s.deck.Pause()
	s.surface.Pause()
	s.state = Idle
	s.graph = nil
	s.publishLocked()
	s.mu.Unlock()

	s.graphs.Release(s.deck.ID())
	s.cancelBase()
}
