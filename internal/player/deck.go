package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/rs/zerolog"

	"github.com/satindergrewal/sonora/internal/audio"
	"github.com/satindergrewal/sonora/internal/media"
)

// ErrNoSource is returned by Play before anything has been loaded.
var ErrNoSource = errors.New("player: no source loaded")

// timeUpdateInterval matches the cadence browsers fire timeupdate at.
const timeUpdateInterval = 250 * time.Millisecond

// Deck decodes one source at a time and renders it as 20ms PCM frames at
// real-time rate. It implements media.Resource and media.Processable.
type Deck struct {
	id      string
	logger  zerolog.Logger
	client  *http.Client
	frameCh chan []int16
	events  *notifier
	loadSeq atomic.Uint64

	mu         sync.Mutex
	proc       media.Processor
	cur        *decoded
	analysable bool
	ctrl       *beep.Ctrl
	vol        *effects.Volume
	out        beep.Streamer
	volume     float64
	playing    bool
	ended      bool
	lastUpdate float64
}

// NewDeck creates an empty, paused deck at full volume.
func NewDeck(logger zerolog.Logger) *Deck {
	id := uuid.NewString()
	return &Deck{
		id:      id,
		logger:  logger.With().Str("component", "deck").Str("deck", id[:8]).Logger(),
		client:  &http.Client{Timeout: 60 * time.Second},
		frameCh: make(chan []int16, 100),
		events:  newNotifier(),
		volume:  1,
	}
}

// ID returns the deck's identity for graph ownership.
func (d *Deck) ID() string { return d.id }

// Frames returns the channel of outgoing PCM frames (20ms each).
func (d *Deck) Frames() <-chan []int16 { return d.frameCh }

// Subscribe registers fn for deck events.
func (d *Deck) Subscribe(fn func(media.Event)) func() { return d.events.subscribe(fn) }

// Install splices p into the output chain of every analysable source.
// A deck accepts exactly one processor for its lifetime.
func (d *Deck) Install(p media.Processor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.proc != nil {
		return media.ErrAlreadyWrapped
	}
	d.proc = p
	if d.cur != nil {
		d.buildChain()
	}
	return nil
}

// Load replaces the current source. The previous one keeps its place until
// the new one is decoded; a newer Load or a cancelled ctx aborts this one.
func (d *Deck) Load(ctx context.Context, src media.Source) error {
	seq := d.loadSeq.Add(1)

	var (
		dec *decoded
		err error
	)
	if src.Analysable {
		dec, err = decodeAnalysable(ctx, d.client, src.URL)
	} else {
		dec, err = decodeOpaque(ctx, src.URL)
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil || d.loadSeq.Load() != seq {
		dec.streamer.Close()
		return media.Fail(media.ErrAborted, src.URL, ctx.Err())
	}

	d.mu.Lock()
	if d.cur != nil {
		d.cur.streamer.Close()
	}
	d.cur = dec
	d.analysable = src.Analysable
	d.playing = false
	d.ended = false
	d.lastUpdate = 0
	d.buildChain()
	duration := d.durationLocked()
	d.mu.Unlock()

	d.logger.Debug().Str("src", src.URL).Bool("analysable", src.Analysable).
		Float64("duration", duration).Msg("source loaded")
	d.events.emit(media.Event{Type: media.EventDurationKnown, Duration: duration})
	d.events.emit(media.Event{Type: media.EventTimeUpdate, Time: 0})
	return nil
}

// buildChain wires decoder -> resample -> [processor] -> ctrl -> volume.
// Must be called with mu held.
func (d *Deck) buildChain() {
	var s beep.Streamer = d.cur.streamer
	if d.cur.format.SampleRate != audio.Format.SampleRate {
		s = beep.Resample(4, d.cur.format.SampleRate, audio.Format.SampleRate, s)
	}
	if d.analysable && d.proc != nil {
		s = d.proc.Wrap(s, audio.Format.SampleRate)
	}
	d.ctrl = &beep.Ctrl{Streamer: s, Paused: !d.playing}
	d.vol = &effects.Volume{Streamer: d.ctrl, Base: 2}
	d.applyVolume()
	d.out = d.vol
}

// applyVolume maps the linear 0..1 level onto beep's log2 volume.
func (d *Deck) applyVolume() {
	if d.vol == nil {
		return
	}
	d.vol.Silent = d.volume <= 0
	if d.volume > 0 {
		d.vol.Volume = math.Log2(d.volume)
	}
}

// Play resumes output. Playing an ended source starts it over.
func (d *Deck) Play() error {
	d.mu.Lock()
	if d.cur == nil {
		d.mu.Unlock()
		return ErrNoSource
	}
	restarted := d.ended
	if d.ended {
		if err := d.cur.streamer.Seek(0); err != nil {
			d.mu.Unlock()
			d.logger.Warn().Err(err).Msg("restart failed")
			return fmt.Errorf("player: restart source: %w", err)
		}
		d.ended = false
	}
	d.playing = true
	d.ctrl.Paused = false
	d.mu.Unlock()

	if restarted {
		d.events.emit(media.Event{Type: media.EventTimeUpdate, Time: 0})
	}
	return nil
}

// Pause halts output; the position is kept.
func (d *Deck) Pause() {
	d.mu.Lock()
	d.playing = false
	if d.ctrl != nil {
		d.ctrl.Paused = true
	}
	d.mu.Unlock()
}

// Playing reports whether frames are being rendered.
func (d *Deck) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

// Seek moves to seconds, clamped to the source length.
func (d *Deck) Seek(seconds float64) {
	d.mu.Lock()
	if d.cur == nil {
		d.mu.Unlock()
		return
	}
	sr := d.cur.format.SampleRate
	pos := sr.N(time.Duration(seconds * float64(time.Second)))
	pos = max(0, min(pos, d.cur.streamer.Len()))
	if err := d.cur.streamer.Seek(pos); err != nil {
		d.mu.Unlock()
		d.logger.Warn().Err(err).Float64("to", seconds).Msg("seek failed")
		return
	}
	d.ended = false
	t := d.positionLocked()
	d.lastUpdate = t
	d.mu.Unlock()

	d.events.emit(media.Event{Type: media.EventTimeUpdate, Time: t})
}

// SetVolume sets the linear output level, clamped to [0, 1].
func (d *Deck) SetVolume(v float64) {
	v = max(0, min(v, 1))
	d.mu.Lock()
	d.volume = v
	d.applyVolume()
	d.mu.Unlock()
	d.events.emit(media.Event{Type: media.EventVolumeChanged, Volume: v})
}

// Status returns the current position and duration in seconds.
func (d *Deck) Status() (position, duration float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cur == nil {
		return 0, 0
	}
	return d.positionLocked(), d.durationLocked()
}

func (d *Deck) positionLocked() float64 {
	return d.cur.format.SampleRate.D(d.cur.streamer.Position()).Seconds()
}

func (d *Deck) durationLocked() float64 {
	return d.cur.format.SampleRate.D(d.cur.streamer.Len()).Seconds()
}

// Run renders frames while playing. Blocks until ctx is cancelled.
func (d *Deck) Run(ctx context.Context) {
	defer close(d.frameCh)
	defer d.events.close()

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	buf := make([][2]float64, audio.FrameSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.tick(buf)
	}
}

func (d *Deck) tick(buf [][2]float64) {
	d.mu.Lock()
	if !d.playing || d.out == nil {
		d.mu.Unlock()
		return
	}
	clear(buf)
	n, ok := d.out.Stream(buf)
	frame := audio.FloatToFrame(buf)
	ended := !ok || n < len(buf)
	t := d.positionLocked()
	update := ended || t-d.lastUpdate >= timeUpdateInterval.Seconds() || t < d.lastUpdate
	if update {
		d.lastUpdate = t
	}
	if ended {
		d.playing = false
		d.ended = true
		d.ctrl.Paused = true
		t = d.durationLocked()
	}
	d.mu.Unlock()

	select {
	case d.frameCh <- frame:
	default:
		// nobody draining; the clock keeps running
	}

	if update {
		d.events.emit(media.Event{Type: media.EventTimeUpdate, Time: t})
	}
	if ended {
		d.logger.Debug().Msg("source ended")
		d.events.emit(media.Event{Type: media.EventEnded, Time: t})
	}
}

// Close releases the current source and stops event delivery.
func (d *Deck) Close() error {
	d.events.close()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
	if d.cur != nil {
		err := d.cur.streamer.Close()
		d.cur, d.out = nil, nil
		return err
	}
	return nil
}

var (
	_ media.Resource    = (*Deck)(nil)
	_ media.Processable = (*Deck)(nil)
)
