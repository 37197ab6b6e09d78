package gesture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeControls struct {
	volume   float64
	time     float64
	duration float64
	zoomed   bool

	volumeSets int
	seeks      int
	zoomSets   int
}

func (f *fakeControls) Volume() float64      { return f.volume }
func (f *fakeControls) SetVolume(v float64)  { f.volume = v; f.volumeSets++ }
func (f *fakeControls) CurrentTime() float64 { return f.time }
func (f *fakeControls) Duration() float64    { return f.duration }
func (f *fakeControls) Seek(t float64)       { f.time = t; f.seeks++ }
func (f *fakeControls) Zoomed() bool         { return f.zoomed }
func (f *fakeControls) SetZoomed(z bool)     { f.zoomed = z; f.zoomSets++ }

var center = Point{X: 200, Y: 200}

func TestPinchDrivesVolume(t *testing.T) {
	c := &fakeControls{volume: 0.5, duration: 100}
	in := NewInterpreter(c, DefaultConfig())

	in.Begin([]Point{{100, 200}, {200, 200}}, center) // 100px apart
	r := in.Move([]Point{{80, 200}, {220, 200}})      // 140px apart
	assert.Equal(t, Pinch, r.Kind)
	assert.Equal(t, 40.0, r.Delta)
	assert.Equal(t, ActionVolume, r.Applied)
	assert.InDelta(t, 0.7, c.volume, 1e-9)

	// volume is computed from the baseline, not accumulated
	in.Move([]Point{{0, 200}, {300, 200}})
	assert.Equal(t, 1.0, c.volume, "clamped")
	in.Move([]Point{{140, 200}, {160, 200}})
	assert.InDelta(t, 0.1, c.volume, 1e-9)
}

func TestEmptyBeginEndsSequence(t *testing.T) {
	c := &fakeControls{volume: 0.5, duration: 100}
	in := NewInterpreter(c, DefaultConfig())

	in.Begin([]Point{{100, 200}, {200, 200}}, center)
	require.True(t, in.Active())

	in.Begin(nil, center)
	assert.False(t, in.Active())
	r := in.Move([]Point{{0, 200}, {300, 200}})
	assert.Equal(t, Result{}, r)
	assert.Equal(t, 0.5, c.volume)
	assert.Zero(t, c.volumeSets)
}

func TestDeadZone(t *testing.T) {
	c := &fakeControls{volume: 0.5}
	in := NewInterpreter(c, DefaultConfig())
	in.Begin([]Point{{100, 200}, {200, 200}}, center)

	r := in.Move([]Point{{98, 200}, {202, 200}}) // +4
	assert.Equal(t, Pinch, r.Kind)
	assert.Equal(t, ActionNone, r.Applied)
	assert.False(t, r.SuppressScroll)
	assert.Zero(t, c.volumeSets)
}

func TestTwoFingersAlwaysPinch(t *testing.T) {
	cfg := Config{Swipe: ActionSeek, Pinch: ActionVolume, Circle: ActionZoom}
	c := &fakeControls{volume: 0.5, time: 10, duration: 100}
	in := NewInterpreter(c, cfg)

	// one finger down, then a second joins while the first sweeps far
	in.Begin([]Point{{100, 100}}, center)
	r := in.Move([]Point{{300, 300}, {310, 300}})
	assert.Equal(t, Pinch, r.Kind)
	assert.Zero(t, r.Delta, "distance baseline is taken on the first two-finger sample")

	r = in.Move([]Point{{250, 300}, {310, 300}})
	assert.Equal(t, Pinch, r.Kind)
	assert.Equal(t, 50.0, r.Delta)
	assert.Zero(t, c.seeks)
	assert.Zero(t, c.zoomSets)
	assert.InDelta(t, 0.75, c.volume, 1e-9)
}

func TestSwipeDrivesSeek(t *testing.T) {
	c := &fakeControls{time: 30, duration: 60}
	in := NewInterpreter(c, DefaultConfig())
	in.Begin([]Point{{200, 390}}, center) // near the bottom, small angular change

	r := in.Move([]Point{{208, 390}})
	assert.Equal(t, KindNone, r.Kind, "below swipe threshold")
	assert.False(t, r.SuppressScroll, "first samples never suppress scrolling")

	r = in.Move([]Point{{250, 390}})
	// 50px at radius ~190 is ~0.26 rad, but CIRCLE is NONE so swipe wins
	assert.Equal(t, Swipe, r.Kind)
	assert.True(t, r.SuppressScroll)
	assert.Equal(t, ActionSeek, r.Applied)
	assert.InDelta(t, 40, c.time, 1e-9)

	in.Move([]Point{{500, 390}})
	assert.Equal(t, 60.0, c.time, "clamped to duration")
	in.Move([]Point{{-500, 390}})
	assert.Equal(t, 0.0, c.time, "clamped to zero")
}

func TestCircleTakesPrecedenceWhenConfigured(t *testing.T) {
	c := &fakeControls{volume: 0.2}
	in := NewInterpreter(c, Config{Swipe: ActionSeek, Circle: ActionVolume})

	in.Begin([]Point{{300, 200}}, center) // angle 0
	p := Point{X: 200 + 100*math.Cos(0.3), Y: 200 + 100*math.Sin(0.3)}
	r := in.Move([]Point{p})
	assert.Equal(t, Circle, r.Kind)
	assert.InDelta(t, 30, r.Delta, 1e-9)
	assert.InDelta(t, 0.35, c.volume, 1e-9)
	assert.Zero(t, c.seeks)
}

func TestSmallRotationFallsBackToSwipe(t *testing.T) {
	c := &fakeControls{time: 10, duration: 100}
	in := NewInterpreter(c, Config{Swipe: ActionSeek, Circle: ActionVolume})
	in.Begin([]Point{{200, 1000}}, center) // far below centre

	r := in.Move([]Point{{230, 1000}}) // ~0.037 rad
	assert.Equal(t, Swipe, r.Kind)
	assert.InDelta(t, 16, c.time, 1e-9)
}

func TestZoomHysteresis(t *testing.T) {
	c := &fakeControls{}
	in := NewInterpreter(c, Config{Pinch: ActionZoom})

	in.Begin([]Point{{100, 200}, {200, 200}}, center)
	r := in.Move([]Point{{75, 200}, {225, 200}}) // +50, not beyond
	assert.Equal(t, ActionNone, r.Applied)
	assert.False(t, c.zoomed)

	r = in.Move([]Point{{70, 200}, {230, 200}}) // +60
	assert.Equal(t, ActionZoom, r.Applied)
	assert.True(t, c.zoomed)

	// oscillating near the boundary does not flicker
	in.Move([]Point{{76, 200}, {224, 200}})
	in.Move([]Point{{70, 200}, {230, 200}})
	assert.Equal(t, 1, c.zoomSets)
	in.End()

	in.Begin([]Point{{100, 200}, {200, 200}}, center)
	in.Move([]Point{{140, 200}, {160, 200}}) // -80
	assert.False(t, c.zoomed)
	assert.Equal(t, 2, c.zoomSets)
}

func TestEndClearsBaselines(t *testing.T) {
	c := &fakeControls{volume: 0.5}
	in := NewInterpreter(c, DefaultConfig())

	in.Begin([]Point{{100, 200}, {200, 200}}, center)
	in.Move([]Point{{50, 200}, {250, 200}})
	in.End()
	assert.False(t, in.Active())

	// moves outside a sequence are ignored
	r := in.Move([]Point{{0, 200}, {400, 200}})
	assert.Equal(t, Result{}, r)

	// the next sequence starts from fresh baselines
	c.volume = 0.3
	in.Begin([]Point{{100, 200}}, center)
	r = in.Move([]Point{{100, 200}, {110, 200}})
	assert.Zero(t, r.Delta)
	assert.Equal(t, 0.3, c.volume)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(DefaultConfig(), map[string]string{"Circle": "zoom", "swipe": "NONE"})
	require.NoError(t, err)
	assert.Equal(t, Config{Swipe: ActionNone, Pinch: ActionVolume, Circle: ActionZoom}, cfg)
	assert.Equal(t, map[string]string{"swipe": "none", "pinch": "volume", "circle": "zoom"}, cfg.Map())

	_, err = ParseConfig(DefaultConfig(), map[string]string{"tap": "seek"})
	assert.ErrorIs(t, err, ErrUnknownGesture)

	cfg, err = ParseConfig(DefaultConfig(), map[string]string{"pinch": "rewind"})
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, DefaultConfig(), cfg)
}
