package gesture

import (
	"math"
	"sync"
)

// Thresholds and gains for classification and application.
const (
	CircleThreshold = 0.1   // radians of rotation around the surface centre
	CircleScale     = 100.0 // delta units per radian
	SwipeThreshold  = 10.0  // horizontal pixels
	DeadZone        = 5.0   // minimum |delta| before anything is applied
	VolumePerUnit   = 0.005
	SeekPerUnit     = 0.2 // seconds
	ZoomHysteresis  = 50.0
)

// Point is one touch position in surface pixels.
type Point struct {
	X, Y float64
}

// Controls is the playback surface a gesture drives.
type Controls interface {
	Volume() float64
	SetVolume(v float64)
	CurrentTime() float64
	Duration() float64
	Seek(t float64)
	Zoomed() bool
	SetZoomed(z bool)
}

// Result describes how one Move sample was handled.
type Result struct {
	Kind    Kind
	Delta   float64
	Applied Action // ActionNone unless a control changed
	// SuppressScroll is set once a threshold has been crossed; the first
	// samples of a touch never suppress default scrolling.
	SuppressScroll bool
}

// Interpreter tracks one touch sequence at a time.
type Interpreter struct {
	mu       sync.Mutex
	controls Controls
	cfg      Config

	active     bool
	center     Point
	start      Point
	startDist  float64
	hasDist    bool
	startAngle float64
	baseVolume float64
	baseTime   float64
}

// NewInterpreter creates an interpreter bound to controls.
func NewInterpreter(controls Controls, cfg Config) *Interpreter {
	return &Interpreter{controls: controls, cfg: cfg}
}

// SetConfig replaces the gesture table.
func (in *Interpreter) SetConfig(cfg Config) {
	in.mu.Lock()
	in.cfg = cfg
	in.mu.Unlock()
}

// Config returns the gesture table.
func (in *Interpreter) Config() Config {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cfg
}

// Begin starts a sequence. center is the surface centre used for rotation.
// Begin with no points ends any earlier sequence without starting one.
func (in *Interpreter) Begin(points []Point, center Point) {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.reset()
	if len(points) == 0 {
		return
	}
	in.active = true
	in.center = center
	in.start = points[0]
	if len(points) >= 2 {
		in.startDist = distance(points[0], points[1])
		in.hasDist = true
	}
	in.startAngle = angle(points[0], center)
	in.baseVolume = in.controls.Volume()
	in.baseTime = in.controls.CurrentTime()
}

// Move classifies a sample and applies the configured action.
func (in *Interpreter) Move(points []Point) Result {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.active || len(points) == 0 {
		return Result{}
	}

	var r Result
	if len(points) >= 2 {
		// a second finger always means pinch
		if !in.hasDist {
			in.startDist = distance(points[0], points[1])
			in.hasDist = true
		}
		r.Kind = Pinch
		r.Delta = distance(points[0], points[1]) - in.startDist
		r.SuppressScroll = math.Abs(r.Delta) > DeadZone
	} else {
		p := points[0]
		dTheta := normalizeAngle(angle(p, in.center) - in.startAngle)
		dx := p.X - in.start.X
		switch {
		case math.Abs(dTheta) > CircleThreshold && in.cfg.Circle != ActionNone:
			r.Kind = Circle
			r.Delta = dTheta * CircleScale
			r.SuppressScroll = true
		case math.Abs(dx) > SwipeThreshold && in.cfg.Swipe != ActionNone:
			r.Kind = Swipe
			r.Delta = dx
			r.SuppressScroll = true
		default:
			return r
		}
	}

	if math.Abs(r.Delta) > DeadZone {
		r.Applied = in.apply(in.cfg.Action(r.Kind), r.Delta)
	}
	return r
}

// End finishes the sequence and forgets every baseline.
func (in *Interpreter) End() {
	in.mu.Lock()
	in.reset()
	in.mu.Unlock()
}

// Active reports whether a sequence is in progress.
func (in *Interpreter) Active() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.active
}

func (in *Interpreter) reset() {
	in.active = false
	in.center, in.start = Point{}, Point{}
	in.startDist, in.hasDist = 0, false
	in.startAngle = 0
	in.baseVolume, in.baseTime = 0, 0
}

func (in *Interpreter) apply(a Action, delta float64) Action {
	switch a {
	case ActionVolume:
		in.controls.SetVolume(clamp(in.baseVolume+delta*VolumePerUnit, 0, 1))
	case ActionSeek:
		in.controls.Seek(clamp(in.baseTime+delta*SeekPerUnit, 0, in.controls.Duration()))
	case ActionZoom:
		zoomed := in.controls.Zoomed()
		switch {
		case delta > ZoomHysteresis && !zoomed:
			in.controls.SetZoomed(true)
		case delta < -ZoomHysteresis && zoomed:
			in.controls.SetZoomed(false)
		default:
			return ActionNone
		}
	default:
		return ActionNone
	}
	return a
}

func distance(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

func angle(p, c Point) float64 { return math.Atan2(p.Y-c.Y, p.X-c.X) }

// normalizeAngle folds a into (-pi, pi].
func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(v, hi)) }
