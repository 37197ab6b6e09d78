package audio

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// bandTypes gives each band its filter shape, in chain order.
var bandTypes = [5]FilterType{LowShelf, Peaking, Peaking, Peaking, HighShelf}

// Graph is the equalizer + analyser chain for one media resource:
// source -> 5 biquads -> analyser -> output. It implements
// media.Processor so a resource can splice it into its output.
type Graph struct {
	mu       sync.Mutex
	bands    [5]*Biquad
	analyser *Analyser
	settings EqSettings
	released bool
}

// NewGraph builds a flat graph.
func NewGraph() *Graph {
	g := &Graph{analyser: NewAnalyser(), settings: FlatSettings()}
	for i, f := range Bands {
		g.bands[i] = NewBiquad(bandTypes[i], f, SampleRate)
	}
	return g
}

// Wrap inserts the graph after src. Filter memory is reset for the new
// sample rate; gains carry over.
func (g *Graph) Wrap(src beep.Streamer, sr beep.SampleRate) beep.Streamer {
	g.mu.Lock()
	for _, b := range g.bands {
		b.SetSampleRate(float64(sr))
	}
	g.mu.Unlock()
	return &graphStreamer{g: g, src: src}
}

// Settings returns the requested EQ state.
func (g *Graph) Settings() EqSettings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settings
}

// Apply replaces all five band targets at once.
func (g *Graph) Apply(s EqSettings) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range s.Gains {
		s.Gains[i] = ClampGain(s.Gains[i])
		g.bands[i].SetTarget(s.Gains[i])
	}
	g.settings = s
}

// ApplyPreset swaps in a built-in preset.
func (g *Graph) ApplyPreset(name string) (EqSettings, error) {
	s, err := Preset(name)
	if err != nil {
		return g.Settings(), err
	}
	g.Apply(s)
	return s, nil
}

// SetBandGain changes one band and relabels the settings Custom.
func (g *Graph) SetBandGain(freq, db float64) (EqSettings, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.settings.WithBand(freq, db)
	if err != nil {
		return g.settings, err
	}
	i, _ := BandIndex(freq)
	g.bands[i].SetTarget(s.Gains[i])
	g.settings = s
	return s, nil
}

// AppliedGains returns the gains currently in effect mid-ramp.
func (g *Graph) AppliedGains() [5]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out [5]float64
	for i, b := range g.bands {
		out[i] = b.Gain()
	}
	return out
}

// FrequencyData reads the analyser's byte frequency data.
func (g *Graph) FrequencyData(dst []uint8) []uint8 {
	return g.analyser.ByteFrequencyData(dst)
}

// Spectrum returns the analyser bins normalized to [0,1].
func (g *Graph) Spectrum() []float64 {
	return Normalize(g.analyser.ByteFrequencyData(nil))
}

// release marks the graph detached; its streamer passes audio through untouched.
func (g *Graph) release() {
	g.mu.Lock()
	g.released = true
	g.mu.Unlock()
}

type graphStreamer struct {
	g   *Graph
	src beep.Streamer
}

func (s *graphStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := s.src.Stream(samples)
	if n == 0 {
		return n, ok
	}
	g := s.g
	g.mu.Lock()
	if !g.released {
		for _, b := range g.bands {
			b.Process(samples[:n])
		}
	}
	g.mu.Unlock()
	g.analyser.Push(samples[:n])
	return n, ok
}

func (s *graphStreamer) Err() error { return s.src.Err() }
