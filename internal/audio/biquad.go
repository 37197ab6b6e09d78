package audio

import "math"

// FilterType selects the biquad response.
type FilterType int

const (
	LowShelf FilterType = iota
	Peaking
	HighShelf
)

func (f FilterType) String() string {
	switch f {
	case LowShelf:
		return "lowshelf"
	case HighShelf:
		return "highshelf"
	}
	return "peaking"
}

// rampTimeConstant is the exponential smoothing time constant for gain changes.
const rampTimeConstant = 0.1

// rampBlock is how many samples are filtered between gain ramp steps.
const rampBlock = 64

// Biquad is a second-order IIR filter whose gain glides towards a target
// with an exponential ramp. Coefficients follow the Audio EQ Cookbook;
// peaking uses Q=1 and the shelves use slope 1.
type Biquad struct {
	Type      FilterType
	Frequency float64

	sampleRate float64
	gain       float64 // current dB
	target     float64 // requested dB

	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     [Channels]float64
}

// NewBiquad builds a filter at unity gain.
func NewBiquad(typ FilterType, freq, sampleRate float64) *Biquad {
	b := &Biquad{Type: typ, Frequency: freq, sampleRate: sampleRate}
	b.compute()
	return b
}

// SetTarget schedules a ramp towards db.
func (b *Biquad) SetTarget(db float64) { b.target = db }

// Target returns the requested gain in dB.
func (b *Biquad) Target() float64 { return b.target }

// Gain returns the gain currently applied in dB.
func (b *Biquad) Gain() float64 { return b.gain }

// SetSampleRate recomputes coefficients and clears filter memory.
func (b *Biquad) SetSampleRate(sr float64) {
	b.sampleRate = sr
	b.x1, b.x2, b.y1, b.y2 = [Channels]float64{}, [Channels]float64{}, [Channels]float64{}, [Channels]float64{}
	b.compute()
}

// Process filters samples in place.
func (b *Biquad) Process(samples [][2]float64) {
	for start := 0; start < len(samples); start += rampBlock {
		end := min(start+rampBlock, len(samples))
		b.step(end - start)
		for i := start; i < end; i++ {
			for c := 0; c < Channels; c++ {
				x := samples[i][c]
				y := b.b0*x + b.b1*b.x1[c] + b.b2*b.x2[c] - b.a1*b.y1[c] - b.a2*b.y2[c]
				b.x2[c], b.x1[c] = b.x1[c], x
				b.y2[c], b.y1[c] = b.y1[c], y
				samples[i][c] = y
			}
		}
	}
}

// step advances the gain ramp by n samples.
func (b *Biquad) step(n int) {
	if b.gain == b.target {
		return
	}
	k := 1 - math.Exp(-float64(n)/(rampTimeConstant*b.sampleRate))
	b.gain += (b.target - b.gain) * k
	if math.Abs(b.target-b.gain) < 1e-3 {
		b.gain = b.target
	}
	b.compute()
}

func (b *Biquad) compute() {
	if b.sampleRate <= 0 {
		return
	}
	A := math.Pow(10, b.gain/40)
	w0 := 2 * math.Pi * b.Frequency / b.sampleRate
	cosw, sinw := math.Cos(w0), math.Sin(w0)

	var b0, b1, b2, a0, a1, a2 float64
	switch b.Type {
	case Peaking:
		alpha := sinw / 2 // Q = 1
		b0 = 1 + alpha*A
		b1 = -2 * cosw
		b2 = 1 - alpha*A
		a0 = 1 + alpha/A
		a1 = -2 * cosw
		a2 = 1 - alpha/A
	case LowShelf:
		alpha := sinw / 2 * math.Sqrt2 // slope = 1
		sq := 2 * math.Sqrt(A) * alpha
		b0 = A * ((A + 1) - (A-1)*cosw + sq)
		b1 = 2 * A * ((A - 1) - (A+1)*cosw)
		b2 = A * ((A + 1) - (A-1)*cosw - sq)
		a0 = (A + 1) + (A-1)*cosw + sq
		a1 = -2 * ((A - 1) + (A+1)*cosw)
		a2 = (A + 1) + (A-1)*cosw - sq
	case HighShelf:
		alpha := sinw / 2 * math.Sqrt2
		sq := 2 * math.Sqrt(A) * alpha
		b0 = A * ((A + 1) + (A-1)*cosw + sq)
		b1 = -2 * A * ((A - 1) + (A+1)*cosw)
		b2 = A * ((A + 1) + (A-1)*cosw - sq)
		a0 = (A + 1) - (A-1)*cosw + sq
		a1 = 2 * ((A - 1) - (A+1)*cosw)
		a2 = (A + 1) - (A-1)*cosw - sq
	}
	b.b0, b.b1, b.b2 = b0/a0, b1/a0, b2/a0
	b.a1, b.a2 = a1/a0, a2/a0
}

// Response returns the filter's magnitude response in dB at freq for the
// current coefficients.
func (b *Biquad) Response(freq float64) float64 {
	w := 2 * math.Pi * freq / b.sampleRate
	// H(e^jw) = (b0 + b1 z^-1 + b2 z^-2) / (1 + a1 z^-1 + a2 z^-2)
	z1 := complex(math.Cos(w), -math.Sin(w))
	z2 := z1 * z1
	num := complex(b.b0, 0) + complex(b.b1, 0)*z1 + complex(b.b2, 0)*z2
	den := complex(1, 0) + complex(b.a1, 0)*z1 + complex(b.a2, 0)*z2
	h := num / den
	return 20 * math.Log10(math.Hypot(real(h), imag(h)))
}
