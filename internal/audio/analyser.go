package audio

import (
	"math"
	"math/cmplx"
	"sync"
)

// Analyser defaults mirror the Web Audio AnalyserNode.
const (
	FFTSize          = 256
	BinCount         = FFTSize / 2
	minDecibels      = -100.0
	maxDecibels      = -30.0
	smoothingConst   = 0.8
	maxByteMagnitude = 255.0
)

// Analyser keeps the most recent FFTSize mono samples and turns them into
// byte frequency data on demand.
type Analyser struct {
	mu       sync.Mutex
	ring     [FFTSize]float64
	pos      int
	smoothed [BinCount]float64
	window   [FFTSize]float64
}

// NewAnalyser builds an analyser with a Blackman window.
func NewAnalyser() *Analyser {
	a := &Analyser{}
	const alpha = 0.16
	a0, a1, a2 := 0.5*(1-alpha), 0.5, 0.5*alpha
	for i := range a.window {
		x := 2 * math.Pi * float64(i) / FFTSize
		a.window[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return a
}

// Push captures a mono mix of samples into the ring buffer.
func (a *Analyser) Push(samples [][2]float64) {
	a.mu.Lock()
	for _, s := range samples {
		a.ring[a.pos] = (s[0] + s[1]) / 2
		a.pos = (a.pos + 1) % FFTSize
	}
	a.mu.Unlock()
}

// ByteFrequencyData fills dst (len BinCount) with magnitudes scaled to
// 0..255 and returns it. Each call advances the smoothing state.
func (a *Analyser) ByteFrequencyData(dst []uint8) []uint8 {
	if len(dst) < BinCount {
		dst = make([]uint8, BinCount)
	}
	buf := make([]complex128, FFTSize)

	a.mu.Lock()
	for i := 0; i < FFTSize; i++ {
		buf[i] = complex(a.ring[(a.pos+i)%FFTSize]*a.window[i], 0)
	}
	fft(buf)
	for k := 0; k < BinCount; k++ {
		mag := cmplx.Abs(buf[k]) / FFTSize
		a.smoothed[k] = smoothingConst*a.smoothed[k] + (1-smoothingConst)*mag
		db := 20 * math.Log10(a.smoothed[k])
		v := maxByteMagnitude / (maxDecibels - minDecibels) * (db - minDecibels)
		if math.IsInf(db, -1) || v < 0 {
			v = 0
		} else if v > maxByteMagnitude {
			v = maxByteMagnitude
		}
		dst[k] = uint8(v)
	}
	a.mu.Unlock()
	return dst[:BinCount]
}

// Normalize maps byte frequency data to [0,1] by the maximum byte value.
func Normalize(data []uint8) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v) / maxByteMagnitude
	}
	return out
}

// fft computes a radix-2 FFT in-place.
func fft(x []complex128) {
	n := len(x)
	if n <= 1 {
		return
	}
	// Bit-reversal permutation.
	bits := 0
	for m := n; m > 1; m >>= 1 {
		bits++
	}
	for i := 0; i < n; i++ {
		j := 0
		for b := 0; b < bits; b++ {
			if i&(1<<b) != 0 {
				j |= 1 << (bits - 1 - b)
			}
		}
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	// Cooley-Tukey iterative FFT.
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		wn := -2.0 * math.Pi / float64(size)
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				t := cmplx.Rect(1, wn*float64(k)) * x[start+k+half]
				x[start+k+half] = x[start+k] - t
				x[start+k] = x[start+k] + t
			}
		}
	}
}
