package audio

import (
	"time"

	"github.com/gopxl/beep/v2"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Format is the output format every resource resamples to.
var Format = beep.Format{
	SampleRate:  beep.SampleRate(SampleRate),
	NumChannels: Channels,
	Precision:   BitDepth / 8,
}

// FloatToFrame converts beep stereo samples to an interleaved int16 frame,
// clipping to the int16 range.
func FloatToFrame(samples [][2]float64) []int16 {
	out := make([]int16, len(samples)*Channels)
	for i, s := range samples {
		for c := 0; c < Channels; c++ {
			v := s[c] * 32767
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			out[i*Channels+c] = int16(v)
		}
	}
	return out
}
