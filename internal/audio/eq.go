package audio

import (
	"errors"
	"fmt"
	"strings"
)

// Band centre frequencies in Hz, in chain order.
var Bands = [5]float64{60, 250, 1000, 4000, 16000}

// Gain limits in dB.
const (
	MinGain = -12.0
	MaxGain = 12.0
)

// Preset labels.
const (
	PresetFlat      = "Flat"
	PresetBassBoost = "Bass Boost"
	PresetVocal     = "Vocal"
	PresetTreble    = "Treble"
	PresetCustom    = "Custom"
)

var (
	ErrUnknownPreset = errors.New("audio: unknown eq preset")
	ErrUnknownBand   = errors.New("audio: unknown eq band")
)

var presets = map[string][5]float64{
	PresetFlat:      {0, 0, 0, 0, 0},
	PresetBassBoost: {8, 5, 0, 0, 2},
	PresetVocal:     {-2, 2, 5, 3, 1},
	PresetTreble:    {-2, 0, 2, 6, 8},
}

// PresetNames returns the built-in presets in display order.
func PresetNames() []string {
	return []string{PresetFlat, PresetBassBoost, PresetVocal, PresetTreble}
}

// EqSettings is a preset label plus one gain per band.
type EqSettings struct {
	Preset string
	Gains  [5]float64
}

// FlatSettings returns the neutral equalizer.
func FlatSettings() EqSettings {
	return EqSettings{Preset: PresetFlat}
}

// Preset looks up a built-in preset. Matching ignores case.
func Preset(name string) (EqSettings, error) {
	for label, gains := range presets {
		if strings.EqualFold(label, strings.TrimSpace(name)) {
			return EqSettings{Preset: label, Gains: gains}, nil
		}
	}
	return EqSettings{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// BandIndex maps a centre frequency to its position in Bands.
func BandIndex(freq float64) (int, error) {
	for i, f := range Bands {
		if f == freq {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %g Hz", ErrUnknownBand, freq)
}

// ClampGain limits db to [MinGain, MaxGain].
func ClampGain(db float64) float64 {
	if db < MinGain {
		return MinGain
	}
	if db > MaxGain {
		return MaxGain
	}
	return db
}

// WithBand returns a copy with one band changed and the label set to Custom.
func (s EqSettings) WithBand(freq, db float64) (EqSettings, error) {
	i, err := BandIndex(freq)
	if err != nil {
		return s, err
	}
	s.Gains[i] = ClampGain(db)
	s.Preset = PresetCustom
	return s, nil
}

// Gain returns the gain for a band frequency.
func (s EqSettings) Gain(freq float64) float64 {
	i, err := BandIndex(freq)
	if err != nil {
		return 0
	}
	return s.Gains[i]
}

// GainMap keys gains by integer frequency, the shape used on the wire and in storage.
func (s EqSettings) GainMap() map[int]float64 {
	m := make(map[int]float64, len(Bands))
	for i, f := range Bands {
		m[int(f)] = s.Gains[i]
	}
	return m
}

// SettingsFromMap validates a wire/storage gain map. Unknown bands are
// rejected; missing bands stay at 0; values are clamped.
func SettingsFromMap(preset string, gains map[int]float64) (EqSettings, error) {
	s := EqSettings{Preset: preset}
	if s.Preset == "" {
		s.Preset = PresetCustom
	}
	for f, db := range gains {
		i, err := BandIndex(float64(f))
		if err != nil {
			return EqSettings{}, err
		}
		s.Gains[i] = ClampGain(db)
	}
	return s, nil
}
