package noise

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/fasthash/fnv1a"
)

// Mode selects how accumulated octave sums are mapped onto the output range.
type Mode uint8

const (
	// ModeLocal remaps every grid so that its own minimum becomes 0 and its
	// own maximum becomes 1. Neighbouring grids normalised this way do not
	// line up with each other.
	ModeLocal Mode = iota
	// ModeGlobal divides by the largest amplitude sum the settings could
	// produce, so that grids sampled at different centres share one scale.
	// Results are clamped below at 0 but not above.
	ModeGlobal
)

// String returns the name of the normalisation mode.
func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeGlobal:
		return "global"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode parses a normalisation mode name as returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "":
		return ModeLocal, nil
	case "global":
		return ModeGlobal, nil
	}
	return 0, fmt.Errorf("noise: unknown normalise mode %q", s)
}

// Settings holds the fractal parameters of a noise field. The zero value is
// not usable directly: Generate always works on Settings.Validated().
type Settings struct {
	// Seed drives the pseudo-random offsets of every octave.
	Seed int64
	// Scale is the size of one noise feature in grid cells. Values below
	// MinScale are raised to MinScale.
	Scale float64
	// Octaves is the amount of layers summed per sample, at least 1.
	Octaves int
	// Persistence is the factor the amplitude is multiplied with after every
	// octave, in [0, 1].
	Persistence float64
	// Lacunarity is the factor the frequency is multiplied with after every
	// octave, at least 1.
	Lacunarity float64
	// Offset shifts the whole field. The y component is subtracted, so that
	// grids sampled further along +y continue the field downwards.
	Offset mgl64.Vec2
	// Mode is the normalisation mode applied after summing octaves.
	Mode Mode
	// Kernel is the coherent noise function sampled by every octave.
	Kernel Kernel
}

// MinScale is the smallest scale a noise field is generated with.
const MinScale = 0.01

// DefaultSettings returns the settings used when a field is not configured
// further.
func DefaultSettings() Settings {
	return Settings{Scale: 50, Octaves: 6, Persistence: 0.6, Lacunarity: 2}
}

// Validated returns a copy of s with all numeric parameters clamped into
// their valid ranges. Out of range values are never reported as errors.
func (s Settings) Validated() Settings {
	if !(s.Scale >= MinScale) {
		s.Scale = MinScale
	}
	s.Octaves = max(s.Octaves, 1)
	if !(s.Lacunarity >= 1) {
		s.Lacunarity = 1
	}
	if !(s.Persistence >= 0) {
		s.Persistence = 0
	}
	s.Persistence = min(s.Persistence, 1)
	return s
}

// SeedFromPhrase derives a seed from a human readable phrase, so that
// configurations may name a world rather than carry a number.
func SeedFromPhrase(phrase string) int64 {
	return int64(fnv1a.HashString64(phrase))
}
