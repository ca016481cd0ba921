// Package heightmap builds height grids from noise, optionally attenuated by a
// falloff mask, and maps normalised heights into world space elevations.
package heightmap

import (
	"github.com/dm-vev/lodterrain/terrain/curve"
	"github.com/dm-vev/lodterrain/terrain/field"
	"github.com/dm-vev/lodterrain/terrain/noise"
	"github.com/go-gl/mathgl/mgl64"
)

// Settings configures the height map of a terrain.
type Settings struct {
	// Noise holds the parameters of the underlying noise field.
	Noise noise.Settings
	// UseFalloff subtracts the falloff mask from every grid, which pushes the
	// edges of each grid down towards 0.
	UseFalloff bool
	// HeightMultiplier scales the output of HeightCurve into world units.
	HeightMultiplier float64
	// HeightCurve shapes normalised heights before they are multiplied. A
	// curve without keys flattens the terrain to 0.
	HeightCurve curve.Curve
}

// DefaultSettings returns height map settings with the default noise field,
// a linear height curve and a multiplier of 1.
func DefaultSettings() Settings {
	return Settings{Noise: noise.DefaultSettings(), HeightMultiplier: 1, HeightCurve: curve.Linear()}
}

// Elevate maps a normalised height sample to a world space elevation.
func (s Settings) Elevate(v float64) float64 {
	return s.HeightCurve.Evaluate(v) * s.HeightMultiplier
}

// MinHeight returns the elevation of a sample of 0.
func (s Settings) MinHeight() float64 {
	return s.Elevate(0)
}

// MaxHeight returns the elevation of a sample of 1.
func (s Settings) MaxHeight() float64 {
	return s.Elevate(1)
}

// Build generates the noise field of the settings passed around sampleCentre
// and applies the falloff mask if enabled. Build is a pure function and may be
// called from any goroutine.
func Build(width, height int, settings Settings, sampleCentre mgl64.Vec2) *field.HeightGrid {
	g := noise.Generate(width, height, settings.Noise, sampleCentre)
	if !settings.UseFalloff || g.Width() == 0 || g.Height() == 0 {
		return g
	}
	mask := Falloff(g.Width(), g.Height())
	values := g.Values()
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			i := y*g.Width() + x
			values[i] = min(max(values[i]-mask.At(x, y), 0), 1)
		}
	}
	return field.FromValues(g.Width(), g.Height(), values)
}
