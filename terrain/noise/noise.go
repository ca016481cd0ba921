// Package noise generates deterministic fractal noise fields. Generation is a
// pure function of its arguments and may run on any goroutine.
package noise

import (
	"math"
	"math/rand/v2"

	"github.com/dm-vev/lodterrain/terrain/field"
	"github.com/go-gl/mathgl/mgl64"
)

// octaveOffsetRange bounds the random offset drawn per octave on each axis.
const octaveOffsetRange = 100000

// Generate produces a width by height grid of fractal noise sampled around
// sampleCentre. Identical arguments always produce a bit-identical grid.
func Generate(width, height int, settings Settings, sampleCentre mgl64.Vec2) *field.HeightGrid {
	s := settings.Validated()
	width, height = max(width, 0), max(height, 0)

	offsets, maxPossibleHeight := octaveOffsets(s, sampleCentre)

	values := make([]float64, width*height)
	halfW, halfH := float64(width/2), float64(height/2)
	minH, maxH := math.Inf(1), math.Inf(-1)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			amplitude, frequency, sum := 1.0, 1.0, 0.0
			for _, off := range offsets {
				sx := (float64(x) - halfW + off[0]) / s.Scale * frequency
				sy := (float64(y) - halfH + off[1]) / s.Scale * frequency

				sum += (s.Kernel.Sample(sx, sy)*2 - 1) * amplitude
				amplitude *= s.Persistence
				frequency *= s.Lacunarity
			}
			minH, maxH = min(minH, sum), max(maxH, sum)

			if s.Mode == ModeGlobal {
				sum = max((sum+1)/maxPossibleHeight, 0)
			}
			values[y*width+x] = sum
		}
	}
	if s.Mode == ModeLocal {
		for i, v := range values {
			values[i] = inverseLerp(minH, maxH, v)
		}
	}
	return field.FromValues(width, height, values)
}

// octaveOffsets draws one offset per octave from a generator seeded with the
// seed of s and returns them with the sum of all octave amplitudes.
func octaveOffsets(s Settings, centre mgl64.Vec2) ([]mgl64.Vec2, float64) {
	prng := rand.New(rand.NewPCG(uint64(s.Seed), uint64(s.Seed)^0x9e3779b97f4a7c15))
	offsets := make([]mgl64.Vec2, s.Octaves)

	amplitude, total := 1.0, 0.0
	for i := range offsets {
		ox := float64(prng.IntN(2*octaveOffsetRange)-octaveOffsetRange) + s.Offset[0] + centre[0]
		oy := float64(prng.IntN(2*octaveOffsetRange)-octaveOffsetRange) - s.Offset[1] - centre[1]
		offsets[i] = mgl64.Vec2{ox, oy}

		total += amplitude
		amplitude *= s.Persistence
	}
	return offsets, total
}

// inverseLerp returns where v lies between a and b, clamped to [0, 1]. It
// returns 0 if a and b are equal.
func inverseLerp(a, b, v float64) float64 {
	if a == b {
		return 0
	}
	return min(max((v-a)/(b-a), 0), 1)
}
