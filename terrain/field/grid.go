// Package field holds the immutable height grids produced by the noise and
// height map stages.
package field

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// HeightGrid is a width by height row-major grid of height samples together
// with the minimum and maximum value recorded while it was produced. A
// HeightGrid is never modified after construction, so it may be shared freely
// between goroutines.
type HeightGrid struct {
	w, h     int
	values   []float64
	min, max float64
}

// FromValues creates a HeightGrid of the dimensions passed. The grid takes
// ownership of values, which must hold exactly w*h samples stored row by row,
// and must not be modified by the caller afterwards.
func FromValues(w, h int, values []float64) *HeightGrid {
	if w < 0 || h < 0 || len(values) != w*h {
		panic("field: value count does not match grid dimensions")
	}
	g := &HeightGrid{w: w, h: h, values: values}
	if len(values) == 0 {
		return g
	}
	g.min, g.max = values[0], values[0]
	for _, v := range values[1:] {
		g.min, g.max = min(g.min, v), max(g.max, v)
	}
	return g
}

// Width returns the number of samples along the x axis.
func (g *HeightGrid) Width() int { return g.w }

// Height returns the number of samples along the y axis.
func (g *HeightGrid) Height() int { return g.h }

// At returns the sample at column x and row y.
func (g *HeightGrid) At(x, y int) float64 {
	return g.values[y*g.w+x]
}

// Bounds returns the minimum and maximum sample of the grid. An empty grid
// reports (0, 0).
func (g *HeightGrid) Bounds() (lo, hi float64) {
	return g.min, g.max
}

// Values returns a copy of the samples of the grid in row-major order.
func (g *HeightGrid) Values() []float64 {
	return append([]float64(nil), g.values...)
}

// Digest returns a hash over the dimensions and the exact bit patterns of all
// samples. Two grids with the same digest are, in practice, bit-identical.
func (g *HeightGrid) Digest() uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(g.w)<<32|uint64(uint32(g.h)))
	_, _ = d.Write(buf[:])
	for _, v := range g.values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
