package heightmap

import (
	"math"
	"strconv"
	"sync"

	"github.com/dm-vev/lodterrain/terrain/field"
	"golang.org/x/sync/singleflight"
)

// Falloff curve shape. Larger falloffSteepness gives a sharper transition,
// larger falloffShift pushes it further towards the edge.
const (
	falloffSteepness = 3
	falloffShift     = 2.2
)

var (
	falloffMasks sync.Map // map[[2]int]*field.HeightGrid
	falloffGroup singleflight.Group
)

// Falloff returns the falloff mask for grids of the dimensions passed. Values
// are 0 in the centre of the grid and approach 1 at its edges. Masks depend
// only on their dimensions, so each is computed once per process and shared
// between all callers.
func Falloff(width, height int) *field.HeightGrid {
	key := [2]int{max(width, 0), max(height, 0)}
	if m, ok := falloffMasks.Load(key); ok {
		return m.(*field.HeightGrid)
	}
	m, _, _ := falloffGroup.Do(strconv.Itoa(key[0])+"x"+strconv.Itoa(key[1]), func() (any, error) {
		if m, ok := falloffMasks.Load(key); ok {
			return m, nil
		}
		m := computeFalloff(key[0], key[1])
		falloffMasks.Store(key, m)
		return m, nil
	})
	return m.(*field.HeightGrid)
}

// computeFalloff computes a square falloff mask of the dimensions passed.
func computeFalloff(width, height int) *field.HeightGrid {
	values := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fx := float64(x)/float64(width)*2 - 1
			fy := float64(y)/float64(height)*2 - 1
			values[y*width+x] = evaluateFalloff(max(math.Abs(fx), math.Abs(fy)))
		}
	}
	return field.FromValues(width, height, values)
}

func evaluateFalloff(v float64) float64 {
	a := math.Pow(v, falloffSteepness)
	b := math.Pow(falloffShift-falloffShift*v, falloffSteepness)
	return a / (a + b)
}
