package noise

import (
	"fmt"
	"math"
	"strings"

	"github.com/aquilax/go-perlin"
	"github.com/ojrac/opensimplex-go"
)

// Kernel is a coherent 2D noise function returning values in [0, 1].
type Kernel uint8

const (
	// KernelSimplex samples OpenSimplex noise.
	KernelSimplex Kernel = iota
	// KernelPerlin samples classic Perlin noise.
	KernelPerlin
)

// The kernels are seeded once with a fixed seed. Settings.Seed only moves the
// octave offsets, which keeps every field a window onto the same plane. Both
// generators are read-only after construction.
var (
	simplexSource = opensimplex.NewNormalized(0)
	perlinSource  = perlin.NewPerlin(2, 2, 1, 0)
)

// String implements fmt.Stringer.
func (k Kernel) String() string {
	switch k {
	case KernelSimplex:
		return "simplex"
	case KernelPerlin:
		return "perlin"
	}
	return fmt.Sprintf("Kernel(%d)", uint8(k))
}

// ParseKernel parses a kernel name as returned by Kernel.String.
func ParseKernel(s string) (Kernel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simplex", "opensimplex", "":
		return KernelSimplex, nil
	case "perlin":
		return KernelPerlin, nil
	}
	return 0, fmt.Errorf("noise: unknown kernel %q", s)
}

// Sample evaluates the kernel at (x, y). Non-finite coordinates sample the
// middle of the range, so that extreme settings degrade to a flat field
// instead of propagating NaN.
func (k Kernel) Sample(x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0.5
	}
	switch k {
	case KernelPerlin:
		return min(max((perlinSource.Noise2D(x, y)+1)/2, 0), 1)
	default:
		return simplexSource.Eval2(x, y)
	}
}
