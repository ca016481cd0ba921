package stream

import "math"

// LODInfo pairs a mesh LOD with the largest distance from the viewer at which
// it is used.
type LODInfo struct {
	// LOD is the mesh LOD built for chunks using this level, in
	// [0, mesh.NumSupportedLODs).
	LOD int
	// Threshold is the largest distance between the viewer and the nearest
	// edge of a chunk at which this level is selected. Thresholds must
	// strictly increase along a detail level table; the last one is the
	// maximum view distance.
	Threshold float64
}

// SelectLOD returns the index of the detail level used for a chunk whose
// nearest edge is distance away from the viewer. The first level whose
// threshold is not exceeded wins. visible is false if distance is beyond the
// threshold of the last level, in which case index is -1.
func SelectLOD(levels []LODInfo, distance float64) (index int, visible bool) {
	if len(levels) == 0 || !(distance <= levels[len(levels)-1].Threshold) {
		return -1, false
	}
	for i, l := range levels[:len(levels)-1] {
		if distance <= l.Threshold {
			return i, true
		}
	}
	return len(levels) - 1, true
}

// boxDistance returns the distance from p to the nearest point of the axis
// aligned box spanning lo to hi. Points inside the box have a distance of 0.
func boxDistance(lo, hi [2]float64, p [2]float64) float64 {
	dx := max(lo[0]-p[0], 0, p[0]-hi[0])
	dy := max(lo[1]-p[1], 0, p[1]-hi[1])
	return math.Sqrt(dx*dx + dy*dy)
}
