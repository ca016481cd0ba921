package mesh

import (
	"errors"
	"fmt"
)

// SupportedChunkSizes lists the chunk sizes a mesh may be built with. Every
// size is divisible by the stride of every supported LOD.
var SupportedChunkSizes = [...]int{48, 72, 96, 120, 144, 168, 192, 216, 240}

const (
	// NumSupportedLODs is the amount of LODs meshes may be built at, 0 being
	// the most detailed.
	NumSupportedLODs = 5
	// NumSupportedFlatShadedChunkSizes limits flat shaded meshes to the
	// smallest chunk sizes, as flat shading duplicates every vertex three times.
	NumSupportedFlatShadedChunkSizes = 3
)

// Settings configures the meshes built for terrain chunks.
type Settings struct {
	// MeshScale is the world space distance between two neighbouring
	// vertices at LOD 0.
	MeshScale float64
	// FlatShading builds meshes with hard edges. ChunkSizeIndex is ignored in
	// favour of FlatShadedChunkSizeIndex while set.
	FlatShading bool
	// ChunkSizeIndex selects the chunk size of smooth meshes from
	// SupportedChunkSizes.
	ChunkSizeIndex int
	// FlatShadedChunkSizeIndex selects the chunk size of flat shaded meshes
	// from the first NumSupportedFlatShadedChunkSizes entries of
	// SupportedChunkSizes.
	FlatShadedChunkSizeIndex int
}

// DefaultSettings returns smooth shaded mesh settings with a chunk size of 96
// and a mesh scale of 2.5.
func DefaultSettings() Settings {
	return Settings{MeshScale: 2.5, ChunkSizeIndex: 2}
}

// Validate checks if the chunk size selector and mesh scale are within range.
// Settings that fail validation must not be used to build meshes.
func (s Settings) Validate() error {
	if s.FlatShading {
		if s.FlatShadedChunkSizeIndex < 0 || s.FlatShadedChunkSizeIndex >= NumSupportedFlatShadedChunkSizes {
			return fmt.Errorf("mesh: flat shaded chunk size index %d out of range [0, %d)", s.FlatShadedChunkSizeIndex, NumSupportedFlatShadedChunkSizes)
		}
	} else if s.ChunkSizeIndex < 0 || s.ChunkSizeIndex >= len(SupportedChunkSizes) {
		return fmt.Errorf("mesh: chunk size index %d out of range [0, %d)", s.ChunkSizeIndex, len(SupportedChunkSizes))
	}
	if !(s.MeshScale > 0) {
		return errors.New("mesh: mesh scale must be positive")
	}
	return nil
}

// ChunkSize returns the amount of LOD 0 quads along one side of the mesh,
// excluding the edge ring.
func (s Settings) ChunkSize() int {
	if s.FlatShading {
		return SupportedChunkSizes[s.FlatShadedChunkSizeIndex]
	}
	return SupportedChunkSizes[s.ChunkSizeIndex]
}

// NumVertsPerLine returns the amount of height samples along one side of the
// grid a mesh is built from. It includes the border ring, which only
// contributes to normals, and the edge ring, which is always kept at full
// resolution.
func (s Settings) NumVertsPerLine() int {
	return s.ChunkSize() + 5
}

// MeshWorldSize returns the world space length of one side of a mesh.
func (s Settings) MeshWorldSize() float64 {
	return float64(s.NumVertsPerLine()-3) * s.MeshScale
}

// SupportsLOD checks if meshes of these settings can be built at the LOD
// passed.
func (s Settings) SupportsLOD(lod int) bool {
	if lod < 0 || lod >= NumSupportedLODs {
		return false
	}
	return (s.NumVertsPerLine()-5)%skipIncrement(lod) == 0
}

// skipIncrement returns the stride between main vertices at the LOD passed.
func skipIncrement(lod int) int {
	if lod == 0 {
		return 1
	}
	return lod * 2
}
