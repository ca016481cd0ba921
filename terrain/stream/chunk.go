package stream

import (
	"fmt"

	"github.com/dm-vev/lodterrain/terrain/field"
	"github.com/dm-vev/lodterrain/terrain/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// Coord is the integer coordinate of a chunk. The chunk at Coord{X, Y} is
// centred on the world position (X, Y) * mesh world size.
type Coord struct {
	X, Y int32
}

// String returns the coordinate formatted as (x, y).
func (c Coord) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}

// key packs c into a single integer for use as map key.
func (c Coord) key() int64 {
	return int64(c.X)<<32 | int64(uint32(c.Y))
}

// HeightState is the progress of the height grid of a chunk.
type HeightState uint8

const (
	// HeightAbsent chunks have not yet had their height grid requested,
	// usually because the dispatcher refused the job. The request is repeated
	// during the next tick.
	HeightAbsent HeightState = iota
	// HeightPending chunks are waiting for their height grid.
	HeightPending
	// HeightReady chunks hold their height grid and may request meshes.
	HeightReady
	// HeightFailed chunks failed to generate their height grid. See
	// Streamer.Retry.
	HeightFailed
)

// String implements fmt.Stringer.
func (s HeightState) String() string {
	switch s {
	case HeightAbsent:
		return "absent"
	case HeightPending:
		return "pending"
	case HeightReady:
		return "ready"
	case HeightFailed:
		return "failed"
	}
	return fmt.Sprintf("HeightState(%d)", uint8(s))
}

// lodMesh is the mesh slot of a single detail level of a chunk.
type lodMesh struct {
	mesh *mesh.Data
	// requested is set once the mesh was submitted for building and guards
	// against requesting the same mesh twice.
	requested bool
	failed    bool
}

// Chunk is a square region of terrain tracked by a Streamer. Chunks are
// created and mutated only on the goroutine ticking their Streamer.
type Chunk struct {
	coord    Coord
	position mgl64.Vec2
	centre   mgl64.Vec2
	lo, hi   [2]float64

	height HeightState
	grid   *field.HeightGrid

	lods     []lodMesh
	lodIndex int
	visible  bool
	collider bool

	evicted  bool
	deferred bool
	pass     uint64
}

func newChunk(coord Coord, worldSize float64, numVertsPerLine, levels int) *Chunk {
	pos := mgl64.Vec2{float64(coord.X) * worldSize, float64(coord.Y) * worldSize}
	half := worldSize / 2
	span := float64(numVertsPerLine - 3)
	return &Chunk{
		coord:    coord,
		position: pos,
		centre:   mgl64.Vec2{float64(coord.X) * span, float64(coord.Y) * span},
		lo:       [2]float64{pos[0] - half, pos[1] - half},
		hi:       [2]float64{pos[0] + half, pos[1] + half},
		lods:     make([]lodMesh, levels),
		lodIndex: -1,
	}
}

// Coord returns the coordinate of the chunk. It never changes.
func (c *Chunk) Coord() Coord { return c.coord }

// Position returns the world space position of the centre of the chunk, with
// the y component holding the world z coordinate.
func (c *Chunk) Position() mgl64.Vec2 { return c.position }

// Bounds returns the world space corners of the chunk.
func (c *Chunk) Bounds() (lo, hi mgl64.Vec2) {
	return mgl64.Vec2{c.lo[0], c.lo[1]}, mgl64.Vec2{c.hi[0], c.hi[1]}
}

// HeightState returns the progress of the height grid of the chunk.
func (c *Chunk) HeightState() HeightState { return c.height }

// HeightGrid returns the height grid of the chunk, if it was generated.
func (c *Chunk) HeightGrid() (*field.HeightGrid, bool) {
	return c.grid, c.grid != nil
}

// Visible checks if the chunk is currently within view distance.
func (c *Chunk) Visible() bool { return c.visible }

// LODIndex returns the index of the detail level whose mesh is currently
// active, or -1 if no mesh was applied yet.
func (c *Chunk) LODIndex() int { return c.lodIndex }

// Mesh returns the currently active mesh of the chunk.
func (c *Chunk) Mesh() (*mesh.Data, bool) {
	if c.lodIndex < 0 {
		return nil, false
	}
	return c.lods[c.lodIndex].mesh, true
}

// MeshAt returns the cached mesh of the detail level index passed.
func (c *Chunk) MeshAt(index int) (*mesh.Data, bool) {
	if index < 0 || index >= len(c.lods) || c.lods[index].mesh == nil {
		return nil, false
	}
	return c.lods[index].mesh, true
}

// MeshRequested checks if the mesh of the detail level index passed was ever
// requested.
func (c *Chunk) MeshRequested(index int) bool {
	return index >= 0 && index < len(c.lods) && c.lods[index].requested
}

// ColliderSet checks if the collider mesh of the chunk was handed out.
func (c *Chunk) ColliderSet() bool { return c.collider }

// Evicted checks if the chunk was dropped by its Streamer.
func (c *Chunk) Evicted() bool { return c.evicted }

// distance returns the distance from p to the nearest edge of the chunk.
func (c *Chunk) distance(p mgl64.Vec2) float64 {
	return boxDistance(c.lo, c.hi, [2]float64(p))
}
