package mesh

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl32"
)

// Data is a renderable triangle mesh. Vertices, Normals and UVs are parallel
// slices; Triangles holds three vertex indices per triangle. Data is never
// modified after Build returns it.
type Data struct {
	Vertices  []mgl32.Vec3
	Normals   []mgl32.Vec3
	UVs       []mgl32.Vec2
	Triangles []uint32

	// LOD is the level of detail the mesh was built at.
	LOD int
	// FlatShaded reports if every triangle owns its own three vertices.
	FlatShaded bool
}

// VertexCount returns the number of vertices in the mesh.
func (d *Data) VertexCount() int {
	return len(d.Vertices)
}

// TriangleCount returns the number of triangles in the mesh.
func (d *Data) TriangleCount() int {
	return len(d.Triangles) / 3
}

// Empty checks if the mesh has no triangles.
func (d *Data) Empty() bool {
	return len(d.Triangles) == 0
}

// Digest returns a hash over all vertex attributes and indices of the mesh.
func (d *Data) Digest() uint64 {
	h := xxhash.New()
	var buf [4]byte
	put := func(f float32) {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		_, _ = h.Write(buf[:])
	}
	for i := range d.Vertices {
		for _, f := range d.Vertices[i] {
			put(f)
		}
		for _, f := range d.Normals[i] {
			put(f)
		}
		for _, f := range d.UVs[i] {
			put(f)
		}
	}
	for _, t := range d.Triangles {
		binary.LittleEndian.PutUint32(buf[:], t)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
