// Package mesh turns height grids into renderable triangle meshes at a
// requested level of detail. Meshes of neighbouring chunks line up along their
// shared edges regardless of the LOD either side is built at.
package mesh

import (
	"github.com/dm-vev/lodterrain/terrain/field"
	"github.com/go-gl/mathgl/mgl32"
)

// Elevation maps a normalised height sample to a world space elevation.
// Implementations must be safe for concurrent use.
type Elevation interface {
	Elevate(v float64) float64
}

// vertexClass describes the role of a position in the sample grid.
type vertexClass uint8

const (
	// classSkipped positions are not aligned to the LOD stride and produce
	// no vertex.
	classSkipped vertexClass = iota
	// classBorder positions form the outermost ring. They only contribute to
	// the normals of the vertices next to them.
	classBorder
	// classEdge positions form the outer edge of the mesh and are kept at
	// full resolution at every LOD.
	classEdge
	// classEdgeConnection positions lie on the ring inside the edge between
	// two main vertices. Their height is interpolated so that the fine edge
	// does not crack against the coarse interior.
	classEdgeConnection
	// classMain positions are aligned to the LOD stride on both axes.
	classMain
)

// vertexRef refers to either a mesh vertex or a border vertex, depending on
// its class.
type vertexRef struct {
	class vertexClass
	index int
}

func (r vertexRef) border() bool { return r.class == classBorder }

// builder holds the intermediate state of a single Build call.
type builder struct {
	grid *field.HeightGrid
	elev Elevation
	n    int
	skip int
	size float64

	refs []vertexRef

	vertices []mgl32.Vec3
	uvs      []mgl32.Vec2
	border   []mgl32.Vec3

	triangles       []uint32
	borderTriangles [][3]vertexRef
}

// Build builds the mesh of grid at the LOD passed. The grid must hold at
// least NumVertsPerLine samples along each axis; only the top left
// NumVertsPerLine by NumVertsPerLine samples are used. Invalid settings,
// unsupported LODs and grids that are too small produce an empty mesh.
func Build(grid *field.HeightGrid, settings Settings, elevation Elevation, lod int) *Data {
	d := &Data{LOD: lod, FlatShaded: settings.FlatShading}
	if settings.Validate() != nil || !settings.SupportsLOD(lod) || grid == nil || elevation == nil {
		return d
	}
	n := settings.NumVertsPerLine()
	if grid.Width() < n || grid.Height() < n {
		return d
	}
	b := &builder{
		grid: grid,
		elev: elevation,
		n:    n,
		skip: skipIncrement(lod),
		size: settings.MeshWorldSize(),
		refs: make([]vertexRef, n*n),
	}
	b.index()
	b.fill()

	if settings.FlatShading {
		b.flatten(d)
		return d
	}
	d.Vertices, d.UVs, d.Normals, d.Triangles = b.vertices, b.uvs, b.normals(), b.triangles
	return d
}

// classify returns the class of the position (x, y).
func (b *builder) classify(x, y int) vertexClass {
	n := b.n
	switch {
	case x == 0 || y == 0 || x == n-1 || y == n-1:
		return classBorder
	case x == 1 || y == 1 || x == n-2 || y == n-2:
		return classEdge
	case (x-2)%b.skip == 0 && (y-2)%b.skip == 0:
		return classMain
	case x == 2 || y == 2 || x == n-3 || y == n-3:
		return classEdgeConnection
	}
	return classSkipped
}

// index assigns every non-skipped position an index into either the mesh or
// the border vertex buffer.
func (b *builder) index() {
	var meshIndex, borderIndex int
	for y := 0; y < b.n; y++ {
		for x := 0; x < b.n; x++ {
			ref := vertexRef{class: b.classify(x, y)}
			switch ref.class {
			case classSkipped:
				ref.index = -1
			case classBorder:
				ref.index = borderIndex
				borderIndex++
			default:
				ref.index = meshIndex
				meshIndex++
			}
			b.refs[y*b.n+x] = ref
		}
	}
	b.vertices = make([]mgl32.Vec3, 0, meshIndex)
	b.uvs = make([]mgl32.Vec2, 0, meshIndex)
	b.border = make([]mgl32.Vec3, 0, borderIndex)
}

func (b *builder) ref(x, y int) vertexRef {
	return b.refs[y*b.n+x]
}

// fill emits all vertices and triangles. Vertices are emitted in the same
// row-major order that index assigned their indices in.
func (b *builder) fill() {
	n, skip := b.n, b.skip
	span := float64(n - 3)

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			r := b.ref(x, y)
			if r.class == classSkipped {
				continue
			}
			px, py := float64(x-1)/span, float64(y-1)/span
			pos := mgl32.Vec3{
				float32(-b.size/2 + px*b.size),
				float32(b.height(x, y, r.class)),
				float32(b.size/2 - py*b.size),
			}
			if r.border() {
				b.border = append(b.border, pos)
			} else {
				b.vertices = append(b.vertices, pos)
				b.uvs = append(b.uvs, mgl32.Vec2{float32(px), float32(py)})
			}

			if x == n-1 || y == n-1 || (r.class == classEdgeConnection && (x == 2 || y == 2)) {
				continue
			}
			inc := 1
			if r.class == classMain && x != n-3 && y != n-3 {
				inc = skip
			}
			right, down, diag := b.ref(x+inc, y), b.ref(x, y+inc), b.ref(x+inc, y+inc)
			b.triangle(r, diag, down)
			b.triangle(diag, r, right)
		}
	}
}

// height returns the elevation of the vertex at (x, y).
func (b *builder) height(x, y int, class vertexClass) float64 {
	if class != classEdgeConnection {
		return b.elev.Elevate(b.grid.At(x, y))
	}
	vertical := x == 2 || x == b.n-3
	along := x - 2
	if vertical {
		along = y - 2
	}
	toA := along % b.skip
	toB := b.skip - toA
	t := float64(toA) / float64(b.skip)

	var ha, hb float64
	if vertical {
		ha, hb = b.grid.At(x, y-toA), b.grid.At(x, y+toB)
	} else {
		ha, hb = b.grid.At(x-toA, y), b.grid.At(x+toB, y)
	}
	return b.elev.Elevate(ha)*(1-t) + b.elev.Elevate(hb)*t
}

// triangle records a triangle. Triangles touching the border ring are kept
// apart, as they only serve the normal calculation.
func (b *builder) triangle(v0, v1, v2 vertexRef) {
	if v0.border() || v1.border() || v2.border() {
		b.borderTriangles = append(b.borderTriangles, [3]vertexRef{v0, v1, v2})
		return
	}
	b.triangles = append(b.triangles, uint32(v0.index), uint32(v1.index), uint32(v2.index))
}

func (b *builder) position(r vertexRef) mgl32.Vec3 {
	if r.border() {
		return b.border[r.index]
	}
	return b.vertices[r.index]
}

// normals computes smooth per-vertex normals, including the contribution of
// triangles that reach into the border ring.
func (b *builder) normals() []mgl32.Vec3 {
	normals := make([]mgl32.Vec3, len(b.vertices))
	for i := 0; i < len(b.triangles); i += 3 {
		ia, ib, ic := b.triangles[i], b.triangles[i+1], b.triangles[i+2]
		normal := surfaceNormal(b.vertices[ia], b.vertices[ib], b.vertices[ic])
		normals[ia] = normals[ia].Add(normal)
		normals[ib] = normals[ib].Add(normal)
		normals[ic] = normals[ic].Add(normal)
	}
	for _, t := range b.borderTriangles {
		normal := surfaceNormal(b.position(t[0]), b.position(t[1]), b.position(t[2]))
		for _, r := range t {
			if !r.border() {
				normals[r.index] = normals[r.index].Add(normal)
			}
		}
	}
	for i, v := range normals {
		normals[i] = normalize(v)
	}
	return normals
}

// flatten writes the mesh into d with three unique vertices per triangle,
// each carrying the normal of its face.
func (b *builder) flatten(d *Data) {
	count := len(b.triangles)
	d.Vertices = make([]mgl32.Vec3, count)
	d.UVs = make([]mgl32.Vec2, count)
	d.Normals = make([]mgl32.Vec3, count)
	d.Triangles = make([]uint32, count)
	for i := 0; i < count; i += 3 {
		ia, ib, ic := b.triangles[i], b.triangles[i+1], b.triangles[i+2]
		normal := surfaceNormal(b.vertices[ia], b.vertices[ib], b.vertices[ic])
		for j, idx := range [3]uint32{ia, ib, ic} {
			d.Vertices[i+j] = b.vertices[idx]
			d.UVs[i+j] = b.uvs[idx]
			d.Normals[i+j] = normal
			d.Triangles[i+j] = uint32(i + j)
		}
	}
}

func surfaceNormal(a, b, c mgl32.Vec3) mgl32.Vec3 {
	return normalize(b.Sub(a).Cross(c.Sub(a)))
}

// normalize returns v scaled to unit length, or the zero vector if v has no
// length.
func normalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.LenSqr() == 0 {
		return mgl32.Vec3{}
	}
	return v.Normalize()
}
