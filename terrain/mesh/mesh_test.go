package mesh

import (
	"math"
	"slices"
	"testing"

	"github.com/dm-vev/lodterrain/terrain/curve"
	"github.com/dm-vev/lodterrain/terrain/field"
	"github.com/dm-vev/lodterrain/terrain/heightmap"
	"github.com/dm-vev/lodterrain/terrain/noise"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

func testSettings() Settings {
	return Settings{MeshScale: 2.5, ChunkSizeIndex: 0}
}

func testHeightMap() heightmap.Settings {
	s := heightmap.DefaultSettings()
	s.Noise.Mode = noise.ModeGlobal
	s.Noise.Seed = 11
	s.HeightMultiplier = 20
	s.HeightCurve = curve.EaseIn()
	return s
}

func chunkGrid(hs heightmap.Settings, ms Settings, cx, cy int) *field.HeightGrid {
	n := ms.NumVertsPerLine()
	centre := mgl64.Vec2{float64(cx * (n - 3)), float64(cy * (n - 3))}
	return heightmap.Build(n, n, hs, centre)
}

func TestSettingsDerivedValues(t *testing.T) {
	s := testSettings()
	if got := s.NumVertsPerLine(); got != 53 {
		t.Fatalf("expected 53 vertices per line, got %v", got)
	}
	if got := s.MeshWorldSize(); got != 125 {
		t.Fatalf("expected mesh world size 125, got %v", got)
	}
	s.FlatShading, s.FlatShadedChunkSizeIndex = true, 2
	if got := s.ChunkSize(); got != 96 {
		t.Fatalf("expected flat shaded chunk size 96, got %v", got)
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("expected default settings to be valid, got %v", err)
	}
	bad := []Settings{
		{MeshScale: 1, ChunkSizeIndex: -1},
		{MeshScale: 1, ChunkSizeIndex: len(SupportedChunkSizes)},
		{MeshScale: 1, FlatShading: true, FlatShadedChunkSizeIndex: NumSupportedFlatShadedChunkSizes},
		{MeshScale: 0},
		{MeshScale: math.NaN()},
	}
	for i, s := range bad {
		if s.Validate() == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, s)
		}
	}
}

func TestSupportsLOD(t *testing.T) {
	for _, size := range []int{0, 4, 8} {
		s := Settings{MeshScale: 1, ChunkSizeIndex: size}
		for lod := 0; lod < NumSupportedLODs; lod++ {
			if !s.SupportsLOD(lod) {
				t.Fatalf("expected chunk size %v to support LOD %v", s.ChunkSize(), lod)
			}
		}
		if s.SupportsLOD(-1) || s.SupportsLOD(NumSupportedLODs) {
			t.Fatalf("expected LODs outside [0, %v) to be unsupported", NumSupportedLODs)
		}
	}
}

func TestSmoothVertexCounts(t *testing.T) {
	ms := testSettings()
	hs := testHeightMap()
	grid := chunkGrid(hs, ms, 0, 0)
	n := ms.NumVertsPerLine()
	size := ms.ChunkSize()

	prev := math.MaxInt
	for lod := 0; lod < NumSupportedLODs; lod++ {
		d := Build(grid, ms, hs, lod)
		skip := skipIncrement(lod)
		want := 4*(n-3) + 4*(n-5) + (size/skip-1)*(size/skip-1)
		if got := d.VertexCount(); got != want {
			t.Fatalf("lod %d: expected %d vertices, got %d", lod, want, got)
		}
		if d.VertexCount() > (n-2)*(n-2) {
			t.Fatalf("lod %d: vertex count %d exceeds %d", lod, d.VertexCount(), (n-2)*(n-2))
		}
		if d.VertexCount() >= prev {
			t.Fatalf("lod %d: expected fewer vertices than %d, got %d", lod, prev, d.VertexCount())
		}
		prev = d.VertexCount()
		if len(d.Normals) != d.VertexCount() || len(d.UVs) != d.VertexCount() {
			t.Fatalf("lod %d: attribute slices out of sync", lod)
		}
		for _, idx := range d.Triangles {
			if int(idx) >= d.VertexCount() {
				t.Fatalf("lod %d: triangle index %d out of range", lod, idx)
			}
		}
	}
	if d := Build(grid, ms, hs, 0); d.VertexCount() != (n-2)*(n-2) || d.TriangleCount() != 2*(n-3)*(n-3) {
		t.Fatalf("expected full resolution mesh at lod 0, got %d vertices and %d triangles", d.VertexCount(), d.TriangleCount())
	}
}

func TestFlatShadedVertexCounts(t *testing.T) {
	ms := testSettings()
	ms.FlatShading = true
	hs := testHeightMap()
	grid := chunkGrid(hs, ms, 2, -1)
	for lod := 0; lod < NumSupportedLODs; lod++ {
		d := Build(grid, ms, hs, lod)
		if !d.FlatShaded {
			t.Fatalf("expected flat shaded mesh")
		}
		if d.Empty() || d.VertexCount() != 3*d.TriangleCount() {
			t.Fatalf("lod %d: expected 3 vertices per triangle, got %d vertices for %d triangles", lod, d.VertexCount(), d.TriangleCount())
		}
		for i := 0; i < len(d.Normals); i += 3 {
			if d.Normals[i] != d.Normals[i+1] || d.Normals[i] != d.Normals[i+2] {
				t.Fatalf("lod %d: expected triangle %d to share one face normal", lod, i/3)
			}
		}
	}
}

// boundary returns the vertices of d lying on the line where axis equals v,
// translated by offset and sorted along the other horizontal axis.
func boundary(d *Data, axis int, v float32, offset mgl32.Vec3) []mgl32.Vec3 {
	var out []mgl32.Vec3
	for _, p := range d.Vertices {
		if math.Abs(float64(p[axis]-v)) < 1e-3 {
			out = append(out, p.Add(offset))
		}
	}
	other := 2 - axis
	slices.SortFunc(out, func(a, b mgl32.Vec3) int {
		switch {
		case a[other] < b[other]:
			return -1
		case a[other] > b[other]:
			return 1
		}
		return 0
	})
	return out
}

func TestSeamFree(t *testing.T) {
	ms := testSettings()
	hs := testHeightMap()
	w := float32(ms.MeshWorldSize())
	origin := chunkGrid(hs, ms, 0, 0)
	east := chunkGrid(hs, ms, 1, 0)
	north := chunkGrid(hs, ms, 0, 1)

	for a := 0; a < NumSupportedLODs; a++ {
		for b := 0; b < NumSupportedLODs; b++ {
			ma := Build(origin, ms, hs, a)

			left := boundary(ma, 0, w/2, mgl32.Vec3{})
			right := boundary(Build(east, ms, hs, b), 0, -w/2, mgl32.Vec3{w, 0, 0})
			compareBoundary(t, "east", a, b, left, right)

			top := boundary(ma, 2, w/2, mgl32.Vec3{})
			bottom := boundary(Build(north, ms, hs, b), 2, -w/2, mgl32.Vec3{0, 0, w})
			compareBoundary(t, "north", a, b, top, bottom)
		}
	}
}

func compareBoundary(t *testing.T, name string, lodA, lodB int, a, b []mgl32.Vec3) {
	t.Helper()
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("%s seam lod %d/%d: expected equal vertex counts, got %d and %d", name, lodA, lodB, len(a), len(b))
	}
	for i := range a {
		if a[i][1] != b[i][1] || !a[i].ApproxEqualThreshold(b[i], 1e-3) {
			t.Fatalf("%s seam lod %d/%d: vertex %d differs: %v != %v", name, lodA, lodB, i, a[i], b[i])
		}
	}
}

type flat float64

func (f flat) Elevate(float64) float64 { return float64(f) }

func TestFlatTerrainNormalsPointUp(t *testing.T) {
	ms := testSettings()
	n := ms.NumVertsPerLine()
	grid := field.FromValues(n, n, make([]float64, n*n))
	for _, shading := range []bool{false, true} {
		ms.FlatShading = shading
		for lod := 0; lod < NumSupportedLODs; lod++ {
			d := Build(grid, ms, flat(4), lod)
			for i, normal := range d.Normals {
				if !normal.ApproxEqualThreshold(mgl32.Vec3{0, 1, 0}, 1e-5) {
					t.Fatalf("flat=%v lod %d: expected normal %d to point up, got %v", shading, lod, i, normal)
				}
			}
		}
	}
}

func TestNormalsUnitLength(t *testing.T) {
	ms := testSettings()
	hs := testHeightMap()
	d := Build(chunkGrid(hs, ms, -3, 5), ms, hs, 2)
	for i, normal := range d.Normals {
		if l := normal.Len(); math.Abs(float64(l)-1) > 1e-4 {
			t.Fatalf("expected unit normal at %d, got length %v", i, l)
		}
	}
}

func TestVerticesStayInsideChunk(t *testing.T) {
	ms := testSettings()
	hs := testHeightMap()
	half := float32(ms.MeshWorldSize() / 2)
	d := Build(chunkGrid(hs, ms, 0, 0), ms, hs, 1)
	for _, v := range d.Vertices {
		if v.X() < -half-1e-3 || v.X() > half+1e-3 || v.Z() < -half-1e-3 || v.Z() > half+1e-3 {
			t.Fatalf("vertex %v lies outside the chunk", v)
		}
	}
	for _, uv := range d.UVs {
		if uv.X() < 0 || uv.X() > 1 || uv.Y() < 0 || uv.Y() > 1 {
			t.Fatalf("uv %v outside [0, 1]", uv)
		}
	}
}

func TestDegenerateInputs(t *testing.T) {
	ms := testSettings()
	hs := testHeightMap()
	small := heightmap.Build(20, 20, hs, mgl64.Vec2{})
	if d := Build(small, ms, hs, 0); !d.Empty() || d.VertexCount() != 0 {
		t.Fatalf("expected empty mesh for undersized grid")
	}
	grid := chunkGrid(hs, ms, 0, 0)
	if d := Build(grid, ms, hs, NumSupportedLODs); !d.Empty() {
		t.Fatalf("expected empty mesh for unsupported lod")
	}
	if d := Build(grid, Settings{MeshScale: 1, ChunkSizeIndex: 99}, hs, 0); !d.Empty() {
		t.Fatalf("expected empty mesh for invalid settings")
	}
	if d := Build(nil, ms, hs, 0); !d.Empty() {
		t.Fatalf("expected empty mesh for nil grid")
	}
}

func TestBuildDeterministic(t *testing.T) {
	ms := testSettings()
	hs := testHeightMap()
	grid := chunkGrid(hs, ms, 4, 4)
	if Build(grid, ms, hs, 3).Digest() != Build(grid, ms, hs, 3).Digest() {
		t.Fatalf("expected identical meshes for identical inputs")
	}
}
