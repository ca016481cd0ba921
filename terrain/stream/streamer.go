// Package stream tracks the terrain chunks around a moving viewer. It decides
// per tick which chunks are visible and at which level of detail, and drives
// the generation of their height grids and meshes on a dispatch.Dispatcher.
package stream

import (
	"errors"
	"math"
	"slices"
	"sync/atomic"

	"github.com/brentp/intintmap"
	"github.com/dm-vev/lodterrain/terrain/dispatch"
	"github.com/dm-vev/lodterrain/terrain/field"
	"github.com/dm-vev/lodterrain/terrain/heightmap"
	"github.com/dm-vev/lodterrain/terrain/mesh"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/time/rate"
)

// Streamer owns the chunks around a viewer. Tick and all other methods,
// except Stats, must be called from the same goroutine, which is also the
// goroutine the Handler is called on. A Streamer must be created using
// Config.New.
type Streamer struct {
	conf           Config
	disp           *dispatch.Dispatcher
	ownsDispatcher bool
	limiter        *rate.Limiter
	handler        atomic.Pointer[Handler]
	metrics        *metrics

	buildHeight func(n int, hs heightmap.Settings, centre mgl64.Vec2) *field.HeightGrid
	buildMesh   func(g *field.HeightGrid, ms mesh.Settings, e mesh.Elevation, lod int) *mesh.Data

	meshWorldSize   float64
	numVertsPerLine int
	maxViewDistance float64
	chunksVisible   int

	slots    *intintmap.Map
	chunks   []*Chunk
	free     []int
	count    int
	visible  []*Chunk
	deferred []*Chunk

	viewer, viewerOld mgl64.Vec2
	centre            Coord
	started           bool
	pass              uint64
	// generation is increased by Regenerate, so that results of jobs
	// submitted earlier are recognised and dropped.
	generation uint64
}

// reset derives the sizes used by the streamer from its Config and forgets
// all chunks.
func (s *Streamer) reset() {
	s.meshWorldSize = s.conf.Mesh.MeshWorldSize()
	s.numVertsPerLine = s.conf.Mesh.NumVertsPerLine()
	s.maxViewDistance = s.conf.DetailLevels[len(s.conf.DetailLevels)-1].Threshold
	s.chunksVisible = int(math.RoundToEven(s.maxViewDistance / s.meshWorldSize))

	s.slots = intintmap.New(256, 0.6)
	s.chunks, s.free, s.count = nil, nil, 0
	s.visible, s.deferred = nil, nil
	s.started = false
	s.metrics.setGauges(0, 0)
}

// Handle changes the Handler of the Streamer. NopHandler is used if nil is
// passed.
func (s *Streamer) Handle(h Handler) {
	if h == nil {
		h = NopHandler{}
	}
	s.handler.Store(&h)
}

func (s *Streamer) handle() Handler {
	return *s.handler.Load()
}

// Tick advances the streamer with the viewer at the position passed, the y
// component holding the world z coordinate. It applies the results of all
// finished jobs, updates collider meshes and, once the viewer moved far
// enough, updates the set of tracked chunks and evicts chunks out of range.
func (s *Streamer) Tick(viewer mgl64.Vec2) {
	s.viewer = viewer
	s.disp.Drain()
	s.retryDeferred()

	if s.started && viewer != s.viewerOld {
		for _, c := range s.visible {
			s.updateCollider(c)
		}
	}
	threshold := s.conf.ViewerMoveThreshold
	if !s.started || viewer.Sub(s.viewerOld).LenSqr() > threshold*threshold {
		s.updateVisibleChunks()
		s.evict()
		s.started = true
		s.viewerOld = viewer
	}
	s.metrics.setGauges(s.count, len(s.visible))
}

// updateVisibleChunks updates every visible chunk and every chunk in the
// neighbourhood of the viewer, creating chunks that are not yet tracked.
func (s *Streamer) updateVisibleChunks() {
	s.pass++
	for i := len(s.visible) - 1; i >= 0; i-- {
		c := s.visible[i]
		c.pass = s.pass
		s.updateChunk(c)
	}

	s.centre = s.chunkCoord(s.viewer)
	k := s.chunksVisible
	for dy := -k; dy <= k; dy++ {
		for dx := -k; dx <= k; dx++ {
			coord := Coord{X: s.centre.X + int32(dx), Y: s.centre.Y + int32(dy)}
			if !s.inNeighbourhood(coord) {
				continue
			}
			if c, ok := s.Chunk(coord); ok {
				if c.pass != s.pass {
					c.pass = s.pass
					s.updateChunk(c)
				}
				continue
			}
			s.requestHeight(s.create(coord))
		}
	}
}

// chunkCoord returns the coordinate of the chunk the world position passed
// lies in.
func (s *Streamer) chunkCoord(p mgl64.Vec2) Coord {
	return Coord{
		X: int32(math.RoundToEven(p[0] / s.meshWorldSize)),
		Y: int32(math.RoundToEven(p[1] / s.meshWorldSize)),
	}
}

// inNeighbourhood checks if coord lies in the neighbourhood tracked around
// the chunk the viewer was in during the last update.
func (s *Streamer) inNeighbourhood(coord Coord) bool {
	dx, dy := abs(int(coord.X-s.centre.X)), abs(int(coord.Y-s.centre.Y))
	if s.conf.Neighbourhood == NeighbourhoodDiamond {
		return dx+dy <= s.chunksVisible
	}
	return dx <= s.chunksVisible && dy <= s.chunksVisible
}

// updateChunk re-evaluates the visibility and detail level of c.
func (s *Streamer) updateChunk(c *Chunk) {
	if c.height != HeightReady || c.evicted {
		return
	}
	index, visible := SelectLOD(s.conf.DetailLevels, c.distance(s.viewer))
	if visible && index != c.lodIndex {
		switch lm := &c.lods[index]; {
		case lm.mesh != nil:
			c.lodIndex = index
			s.handle().HandleMesh(c, lm.mesh)
		case !lm.requested:
			s.requestMesh(c, index)
		}
	}
	if c.visible != visible {
		c.visible = visible
		if visible {
			s.visible = append(s.visible, c)
		} else {
			s.removeVisible(c)
		}
		s.handle().HandleVisibility(c, visible)
	}
}

// updateCollider requests the collider mesh of c once the viewer is within
// the threshold of the collider detail level and hands it out once the viewer
// is within the collider distance.
func (s *Streamer) updateCollider(c *Chunk) {
	if c.collider || c.height != HeightReady || c.evicted {
		return
	}
	index := s.conf.ColliderLODIndex
	lm := &c.lods[index]
	d := c.distance(s.viewer)

	if d < s.conf.DetailLevels[index].Threshold && !lm.requested {
		s.requestMesh(c, index)
	}
	if d < s.conf.ColliderDistance && lm.mesh != nil {
		c.collider = true
		s.metrics.incColliders()
		s.handle().HandleCollider(c, lm.mesh)
	}
}

func (s *Streamer) removeVisible(c *Chunk) {
	if i := slices.Index(s.visible, c); i >= 0 {
		s.visible = slices.Delete(s.visible, i, i+1)
	}
}

// create starts tracking a new chunk at coord.
func (s *Streamer) create(coord Coord) *Chunk {
	c := newChunk(coord, s.meshWorldSize, s.numVertsPerLine, len(s.conf.DetailLevels))
	slot := len(s.chunks)
	if n := len(s.free); n > 0 {
		slot, s.free = s.free[n-1], s.free[:n-1]
		s.chunks[slot] = c
	} else {
		s.chunks = append(s.chunks, c)
	}
	s.slots.Put(coord.key(), int64(slot))
	s.count++
	s.conf.Log.Debug("chunk created", "chunkX", coord.X, "chunkY", coord.Y)
	return c
}

// submit submits a job for c and reports if it was accepted. If the job is
// rate limited or refused by a full queue, c is deferred to the next tick.
// A closed dispatcher is returned as error and c is not deferred.
func submit[T any](s *Streamer, c *Chunk, produce func() T, onComplete func(T, error)) (bool, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.deferChunk(c)
		return false, nil
	}
	err := dispatch.Submit(s.disp, produce, onComplete)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, dispatch.ErrClosed):
		return false, err
	case !errors.Is(err, dispatch.ErrQueueFull):
		s.conf.Log.Warn("submit chunk job", "chunkX", c.coord.X, "chunkY", c.coord.Y, "err", err)
	}
	s.deferChunk(c)
	return false, nil
}

func (s *Streamer) deferChunk(c *Chunk) {
	s.metrics.incDeferred()
	if !c.deferred {
		c.deferred = true
		s.deferred = append(s.deferred, c)
	}
}

// retryDeferred repeats the work of chunks whose jobs could not be submitted
// during an earlier tick.
func (s *Streamer) retryDeferred() {
	if len(s.deferred) == 0 {
		return
	}
	batch := s.deferred
	s.deferred = nil
	next := 0
	defer func() {
		// Chunks not reached before a Handler panicked keep their place.
		if rest := batch[next:]; len(rest) > 0 {
			s.deferred = append(slices.Clone(rest), s.deferred...)
		}
	}()
	for next < len(batch) {
		c := batch[next]
		next++
		c.deferred = false
		if c.evicted {
			continue
		}
		if c.height == HeightAbsent {
			s.requestHeight(c)
			continue
		}
		s.updateChunk(c)
		s.updateCollider(c)
	}
}

// requestHeight submits the height grid job of c.
func (s *Streamer) requestHeight(c *Chunk) {
	build, hs, n, centre, gen := s.buildHeight, s.conf.HeightMap, s.numVertsPerLine, c.centre, s.generation
	produce := func() *field.HeightGrid {
		return build(n, hs, centre)
	}
	ok, err := submit(s, c, produce, func(g *field.HeightGrid, err error) { s.receiveHeight(c, gen, g, err) })
	switch {
	case ok:
		c.height = HeightPending
		s.metrics.incHeightRequests()
	case err != nil:
		c.height = HeightFailed
		s.fail(c, -1, err)
	}
}

func (s *Streamer) receiveHeight(c *Chunk, gen uint64, g *field.HeightGrid, err error) {
	if gen != s.generation || c.evicted {
		return
	}
	if err != nil {
		c.height = HeightFailed
		s.fail(c, -1, err)
		return
	}
	c.grid, c.height = g, HeightReady
	s.updateChunk(c)
}

// requestMesh submits the mesh job of the detail level index of c.
func (s *Streamer) requestMesh(c *Chunk, index int) {
	build, grid, ms, elev := s.buildMesh, c.grid, s.conf.Mesh, s.conf.HeightMap
	lod, gen := s.conf.DetailLevels[index].LOD, s.generation
	produce := func() *mesh.Data {
		return build(grid, ms, elev, lod)
	}
	ok, err := submit(s, c, produce, func(m *mesh.Data, err error) { s.receiveMesh(c, gen, index, m, err) })
	switch {
	case ok:
		c.lods[index].requested = true
		s.metrics.incMeshRequests(index)
	case err != nil:
		c.lods[index].requested, c.lods[index].failed = true, true
		s.fail(c, index, err)
	}
}

func (s *Streamer) receiveMesh(c *Chunk, gen uint64, index int, m *mesh.Data, err error) {
	if gen != s.generation || c.evicted {
		return
	}
	if err != nil {
		c.lods[index].failed = true
		s.fail(c, index, err)
		return
	}
	c.lods[index].mesh = m
	s.metrics.incMeshesReady(index)
	s.updateChunk(c)
	if index == s.conf.ColliderLODIndex {
		s.updateCollider(c)
	}
}

func (s *Streamer) fail(c *Chunk, level int, err error) {
	s.metrics.incFailures()
	s.conf.Log.Warn("chunk job failed", "chunkX", c.coord.X, "chunkY", c.coord.Y, "level", level, "err", err)
	s.handle().HandleFailure(c, level, err)
}

// evict drops chunks outside the tracked neighbourhood that are further than
// the maximum view distance plus the eviction margin from the viewer.
func (s *Streamer) evict() {
	if !s.conf.Eviction.Enabled {
		return
	}
	limit := s.maxViewDistance + s.conf.Eviction.Margin
	n := 0
	for slot, c := range s.chunks {
		if c == nil || s.inNeighbourhood(c.coord) || c.distance(s.viewer) <= limit {
			continue
		}
		s.drop(slot, c)
		n++
	}
	if n > 0 {
		s.metrics.incEvictions(n)
		s.conf.Log.Debug("evicted chunks", "count", n, "remaining", s.count)
	}
}

// drop stops tracking the chunk c stored at slot.
func (s *Streamer) drop(slot int, c *Chunk) {
	c.evicted = true
	if c.visible {
		c.visible = false
		s.removeVisible(c)
		s.handle().HandleVisibility(c, false)
	}
	s.slots.Del(c.coord.key())
	s.chunks[slot] = nil
	s.free = append(s.free, slot)
	s.count--
	s.handle().HandleEvict(c)
}

// Regenerate replaces the height map and mesh settings of the streamer. All
// chunks are dropped and results of jobs still running are discarded; the
// next Tick starts generating chunks with the new settings. The settings are
// left untouched if they fail validation.
func (s *Streamer) Regenerate(hs heightmap.Settings, ms mesh.Settings) error {
	conf := s.conf
	conf.HeightMap, conf.Mesh = hs, ms
	if err := conf.Validate(); err != nil {
		return err
	}
	n := 0
	for slot, c := range s.chunks {
		if c != nil {
			s.drop(slot, c)
			n++
		}
	}
	s.metrics.incEvictions(n)
	s.conf = conf
	s.generation++
	s.reset()
	s.conf.Log.Debug("regenerating terrain", "dropped", n)
	return nil
}

// Retry repeats failed height grid and mesh jobs of the chunk at coord. It
// returns false if the chunk is not tracked or nothing had failed.
func (s *Streamer) Retry(coord Coord) bool {
	c, ok := s.Chunk(coord)
	if !ok {
		return false
	}
	retried := false
	if c.height == HeightFailed {
		c.height = HeightAbsent
		s.requestHeight(c)
		retried = true
	}
	for i := range c.lods {
		if c.lods[i].failed {
			c.lods[i].failed, c.lods[i].requested = false, false
			retried = true
		}
	}
	if retried {
		s.updateChunk(c)
		s.updateCollider(c)
	}
	return retried
}

// Chunk returns the chunk tracked at coord.
func (s *Streamer) Chunk(coord Coord) (*Chunk, bool) {
	slot, ok := s.slots.Get(coord.key())
	if !ok {
		return nil, false
	}
	return s.chunks[slot], true
}

// Chunks returns all tracked chunks.
func (s *Streamer) Chunks() []*Chunk {
	out := make([]*Chunk, 0, s.count)
	for _, c := range s.chunks {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// VisibleChunks returns all visible chunks in the order they became visible.
func (s *Streamer) VisibleChunks() []*Chunk {
	return slices.Clone(s.visible)
}

// MaxViewDistance returns the threshold of the last detail level.
func (s *Streamer) MaxViewDistance() float64 { return s.maxViewDistance }

// MeshWorldSize returns the world space length of one side of a chunk.
func (s *Streamer) MeshWorldSize() float64 { return s.meshWorldSize }

// ChunksVisibleInViewDistance returns the radius, in chunks, of the
// neighbourhood tracked around the viewer.
func (s *Streamer) ChunksVisibleInViewDistance() int { return s.chunksVisible }

// Stats returns a snapshot of the counters of the streamer. Stats is safe to
// call from any goroutine.
func (s *Streamer) Stats() Stats {
	return s.metrics.snapshot()
}

// Close closes the Dispatcher of the streamer if the streamer created it.
// Jobs that are still running are waited for; their results are discarded.
func (s *Streamer) Close() {
	if s.ownsDispatcher {
		s.disp.Close()
	}
}

func buildHeight(n int, hs heightmap.Settings, centre mgl64.Vec2) *field.HeightGrid {
	return heightmap.Build(n, n, hs, centre)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
