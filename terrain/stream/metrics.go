package stream

import (
	"maps"
	"sync"
)

// metrics tracks streaming counters. It is updated on the ticking goroutine
// and may be read concurrently through Streamer.Stats.
type metrics struct {
	mu sync.Mutex

	heightRequests uint64
	meshRequests   map[int]uint64
	meshesReady    map[int]uint64
	deferred       uint64
	failures       uint64
	evictions      uint64
	colliders      uint64

	chunks  int
	visible int
	tps     float64
}

func newMetrics() *metrics {
	return &metrics{
		meshRequests: make(map[int]uint64),
		meshesReady:  make(map[int]uint64),
	}
}

// incHeightRequests increments the counter of submitted height grid jobs.
func (m *metrics) incHeightRequests() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.heightRequests++
	m.mu.Unlock()
}

// incMeshRequests increments the counter of submitted mesh jobs of a detail
// level.
func (m *metrics) incMeshRequests(level int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.meshRequests[level]++
	m.mu.Unlock()
}

// incMeshesReady increments the counter of meshes received for a detail level.
func (m *metrics) incMeshesReady(level int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.meshesReady[level]++
	m.mu.Unlock()
}

// incDeferred increments the counter of jobs postponed by backpressure or
// rate limiting.
func (m *metrics) incDeferred() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.deferred++
	m.mu.Unlock()
}

func (m *metrics) incFailures() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

func (m *metrics) incEvictions(n int) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	m.evictions += uint64(n)
	m.mu.Unlock()
}

func (m *metrics) incColliders() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.colliders++
	m.mu.Unlock()
}

// setGauges stores the current chunk counts.
func (m *metrics) setGauges(chunks, visible int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.chunks, m.visible = chunks, visible
	m.mu.Unlock()
}

func (m *metrics) setTPS(tps float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.tps = tps
	m.mu.Unlock()
}

// Stats is a snapshot of the counters of a Streamer.
type Stats struct {
	// Chunks is the amount of chunks currently tracked.
	Chunks int
	// Visible is the amount of chunks currently visible.
	Visible int
	// HeightRequests is the amount of height grid jobs submitted.
	HeightRequests uint64
	// MeshRequests and MeshesReady hold the amount of mesh jobs submitted
	// and completed per detail level index.
	MeshRequests map[int]uint64
	MeshesReady  map[int]uint64
	// Deferred is the amount of job submissions postponed to a later tick.
	Deferred uint64
	// Failures is the amount of jobs that failed.
	Failures uint64
	// Evictions is the amount of chunks dropped.
	Evictions uint64
	// Colliders is the amount of collider meshes handed out.
	Colliders uint64
	// TPS is the tick rate measured by Streamer.Run, or 0 if Run is not used.
	TPS float64
}

func (m *metrics) snapshot() Stats {
	if m == nil {
		return Stats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Chunks:         m.chunks,
		Visible:        m.visible,
		HeightRequests: m.heightRequests,
		MeshRequests:   maps.Clone(m.meshRequests),
		MeshesReady:    maps.Clone(m.meshesReady),
		Deferred:       m.deferred,
		Failures:       m.failures,
		Evictions:      m.evictions,
		Colliders:      m.colliders,
		TPS:            m.tps,
	}
}
