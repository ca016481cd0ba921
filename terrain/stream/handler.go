package stream

import (
	"github.com/dm-vev/lodterrain/terrain/mesh"
)

// Handler handles events emitted by a Streamer. All methods are called on the
// goroutine calling Streamer.Tick and may safely access the Streamer and its
// chunks.
type Handler interface {
	// HandleMesh is called when the active mesh of a visible chunk changes.
	HandleMesh(c *Chunk, m *mesh.Data)
	// HandleVisibility is called when a chunk becomes visible or hidden.
	HandleVisibility(c *Chunk, visible bool)
	// HandleCollider is called at most once per chunk, with the mesh that
	// should be used for collisions.
	HandleCollider(c *Chunk, m *mesh.Data)
	// HandleEvict is called when a chunk is dropped by the Streamer. The
	// chunk will not emit any further events and any resources created for
	// it should be released.
	HandleEvict(c *Chunk)
	// HandleFailure is called when generating the height grid (level -1) or
	// the mesh of a detail level of a chunk failed. Failed work is not
	// repeated until Streamer.Retry is called for the chunk.
	HandleFailure(c *Chunk, level int, err error)
}

// NopHandler implements Handler with no-ops.
type NopHandler struct{}

var _ Handler = NopHandler{}

func (NopHandler) HandleMesh(*Chunk, *mesh.Data) {}
func (NopHandler) HandleVisibility(*Chunk, bool) {}
func (NopHandler) HandleCollider(*Chunk, *mesh.Data) {}
func (NopHandler) HandleEvict(*Chunk) {}
func (NopHandler) HandleFailure(*Chunk, int, error) {}
