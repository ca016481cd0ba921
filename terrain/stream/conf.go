package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/dm-vev/lodterrain/terrain/dispatch"
	"github.com/dm-vev/lodterrain/terrain/heightmap"
	"github.com/dm-vev/lodterrain/terrain/mesh"
	"golang.org/x/time/rate"
)

// Neighbourhood is the shape of the area of chunks around the viewer that is
// tracked by a Streamer.
type Neighbourhood uint8

const (
	// NeighbourhoodSquare tracks all chunks within the view distance along
	// both axes.
	NeighbourhoodSquare Neighbourhood = iota
	// NeighbourhoodDiamond tracks chunks within the view distance in
	// Manhattan distance, skipping the corners of the square.
	NeighbourhoodDiamond
)

// EvictionPolicy controls when a Streamer drops chunks.
type EvictionPolicy struct {
	// Enabled makes the Streamer drop chunks whose nearest edge is further
	// than the maximum view distance plus Margin from the viewer. Chunks are
	// never dropped if Enabled is false.
	Enabled bool
	// Margin is the distance beyond the maximum view distance a chunk may be
	// before it is dropped. Larger margins avoid regenerating chunks when the
	// viewer moves back and forth along the edge of the view distance.
	Margin float64
}

// DefaultColliderDistance is the distance from a chunk at which its collider
// mesh is handed out if Config.ColliderDistance is not set.
const DefaultColliderDistance = 5

// Config holds the settings of a Streamer.
type Config struct {
	// Log is the Logger used by the Streamer. If nil, slog.Default() is used.
	Log *slog.Logger
	// HeightMap configures the height grids of all chunks.
	HeightMap heightmap.Settings
	// Mesh configures the meshes built for all chunks.
	Mesh mesh.Settings
	// DetailLevels is the table of detail levels ordered by strictly
	// increasing threshold. Its last threshold is the maximum view distance.
	DetailLevels []LODInfo
	// ColliderLODIndex is the index in DetailLevels of the level whose mesh
	// is used for collisions. The collider mesh is requested once the viewer
	// is within the threshold of that level.
	ColliderLODIndex int
	// ColliderDistance is the distance within which a chunk hands its
	// collider mesh to the Handler. If 0 or lower, DefaultColliderDistance is
	// used.
	ColliderDistance float64
	// ViewerMoveThreshold is the distance the viewer must move before the set
	// of tracked chunks is updated again. Collider distances are checked on
	// any movement.
	ViewerMoveThreshold float64
	// Neighbourhood is the shape of the area of chunks tracked around the
	// viewer.
	Neighbourhood Neighbourhood
	// Eviction controls when chunks are dropped.
	Eviction EvictionPolicy
	// JobsPerSecond limits the rate at which height grid and mesh jobs are
	// submitted, with bursts of up to JobBurst jobs. Jobs over the limit are
	// submitted during a later tick. If 0 or lower, jobs are not limited.
	JobsPerSecond float64
	JobBurst      int
	// Dispatcher runs the generation jobs of the Streamer. If nil, the
	// Streamer creates and owns a Dispatcher using Workers and QueueSize,
	// which is closed by Streamer.Close.
	Dispatcher *dispatch.Dispatcher
	// Workers and QueueSize configure the Dispatcher created if Dispatcher is
	// nil. See dispatch.Config for their defaults.
	Workers, QueueSize int
	// Handler handles events of the Streamer. If nil, NopHandler is used.
	Handler Handler
}

// Validate checks the structural settings of the Config. A Streamer is never
// created from a Config that fails validation.
func (conf Config) Validate() error {
	if err := conf.Mesh.Validate(); err != nil {
		return err
	}
	if err := validateLevels(conf.DetailLevels, conf.Mesh); err != nil {
		return err
	}
	if conf.ColliderLODIndex < 0 || conf.ColliderLODIndex >= len(conf.DetailLevels) {
		return fmt.Errorf("stream: collider lod index %d out of range [0, %d)", conf.ColliderLODIndex, len(conf.DetailLevels))
	}
	if conf.ViewerMoveThreshold < 0 || math.IsNaN(conf.ViewerMoveThreshold) {
		return errors.New("stream: viewer move threshold must not be negative")
	}
	if conf.Eviction.Margin < 0 || math.IsNaN(conf.Eviction.Margin) {
		return errors.New("stream: eviction margin must not be negative")
	}
	if conf.Neighbourhood > NeighbourhoodDiamond {
		return fmt.Errorf("stream: unknown neighbourhood %d", conf.Neighbourhood)
	}
	return nil
}

func validateLevels(levels []LODInfo, ms mesh.Settings) error {
	if len(levels) == 0 {
		return errors.New("stream: detail level table is empty")
	}
	for i, l := range levels {
		if !ms.SupportsLOD(l.LOD) {
			return fmt.Errorf("stream: detail level %d: lod %d not supported by chunk size %d", i, l.LOD, ms.ChunkSize())
		}
		if !(l.Threshold > 0) || math.IsInf(l.Threshold, 0) {
			return fmt.Errorf("stream: detail level %d: threshold must be positive and finite", i)
		}
		if i > 0 && l.Threshold <= levels[i-1].Threshold {
			return fmt.Errorf("stream: detail level %d: threshold %v does not exceed %v", i, l.Threshold, levels[i-1].Threshold)
		}
	}
	return nil
}

func (conf Config) withDefaults() Config {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.ColliderDistance <= 0 {
		conf.ColliderDistance = DefaultColliderDistance
	}
	if conf.Handler == nil {
		conf.Handler = NopHandler{}
	}
	conf.DetailLevels = append([]LODInfo(nil), conf.DetailLevels...)
	return conf
}

// New validates the Config and creates a Streamer from it. The Streamer does
// not track any chunks until its first Tick.
func (conf Config) New() (*Streamer, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	conf = conf.withDefaults()

	s := &Streamer{
		conf:        conf,
		disp:        conf.Dispatcher,
		metrics:     newMetrics(),
		buildHeight: buildHeight,
		buildMesh:   mesh.Build,
	}
	if s.disp == nil {
		s.disp = dispatch.Config{Log: conf.Log, Workers: conf.Workers, QueueSize: conf.QueueSize}.New()
		s.ownsDispatcher = true
	}
	if conf.JobsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(conf.JobsPerSecond), max(conf.JobBurst, 1))
	}
	s.handler.Store(&conf.Handler)
	s.reset()
	return s, nil
}
