// Package terrain holds the user configuration of the terrain streaming
// system. A UserConfig is read from a TOML or YAML file and converted into a
// stream.Config using UserConfig.Config.
package terrain

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dm-vev/lodterrain/terrain/curve"
	"github.com/dm-vev/lodterrain/terrain/heightmap"
	"github.com/dm-vev/lodterrain/terrain/mesh"
	"github.com/dm-vev/lodterrain/terrain/noise"
	"github.com/dm-vev/lodterrain/terrain/stream"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// UserConfig is the user configuration of the terrain. It may be serialised
// and can be converted to a stream.Config by calling UserConfig.Config().
type UserConfig struct {
	// Noise holds the fractal parameters of the height field.
	Noise struct {
		// Seed drives the octave offsets of the noise field.
		Seed int64
		// SeedPhrase replaces Seed with a seed derived from the phrase if not
		// empty.
		SeedPhrase string
		// Scale is the size of a single noise feature in height samples.
		Scale float64
		// Octaves is the amount of noise layers summed per sample.
		Octaves int
		// Persistence is the amplitude factor applied per octave, in [0, 1].
		Persistence float64
		// Lacunarity is the frequency factor applied per octave, at least 1.
		Lacunarity float64
		// OffsetX and OffsetY shift the whole noise field.
		OffsetX, OffsetY float64
		// NormaliseMode is either "local" or "global". Neighbouring chunks
		// only line up in global mode.
		NormaliseMode string
		// Kernel is the noise function sampled, either "simplex" or "perlin".
		Kernel string
	}
	HeightMap struct {
		// UseFalloff pushes the edges of every chunk down to 0.
		UseFalloff bool
		// HeightMultiplier scales heights into world units.
		HeightMultiplier float64
		// CurvePreset selects the height curve if CurveKeys is empty. One of
		// "linear" and "ease-in".
		CurvePreset string
		// CurveKeys are the keyframes of a custom height curve.
		CurveKeys []CurveKey
	}
	Mesh struct {
		// MeshScale is the world space distance between two vertices at LOD 0.
		MeshScale float64
		// FlatShading builds meshes with hard edges.
		FlatShading bool
		// ChunkSizeIndex selects the chunk size of smooth meshes.
		ChunkSizeIndex int
		// FlatShadedChunkSizeIndex selects the chunk size of flat shaded
		// meshes.
		FlatShadedChunkSizeIndex int
	}
	Streaming struct {
		// DetailLevels is the table of mesh LODs and their view distance
		// thresholds, ordered by increasing threshold.
		DetailLevels []DetailLevel
		// ColliderLODIndex is the index of the detail level used for
		// collisions.
		ColliderLODIndex int
		// ColliderDistance is the distance within which collider meshes are
		// handed out.
		ColliderDistance float64
		// ViewerMoveThreshold is the distance the viewer must move before the
		// tracked chunks are updated.
		ViewerMoveThreshold float64
		// Neighbourhood is the shape of the tracked area, "square" or
		// "diamond".
		Neighbourhood string
		// EvictChunks drops chunks further than the maximum view distance
		// plus EvictionMargin from the viewer.
		EvictChunks    bool
		EvictionMargin float64
		// JobsPerSecond limits the rate at which generation jobs are
		// submitted, with bursts of up to JobBurst. 0 disables the limit.
		JobsPerSecond float64
		JobBurst      int
	}
	Workers struct {
		// Count is the amount of generation workers. 0 uses one per CPU.
		Count int
		// QueueSize is the amount of jobs that may wait for a worker. 0
		// chooses a size proportional to Count.
		QueueSize int
	}
}

// CurveKey is a keyframe of a height curve.
type CurveKey struct {
	Time, Value           float64
	InTangent, OutTangent float64
}

// DetailLevel is an entry of the detail level table.
type DetailLevel struct {
	LOD       int
	Threshold float64
}

// DefaultConfig returns a configuration with the default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	ns := noise.DefaultSettings()
	c.Noise.Scale = ns.Scale
	c.Noise.Octaves = ns.Octaves
	c.Noise.Persistence = ns.Persistence
	c.Noise.Lacunarity = ns.Lacunarity
	c.Noise.NormaliseMode = noise.ModeGlobal.String()
	c.Noise.Kernel = noise.KernelSimplex.String()
	c.HeightMap.UseFalloff = false
	c.HeightMap.HeightMultiplier = 30
	c.HeightMap.CurvePreset = "ease-in"
	ms := mesh.DefaultSettings()
	c.Mesh.MeshScale = ms.MeshScale
	c.Mesh.ChunkSizeIndex = ms.ChunkSizeIndex
	c.Streaming.DetailLevels = []DetailLevel{{LOD: 0, Threshold: 200}, {LOD: 1, Threshold: 400}, {LOD: 4, Threshold: 600}}
	c.Streaming.ColliderLODIndex = 0
	c.Streaming.ColliderDistance = stream.DefaultColliderDistance
	c.Streaming.ViewerMoveThreshold = 25
	c.Streaming.Neighbourhood = "square"
	c.Streaming.EvictChunks = true
	c.Streaming.EvictionMargin = ms.MeshWorldSize()
	return c
}

// withDefaults fills out fields left zero, which a config file that omits
// them decodes to.
func (uc UserConfig) withDefaults() UserConfig {
	def := DefaultConfig()
	if uc.Noise.Scale == 0 {
		uc.Noise.Scale = def.Noise.Scale
	}
	if uc.Noise.Octaves == 0 {
		uc.Noise.Octaves = def.Noise.Octaves
	}
	if uc.Noise.Lacunarity == 0 {
		uc.Noise.Lacunarity = def.Noise.Lacunarity
	}
	if uc.HeightMap.HeightMultiplier == 0 {
		uc.HeightMap.HeightMultiplier = def.HeightMap.HeightMultiplier
	}
	if uc.Mesh.MeshScale == 0 {
		uc.Mesh.MeshScale = def.Mesh.MeshScale
	}
	if len(uc.Streaming.DetailLevels) == 0 {
		uc.Streaming.DetailLevels = def.Streaming.DetailLevels
	}
	return uc
}

// Config converts the user configuration into a stream.Config. An error is
// returned if a value could not be parsed or the resulting configuration is
// structurally invalid.
func (uc UserConfig) Config(log *slog.Logger) (stream.Config, error) {
	var zero stream.Config
	uc = uc.withDefaults()

	mode, err := noise.ParseMode(uc.Noise.NormaliseMode)
	if err != nil {
		return zero, fmt.Errorf("terrain config: %w", err)
	}
	kernel, err := noise.ParseKernel(uc.Noise.Kernel)
	if err != nil {
		return zero, fmt.Errorf("terrain config: %w", err)
	}
	hc, err := uc.heightCurve()
	if err != nil {
		return zero, fmt.Errorf("terrain config: %w", err)
	}
	var neighbourhood stream.Neighbourhood
	switch strings.ToLower(strings.TrimSpace(uc.Streaming.Neighbourhood)) {
	case "square", "":
		neighbourhood = stream.NeighbourhoodSquare
	case "diamond":
		neighbourhood = stream.NeighbourhoodDiamond
	default:
		return zero, fmt.Errorf("terrain config: unknown neighbourhood %q", uc.Streaming.Neighbourhood)
	}

	seed := uc.Noise.Seed
	if phrase := strings.TrimSpace(uc.Noise.SeedPhrase); phrase != "" {
		seed = noise.SeedFromPhrase(phrase)
	}
	levels := make([]stream.LODInfo, len(uc.Streaming.DetailLevels))
	for i, l := range uc.Streaming.DetailLevels {
		levels[i] = stream.LODInfo{LOD: l.LOD, Threshold: l.Threshold}
	}

	conf := stream.Config{
		Log: log,
		HeightMap: heightmap.Settings{
			Noise: noise.Settings{
				Seed:        seed,
				Scale:       uc.Noise.Scale,
				Octaves:     uc.Noise.Octaves,
				Persistence: uc.Noise.Persistence,
				Lacunarity:  uc.Noise.Lacunarity,
				Offset:      mgl64.Vec2{uc.Noise.OffsetX, uc.Noise.OffsetY},
				Mode:        mode,
				Kernel:      kernel,
			},
			UseFalloff:       uc.HeightMap.UseFalloff,
			HeightMultiplier: uc.HeightMap.HeightMultiplier,
			HeightCurve:      hc,
		},
		Mesh: mesh.Settings{
			MeshScale:                uc.Mesh.MeshScale,
			FlatShading:              uc.Mesh.FlatShading,
			ChunkSizeIndex:           uc.Mesh.ChunkSizeIndex,
			FlatShadedChunkSizeIndex: uc.Mesh.FlatShadedChunkSizeIndex,
		},
		DetailLevels:        levels,
		ColliderLODIndex:    uc.Streaming.ColliderLODIndex,
		ColliderDistance:    uc.Streaming.ColliderDistance,
		ViewerMoveThreshold: uc.Streaming.ViewerMoveThreshold,
		Neighbourhood:       neighbourhood,
		Eviction: stream.EvictionPolicy{
			Enabled: uc.Streaming.EvictChunks,
			Margin:  uc.Streaming.EvictionMargin,
		},
		JobsPerSecond: uc.Streaming.JobsPerSecond,
		JobBurst:      uc.Streaming.JobBurst,
		Workers:       uc.Workers.Count,
		QueueSize:     uc.Workers.QueueSize,
	}
	if err := conf.Validate(); err != nil {
		return zero, fmt.Errorf("terrain config: %w", err)
	}
	return conf, nil
}

func (uc UserConfig) heightCurve() (curve.Curve, error) {
	if len(uc.HeightMap.CurveKeys) > 0 {
		keys := make([]curve.Key, len(uc.HeightMap.CurveKeys))
		for i, k := range uc.HeightMap.CurveKeys {
			keys[i] = curve.Key{Time: k.Time, Value: k.Value, InTangent: k.InTangent, OutTangent: k.OutTangent}
		}
		return curve.New(keys...), nil
	}
	switch strings.ToLower(strings.TrimSpace(uc.HeightMap.CurvePreset)) {
	case "linear", "":
		return curve.Linear(), nil
	case "ease-in", "easein":
		return curve.EaseIn(), nil
	}
	return curve.Curve{}, fmt.Errorf("unknown height curve preset %q", uc.HeightMap.CurvePreset)
}

// ErrNoConfig is returned by LoadConfig if the file does not exist.
var ErrNoConfig = errors.New("terrain: config file does not exist")

// LoadConfig reads the UserConfig stored at path. Files ending in .yaml or
// .yml are decoded as YAML, all others as TOML. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (UserConfig, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, ErrNoConfig
		}
		return c, fmt.Errorf("read config: %w", err)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, &c)
	} else {
		err = toml.Unmarshal(data, &c)
	}
	if err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c.withDefaults(), nil
}

// Save writes the UserConfig to path, using YAML for files ending in .yaml or
// .yml and TOML otherwise.
func (uc UserConfig) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(uc)
	} else {
		data, err = toml.Marshal(uc)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
