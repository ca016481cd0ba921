// Command flythrough streams terrain around a viewer flying along the x axis
// and logs the chunks that are meshed, shown, hidden and dropped on the way.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/dm-vev/lodterrain/terrain"
	"github.com/dm-vev/lodterrain/terrain/mesh"
	"github.com/dm-vev/lodterrain/terrain/stream"
	"github.com/go-gl/mathgl/mgl64"
)

func main() {
	var (
		path     = flag.String("config", "terrain.toml", "path of the terrain config, created with defaults if missing")
		ticks    = flag.Int("ticks", 200, "amount of ticks to run for, 0 to run until interrupted")
		speed    = flag.Float64("speed", 40, "distance the viewer moves per tick")
		interval = flag.Duration("interval", 50*time.Millisecond, "time between two ticks")
		debug    = flag.Bool("debug", false, "log every chunk event")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	conf, err := readConfig(*path, log)
	if err != nil {
		log.Error("Failed reading terrain config.", "path", *path, "err", err)
		os.Exit(1)
	}
	conf.Handler = logHandler{log: log}

	s, err := conf.New()
	if err != nil {
		log.Error("Failed creating streamer.", "err", err)
		os.Exit(1)
	}
	defer s.Close()

	log.Info("Streaming terrain.", "chunkSize", s.MeshWorldSize(), "viewDistance", s.MaxViewDistance(), "chunksVisible", s.ChunksVisibleInViewDistance())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	start := time.Now()
	var tick int
	viewer := stream.ViewerFunc(func() mgl64.Vec2 {
		tick++
		if *ticks > 0 && tick >= *ticks {
			cancel()
		}
		return mgl64.Vec2{float64(tick) * *speed, 0}
	})
	go reportStats(ctx, s, log)

	if err := s.Run(ctx, viewer, *interval); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Streamer stopped.", "err", err)
	}
	st := s.Stats()
	log.Info("Flythrough finished.", "ticks", tick, "duration", time.Since(start).Round(time.Millisecond), "chunks", st.Chunks, "visible", st.Visible, "evictions", st.Evictions, "failures", st.Failures)
}

// readConfig reads the config at path, writing the default config to it first
// if it does not yet exist.
func readConfig(path string, log *slog.Logger) (stream.Config, error) {
	uc, err := terrain.LoadConfig(path)
	if errors.Is(err, terrain.ErrNoConfig) {
		if err := uc.Save(path); err != nil {
			return stream.Config{}, fmt.Errorf("save default config: %w", err)
		}
		log.Info("Created default terrain config.", "path", path)
	} else if err != nil {
		return stream.Config{}, err
	}
	return uc.Config(log)
}

func reportStats(ctx context.Context, s *stream.Streamer, log *slog.Logger) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			st := s.Stats()
			log.Info("Streamer stats.", "chunks", st.Chunks, "visible", st.Visible, "heightRequests", st.HeightRequests, "meshesReady", st.MeshesReady, "deferred", st.Deferred, "tps", fmt.Sprintf("%.1f", st.TPS))
		case <-ctx.Done():
			return
		}
	}
}

// logHandler logs every event of the streamer at debug level.
type logHandler struct {
	stream.NopHandler
	log *slog.Logger
}

func (h logHandler) HandleMesh(c *stream.Chunk, m *mesh.Data) {
	h.log.Debug("Chunk meshed.", "chunk", c.Coord(), "lod", m.LOD, "vertices", m.VertexCount(), "triangles", m.TriangleCount())
}

func (h logHandler) HandleVisibility(c *stream.Chunk, visible bool) {
	h.log.Debug("Chunk visibility changed.", "chunk", c.Coord(), "visible", visible)
}

func (h logHandler) HandleCollider(c *stream.Chunk, m *mesh.Data) {
	h.log.Debug("Chunk collider set.", "chunk", c.Coord(), "lod", m.LOD)
}

func (h logHandler) HandleEvict(c *stream.Chunk) {
	h.log.Debug("Chunk evicted.", "chunk", c.Coord())
}

func (h logHandler) HandleFailure(c *stream.Chunk, level int, err error) {
	h.log.Warn("Chunk generation failed.", "chunk", c.Coord(), "level", level, "err", err)
}
