package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Viewer supplies the position the terrain is streamed around.
type Viewer interface {
	// Position returns the current position of the viewer, with the y
	// component holding the world z coordinate.
	Position() mgl64.Vec2
}

// ViewerFunc is a function implementing Viewer.
type ViewerFunc func() mgl64.Vec2

// Position calls f and returns its result.
func (f ViewerFunc) Position() mgl64.Vec2 { return f() }

// StaticViewer is a Viewer that never moves.
type StaticViewer mgl64.Vec2

// Position returns the fixed position of the viewer.
func (v StaticViewer) Position() mgl64.Vec2 { return mgl64.Vec2(v) }

const tpsSampleSize = 20

// ErrInvalidInterval is returned by Run if the tick interval is not positive.
var ErrInvalidInterval = errors.New("stream: tick interval must be positive")

// Run ticks the streamer every interval with the current position of v until
// ctx is cancelled, returning the error of ctx. Run returns
// ErrInvalidInterval without ticking if interval is 0 or lower. Run owns the
// streamer while it is running: no other goroutine may call its methods
// except Stats.
func (s *Streamer) Run(ctx context.Context, v Viewer, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}
	tc := time.NewTicker(interval)
	defer tc.Stop()

	target := 1 / interval.Seconds()
	lastTick := time.Now()
	var (
		durationSum time.Duration
		ticksCount  int
		warned      bool
	)
	s.Tick(v.Position())
	for {
		select {
		case <-tc.C:
			tickStart := time.Now()
			duration := tickStart.Sub(lastTick)
			lastTick = tickStart
			if duration > 0 {
				durationSum += duration
				ticksCount++
				if ticksCount >= tpsSampleSize {
					tps := 1 / (durationSum / time.Duration(ticksCount)).Seconds()
					s.metrics.setTPS(tps)
					if tps < target*0.95 {
						if !warned {
							s.conf.Log.Warn("Streamer tick rate dropped below target.", "tps", tps, "target", target)
							warned = true
						}
					} else {
						warned = false
					}
					durationSum, ticksCount = 0, 0
				}
			}
			s.Tick(v.Position())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
