package dispatch

import (
	"log/slog"
	"runtime"

	"github.com/alitto/pond/v2"
)

// Config holds the settings of a Dispatcher. The zero value is usable;
// defaults are applied by New.
type Config struct {
	// Log is the Logger used to report recovered panics and queue saturation.
	// If nil, slog.Default() is used.
	Log *slog.Logger
	// Workers controls the number of jobs that may run at the same time. If
	// set to 0 or lower, the worker count is derived from the host's
	// available CPUs.
	Workers int
	// QueueSize limits how many jobs may wait for a worker. If set to 0 or
	// lower, a queue size proportional to the worker count is chosen. Submit
	// fails with ErrQueueFull once the queue is full; increase QueueSize
	// alongside Workers if the logs report queue saturation.
	QueueSize int
}

func (conf Config) withDefaults() Config {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Workers <= 0 {
		conf.Workers = runtime.NumCPU()
	}
	if conf.QueueSize <= 0 {
		conf.QueueSize = conf.Workers * 64
	}
	return conf
}

// New creates a Dispatcher using the settings of the Config and starts
// accepting jobs immediately.
func (conf Config) New() *Dispatcher {
	conf = conf.withDefaults()
	return &Dispatcher{
		conf: conf,
		pool: pond.NewPool(conf.Workers, pond.WithQueueSize(conf.QueueSize), pond.WithNonBlocking(true)),
	}
}
