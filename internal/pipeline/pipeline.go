// Package pipeline runs the camera polling loop: every cycle it takes a
// snapshot of the active sources and, for each one, acquires a frame,
// recognizes a plate, records the event and dispatches the actuator.
package pipeline

import (
	"context"
	"time"

	"github.com/platewatch/platewatch/internal/capture"
	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/recognizer"
	"github.com/platewatch/platewatch/internal/recorder"
)

// Defaults applied to zero config values
const (
	DefaultInterval           = 5 * time.Second
	DefaultBackoff            = 10 * time.Second
	DefaultSourceTimeout      = 30 * time.Second
	DefaultUnhealthyThreshold = 3
)

// Store provides the per-cycle source snapshot
type Store interface {
	ListActiveSources(ctx context.Context) ([]datastore.Camera, error)
}

// Acquirer grabs one frame from a source
type Acquirer interface {
	Acquire(ctx context.Context, source datastore.Camera) (*capture.Frame, error)
}

// Recognizer turns a frame into a plate candidate
type Recognizer interface {
	Recognize(ctx context.Context, frame *capture.Frame) (recognizer.Candidate, bool, error)
}

// Recorder persists a candidate and reports whether the plate is registered
type Recorder interface {
	Record(ctx context.Context, candidate recognizer.Candidate, frame *capture.Frame, source datastore.Camera) (recorder.Result, error)
}

// Dispatcher triggers the actuator for a registered plate
type Dispatcher interface {
	Trigger(ctx context.Context, plate string) bool
}

// switchable is implemented by dispatchers that can be turned off in config
type switchable interface {
	Enabled() bool
}

// Config controls scheduling
type Config struct {
	Interval           time.Duration // pause after a completed cycle
	Backoff            time.Duration // pause after a failed cycle
	Workers            int           // concurrent source tasks, <= 0 means one per source
	CycleTimeout       time.Duration // how long a cycle waits for its tasks, 0 = until all finish
	SourceTimeout      time.Duration // deadline of one source task
	UnhealthyThreshold int           // consecutive failures before a source is unhealthy
}

// ConfigFromSettings maps pipeline settings to a Config.
func ConfigFromSettings(s conf.PipelineSettings) Config {
	return Config{
		Interval:           s.Interval,
		Backoff:            s.Backoff,
		Workers:            s.Workers,
		CycleTimeout:       s.CycleTimeout,
		SourceTimeout:      s.SourceTimeout,
		UnhealthyThreshold: s.UnhealthyThreshold,
	}
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = DefaultSourceTimeout
	}
	if c.UnhealthyThreshold <= 0 {
		c.UnhealthyThreshold = DefaultUnhealthyThreshold
	}
}

// GetLogger returns the pipeline module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("pipeline")
}
