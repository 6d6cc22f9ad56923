package pipeline

import (
	"fmt"
	"sync/atomic"
	"time"
)

// CycleReport summarizes one pass over the source snapshot. Tasks that
// outlive the cycle timeout are counted as Pending and their outcome is
// only visible in source health and metrics.
type CycleReport struct {
	ID         string
	Start      time.Time
	Duration   time.Duration
	Sources    int // size of the snapshot
	Attempted  int
	Succeeded  int
	Failed     int
	Skipped    int // previous task for the source was still running
	Pending    int // still running when the cycle stopped waiting
	Events     int
	Dispatches int
	Err        error // cycle-level failure, triggers the backoff
}

// cycleCounters are updated by source tasks while the cycle waits
type cycleCounters struct {
	finished   atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	events     atomic.Int64
	dispatches atomic.Int64
}

func (c *cycleCounters) fill(r *CycleReport) {
	finished := int(c.finished.Load())
	r.Succeeded = int(c.succeeded.Load())
	r.Failed = int(c.failed.Load())
	r.Events = int(c.events.Load())
	r.Dispatches = int(c.dispatches.Load())
	r.Pending = r.Attempted - finished
}

// String implements fmt.Stringer for log output
func (r CycleReport) String() string {
	return fmt.Sprintf("cycle %s: %d/%d succeeded, %d failed, %d skipped, %d pending, %d events, %d dispatches in %s",
		r.ID, r.Succeeded, r.Attempted, r.Failed, r.Skipped, r.Pending, r.Events, r.Dispatches, r.Duration)
}
