package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/notification"
	"github.com/platewatch/platewatch/internal/observability/metrics"
)

// notifyTimeout bounds a health transition alert
const notifyTimeout = 10 * time.Second

// SourceHealth is the observed state of one source
type SourceHealth struct {
	SourceID            uint      `json:"source_id"`
	Name                string    `json:"name"`
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
}

// healthTracker keeps per-source health. The mutex only guards map updates,
// notifications are sent after it is released.
type healthTracker struct {
	mu        sync.Mutex
	threshold int
	sources   map[uint]*SourceHealth
	// current holds the ids of the latest snapshot, nil until the first prune
	current map[uint]struct{}

	metrics  *metrics.PipelineMetrics
	notifier notification.Notifier
	log      logger.Logger
}

func newHealthTracker(threshold int, m *metrics.PipelineMetrics, n notification.Notifier, log logger.Logger) *healthTracker {
	return &healthTracker{
		threshold: threshold,
		sources:   make(map[uint]*SourceHealth),
		metrics:   m,
		notifier:  n,
		log:       log,
	}
}

// entry returns the record for source, creating a healthy one. It returns
// nil for a source that left the latest snapshot. Caller holds mu.
func (h *healthTracker) entry(source datastore.Camera) *SourceHealth {
	if h.current != nil {
		if _, ok := h.current[source.ID]; !ok {
			return nil
		}
	}
	sh, ok := h.sources[source.ID]
	if !ok {
		sh = &SourceHealth{SourceID: source.ID, Healthy: true}
		h.sources[source.ID] = sh
	}
	sh.Name = source.Name
	return sh
}

func (h *healthTracker) recordSuccess(ctx context.Context, source datastore.Camera, at time.Time) {
	h.mu.Lock()
	sh := h.entry(source)
	if sh == nil {
		h.mu.Unlock()
		return
	}
	recovered := !sh.Healthy
	sh.LastAttempt = at
	sh.LastSuccess = at
	sh.ConsecutiveFailures = 0
	sh.LastError = ""
	sh.Healthy = true
	h.mu.Unlock()

	h.export(source.ID, true, 0)
	if recovered {
		h.log.Info("source recovered",
			logger.Int("source_id", int(source.ID)),
			logger.String("source_name", source.Name))
		h.notify(ctx, "Source recovered", fmt.Sprintf("Camera %q (id %d) is delivering frames again.", source.Name, source.ID))
	}
}

func (h *healthTracker) recordFailure(ctx context.Context, source datastore.Camera, at time.Time, err error) {
	h.mu.Lock()
	sh := h.entry(source)
	if sh == nil {
		h.mu.Unlock()
		return
	}
	sh.LastAttempt = at
	sh.ConsecutiveFailures++
	if err != nil {
		sh.LastError = err.Error()
	}
	failures := sh.ConsecutiveFailures
	wentDown := sh.Healthy && failures >= h.threshold
	if wentDown {
		sh.Healthy = false
	}
	healthy := sh.Healthy
	lastErr := sh.LastError
	h.mu.Unlock()

	h.export(source.ID, healthy, failures)
	if wentDown {
		h.log.Warn("source unhealthy",
			logger.Int("source_id", int(source.ID)),
			logger.String("source_name", source.Name),
			logger.Int("consecutive_failures", failures),
			logger.String("last_error", lastErr))
		h.notify(ctx, "Source down", fmt.Sprintf("Camera %q (id %d) failed %d consecutive times: %s",
			source.Name, source.ID, failures, lastErr))
	}
}

// prune drops sources that left the snapshot. Tasks of dropped sources that
// finish later do not bring them back.
func (h *healthTracker) prune(active []datastore.Camera) {
	keep := make(map[uint]struct{}, len(active))
	for _, s := range active {
		keep[s.ID] = struct{}{}
	}

	var removed []uint
	h.mu.Lock()
	h.current = keep
	for id := range h.sources {
		if _, ok := keep[id]; !ok {
			delete(h.sources, id)
			removed = append(removed, id)
		}
	}
	h.mu.Unlock()

	if h.metrics != nil {
		for _, id := range removed {
			h.metrics.ForgetSource(id)
		}
	}
}

// snapshot returns a copy ordered by source id
func (h *healthTracker) snapshot() []SourceHealth {
	h.mu.Lock()
	out := make([]SourceHealth, 0, len(h.sources))
	for _, sh := range h.sources {
		out = append(out, *sh)
	}
	h.mu.Unlock()

	slices.SortFunc(out, func(a, b SourceHealth) int {
		return cmp.Compare(a.SourceID, b.SourceID)
	})
	return out
}

func (h *healthTracker) export(id uint, healthy bool, failures int) {
	if h.metrics != nil {
		h.metrics.SetSourceHealth(id, healthy, failures)
	}
}

func (h *healthTracker) notify(ctx context.Context, title, message string) {
	if h.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := h.notifier.Notify(ctx, title, message); err != nil {
		h.log.Warn("failed to send health notification", logger.String("title", title), logger.Error(err))
	}
}
