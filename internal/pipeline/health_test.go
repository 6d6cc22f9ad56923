package pipeline

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/logger"
)

func TestHealthSnapshotOrderedAndCopied(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHealthTracker(3, nil, nil, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	h.recordSuccess(ctx, datastore.Camera{ID: 9, Name: "rear"}, now)
	h.recordFailure(ctx, datastore.Camera{ID: 2, Name: "gate"}, now, fmt.Errorf("timeout"))

	snap := h.snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, uint(2), snap[0].SourceID)
	assert.Equal(t, "gate", snap[0].Name)
	assert.True(t, snap[0].Healthy)
	assert.Equal(t, 1, snap[0].ConsecutiveFailures)
	assert.Equal(t, now, snap[1].LastSuccess)

	snap[0].Healthy = false
	assert.True(t, h.snapshot()[0].Healthy, "snapshot must not alias tracker state")
}

func TestHealthIgnoresPrunedSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHealthTracker(1, nil, nil, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	gate := datastore.Camera{ID: 1, Name: "gate"}
	rear := datastore.Camera{ID: 2, Name: "rear"}

	h.prune([]datastore.Camera{gate, rear})
	h.recordSuccess(ctx, rear, now)

	// rear is deactivated while its task is still running
	h.prune([]datastore.Camera{gate})
	h.recordFailure(ctx, rear, now.Add(time.Second), fmt.Errorf("timeout"))
	h.recordSuccess(ctx, rear, now.Add(time.Second))
	h.recordSuccess(ctx, gate, now.Add(time.Second))

	snap := h.snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, uint(1), snap[0].SourceID)

	h.prune([]datastore.Camera{gate, rear})
	h.recordFailure(ctx, rear, now.Add(2*time.Second), fmt.Errorf("timeout"))
	snap = h.snapshot()
	require.Len(t, snap, 2)
	assert.False(t, snap[1].Healthy, "reactivated source is tracked again")
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.applyDefaults()
	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultBackoff, cfg.Backoff)
	assert.Equal(t, DefaultSourceTimeout, cfg.SourceTimeout)
	assert.Equal(t, DefaultUnhealthyThreshold, cfg.UnhealthyThreshold)
	assert.Zero(t, cfg.CycleTimeout)
	assert.Zero(t, cfg.Workers)
}
