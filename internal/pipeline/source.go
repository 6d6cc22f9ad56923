package pipeline

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/platewatch/platewatch/internal/capture"
	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/observability/metrics"
)

// processSource runs acquire, recognize, record and dispatch for one source.
// Every failure ends here: it is logged, counted and recorded in the
// source's health, never propagated.
func (s *Scheduler) processSource(parent context.Context, source datastore.Camera, counters *cycleCounters) {
	ctx, cancel := context.WithTimeout(parent, s.config.SourceTimeout)
	defer cancel()

	log := s.log.With(
		logger.Int("source_id", int(source.ID)),
		logger.String("source_name", source.Name))

	var outcome string
	var err error
	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.OutcomeError
			err = errors.Newf("source task panicked: %v", r).
				Component("pipeline").
				Category(errors.CategoryCycle).
				Priority(errors.PriorityHigh).
				Context("source_id", source.ID).
				Context("stack", string(debug.Stack())).
				Build()
		}
		s.finishSource(ctx, log, source, outcome, err, counters)
	}()

	outcome, err = s.runStages(ctx, log, source, counters)
}

func (s *Scheduler) runStages(ctx context.Context, log logger.Logger, source datastore.Camera, counters *cycleCounters) (string, error) {
	start := time.Now()
	frame, err := s.acquirer.Acquire(ctx, source)
	s.observeStage(metrics.StageAcquire, start)
	if err != nil {
		if errors.Is(err, capture.ErrNoFrame) {
			return metrics.OutcomeNoFrame, err
		}
		return metrics.OutcomeError, err
	}

	start = time.Now()
	candidate, ok, err := s.recognizer.Recognize(ctx, frame)
	s.observeStage(metrics.StageRecognize, start)
	if err != nil {
		return metrics.OutcomeError, err
	}
	if !ok {
		log.Trace("no plate candidate in frame")
		return metrics.OutcomeNoCandidate, nil
	}

	start = time.Now()
	result, err := s.recorder.Record(ctx, candidate, frame, source)
	s.observeStage(metrics.StageRecord, start)
	if err != nil {
		return metrics.OutcomeError, err
	}
	if result.Suppressed {
		return metrics.OutcomeSuppressed, nil
	}
	counters.events.Add(1)

	if !result.Matched() {
		return metrics.OutcomeEvent, nil
	}
	if d, ok := s.dispatcher.(switchable); ok && !d.Enabled() {
		log.Debug("actuator disabled, registered vehicle not dispatched", logger.String("plate", string(candidate)))
		return metrics.OutcomeEvent, nil
	}

	start = time.Now()
	triggered := s.dispatcher.Trigger(ctx, string(candidate))
	s.observeStage(metrics.StageDispatch, start)
	counters.dispatches.Add(1)
	if !triggered {
		log.Warn("actuator trigger failed for registered vehicle", logger.String("plate", string(candidate)))
	}
	return metrics.OutcomeEvent, nil
}

func (s *Scheduler) finishSource(ctx context.Context, log logger.Logger, source datastore.Camera, outcome string, err error, counters *cycleCounters) {
	now := s.now()
	switch {
	case err != nil && errors.Is(ctx.Err(), context.Canceled):
		// shutting down, not the source's fault
		counters.failed.Add(1)
		log.Debug("source attempt cancelled", logger.Error(err))
	case err != nil:
		counters.failed.Add(1)
		s.health.recordFailure(ctx, source, now, err)
		log.Warn("source attempt failed", logger.String("outcome", outcome), logger.Error(err))
	default:
		counters.succeeded.Add(1)
		s.health.recordSuccess(ctx, source, now)
	}

	if s.metrics != nil {
		s.metrics.RecordSourceAttempt(source.ID, outcome)
	}
	counters.finished.Add(1)
}

func (s *Scheduler) observeStage(stage string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordStageDuration(stage, time.Since(start).Seconds())
	}
}
