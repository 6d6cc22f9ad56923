package pipeline

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/notification"
	"github.com/platewatch/platewatch/internal/observability/metrics"
)

// Scheduler polls every active source once per cycle.
type Scheduler struct {
	config     Config
	store      Store
	acquirer   Acquirer
	recognizer Recognizer
	recorder   Recorder
	dispatcher Dispatcher

	metrics  *metrics.PipelineMetrics
	health   *healthTracker
	onReport func(CycleReport)
	now      func() time.Time
	log      logger.Logger

	inflightMu sync.Mutex
	inflight   map[uint]struct{}

	// tasks tracks source tasks that may outlive their cycle
	tasks sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithMetrics exports cycle, stage and health metrics.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithNotifier sends source down and recovered alerts through n.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Scheduler) {
		s.health.notifier = n
	}
}

// WithReportHook calls fn with every finished CycleReport.
func WithReportHook(fn func(CycleReport)) Option {
	return func(s *Scheduler) {
		s.onReport = fn
	}
}

// New creates a Scheduler over the given stages.
func New(cfg Config, store Store, acquirer Acquirer, rec Recognizer, recorder Recorder, dispatcher Dispatcher, opts ...Option) *Scheduler {
	cfg.applyDefaults()
	log := GetLogger()

	s := &Scheduler{
		config:     cfg,
		store:      store,
		acquirer:   acquirer,
		recognizer: rec,
		recorder:   recorder,
		dispatcher: dispatcher,
		now:        time.Now,
		log:        log,
		inflight:   make(map[uint]struct{}),
	}
	s.health = newHealthTracker(cfg.UnhealthyThreshold, nil, nil, log)
	for _, opt := range opts {
		opt(s)
	}
	s.health.metrics = s.metrics
	return s
}

// Run polls sources until ctx is cancelled. Source tasks still running at
// that point are cancelled and waited for before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("pipeline scheduler started",
		logger.Duration("interval", s.config.Interval),
		logger.Int("workers", s.config.Workers),
		logger.Duration("cycle_timeout", s.config.CycleTimeout),
		logger.Duration("source_timeout", s.config.SourceTimeout))
	defer func() {
		s.tasks.Wait()
		s.log.Info("pipeline scheduler stopped")
	}()

	for {
		report := s.RunCycle(ctx)

		pause := s.config.Interval
		if report.Err != nil && ctx.Err() == nil {
			pause = s.config.Backoff
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pause):
		}
	}
}

// RunCycle executes one pass over the active sources and reports on it.
// A panic in the cycle body is recovered and returned as the report error.
func (s *Scheduler) RunCycle(ctx context.Context) (report CycleReport) {
	report.ID = uuid.NewString()
	report.Start = s.now()
	log := s.log.With(logger.String("cycle_id", report.ID))

	defer func() {
		if r := recover(); r != nil {
			report.Err = errors.Newf("pipeline cycle panicked: %v", r).
				Component("pipeline").
				Category(errors.CategoryCycle).
				Priority(errors.PriorityHigh).
				Context("stack", string(debug.Stack())).
				Build()
		}
		report.Duration = s.now().Sub(report.Start)
		s.finishCycle(log, report)
	}()

	sources, err := s.store.ListActiveSources(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return report
		}
		report.Err = errors.New(err).
			Component("pipeline").
			Category(errors.CategoryCycle).
			Context("operation", "list_active_sources").
			Build()
		return report
	}

	report.Sources = len(sources)
	s.health.prune(sources)
	if s.metrics != nil {
		s.metrics.SetActiveSources(len(sources))
	}
	if len(sources) == 0 {
		log.Debug("no active sources")
		return report
	}

	var counters cycleCounters
	var launch []datastore.Camera
	for _, source := range sources {
		if !s.claim(source.ID) {
			report.Skipped++
			if s.metrics != nil {
				s.metrics.RecordSourceAttempt(source.ID, metrics.OutcomeSkipped)
			}
			log.Debug("source still busy from an earlier cycle, skipped",
				logger.Int("source_id", int(source.ID)),
				logger.String("source_name", source.Name))
			continue
		}
		launch = append(launch, source)
	}
	report.Attempted = len(launch)

	done := s.launch(ctx, launch, &counters)
	s.wait(ctx, done)
	counters.fill(&report)
	return report
}

// launch starts one task per source under the worker limit and returns a
// channel closed when all of them have finished.
func (s *Scheduler) launch(ctx context.Context, sources []datastore.Camera, counters *cycleCounters) <-chan struct{} {
	done := make(chan struct{})
	if len(sources) == 0 {
		close(done)
		return done
	}

	var g errgroup.Group
	if s.config.Workers > 0 {
		g.SetLimit(s.config.Workers)
	}

	s.tasks.Go(func() {
		defer close(done)
		for _, source := range sources {
			g.Go(func() error {
				defer s.release(source.ID)
				s.processSource(ctx, source, counters)
				return nil
			})
		}
		_ = g.Wait()
	})
	return done
}

// wait blocks until the cycle's tasks are done, the cycle timeout passes or
// ctx is cancelled.
func (s *Scheduler) wait(ctx context.Context, done <-chan struct{}) {
	var timeout <-chan time.Time
	if s.config.CycleTimeout > 0 {
		timer := time.NewTimer(s.config.CycleTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
	case <-timeout:
	case <-ctx.Done():
	}
}

func (s *Scheduler) finishCycle(log logger.Logger, report CycleReport) {
	status := metrics.StatusSuccess
	if report.Err != nil {
		status = metrics.StatusError
		log.Error("pipeline cycle failed", logger.Error(report.Err), logger.Duration("duration", report.Duration))
	} else {
		log.Debug("pipeline cycle finished",
			logger.Int("sources", report.Sources),
			logger.Int("attempted", report.Attempted),
			logger.Int("succeeded", report.Succeeded),
			logger.Int("failed", report.Failed),
			logger.Int("skipped", report.Skipped),
			logger.Int("pending", report.Pending),
			logger.Int("events", report.Events),
			logger.Int("dispatches", report.Dispatches),
			logger.Duration("duration", report.Duration))
	}
	if s.metrics != nil {
		s.metrics.RecordCycle(status, report.Duration.Seconds())
	}
	if s.onReport != nil {
		s.onReport(report)
	}
}

// claim marks source as in flight; false when it already is
func (s *Scheduler) claim(id uint) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id uint) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// Health returns the current per-source health, ordered by source id.
func (s *Scheduler) Health() []SourceHealth {
	return s.health.snapshot()
}
