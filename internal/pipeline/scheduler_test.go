package pipeline

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/platewatch/platewatch/internal/capture"
	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/imagestore"
	"github.com/platewatch/platewatch/internal/observability/metrics"
	"github.com/platewatch/platewatch/internal/recognizer"
	"github.com/platewatch/platewatch/internal/recorder"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAcquirer returns a blank frame unless a behavior is set for the source
type fakeAcquirer struct {
	mu       sync.Mutex
	behavior map[uint]func(ctx context.Context) error
	calls    map[uint]int
	active   atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func newFakeAcquirer() *fakeAcquirer {
	return &fakeAcquirer{behavior: map[uint]func(context.Context) error{}, calls: map[uint]int{}}
}

func (a *fakeAcquirer) set(id uint, fn func(ctx context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.behavior[id] = fn
}

func (a *fakeAcquirer) Acquire(ctx context.Context, source datastore.Camera) (*capture.Frame, error) {
	n := a.active.Add(1)
	defer a.active.Add(-1)
	for {
		seen := a.maxSeen.Load()
		if n <= seen || a.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	a.mu.Lock()
	a.calls[source.ID]++
	fn := a.behavior[source.ID]
	a.mu.Unlock()

	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if fn != nil {
		if err := fn(ctx); err != nil {
			return nil, err
		}
	}
	return &capture.Frame{Image: image.NewGray(image.Rect(0, 0, 4, 4)), SourceID: source.ID, GrabbedAt: time.Now()}, nil
}

func (a *fakeAcquirer) callCount(id uint) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[id]
}

// textRecognizer reads a fixed OCR result per source
type textRecognizer struct {
	texts map[uint]string
}

func (r textRecognizer) Recognize(_ context.Context, frame *capture.Frame) (recognizer.Candidate, bool, error) {
	c, ok := recognizer.Normalize(r.texts[frame.SourceID], recognizer.DefaultMinPlateLength)
	return c, ok, nil
}

type fakeDispatcher struct {
	mu     sync.Mutex
	plates []string
}

func (d *fakeDispatcher) Trigger(_ context.Context, plate string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plates = append(d.plates, plate)
	return true
}

func (d *fakeDispatcher) calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.plates...)
}

// offDispatcher is a dispatcher switched off in config
type offDispatcher struct {
	fakeDispatcher
}

func (d *offDispatcher) Enabled() bool { return false }

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *fakeNotifier) Notify(_ context.Context, title, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	return nil
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.titles...)
}

type testEnv struct {
	store      datastore.Interface
	acquirer   *fakeAcquirer
	texts      map[uint]string
	dispatcher *fakeDispatcher
	sources    []datastore.Camera
}

// newTestEnv opens a SQLite store, registers ABC123 and adds n active cameras.
func newTestEnv(t *testing.T, n int) *testEnv {
	t.Helper()
	ctx := context.Background()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "pipeline.db")

	fixed := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	store := datastore.New(settings, datastore.WithClock(func() time.Time { return fixed }), datastore.WithLocation(time.UTC))
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	require.NoError(t, store.AddVehicle(ctx, &datastore.Vehicle{LicensePlate: "ABC123", OwnerName: "Jane Doe", Active: true}))

	env := &testEnv{
		store:      store,
		acquirer:   newFakeAcquirer(),
		texts:      map[uint]string{},
		dispatcher: &fakeDispatcher{},
	}
	for i := range n {
		cam := &datastore.Camera{Name: fmt.Sprintf("cam%d", i+1), Address: fmt.Sprintf("10.0.0.%d", i+1), Active: true}
		require.NoError(t, store.AddCamera(ctx, cam))
		env.sources = append(env.sources, *cam)
	}
	return env
}

func (e *testEnv) scheduler(t *testing.T, cfg Config, opts ...Option) *Scheduler {
	t.Helper()
	images, err := imagestore.New(conf.StorageSettings{ImageDir: t.TempDir()})
	require.NoError(t, err)
	rec := recorder.New(images, e.store)
	s := New(cfg, e.store, e.acquirer, textRecognizer{texts: e.texts}, rec, e.dispatcher, opts...)
	t.Cleanup(s.tasks.Wait)
	return s
}

func TestCycleScenarios(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, 3)
	env.texts[env.sources[0].ID] = "abc-123"
	env.texts[env.sources[1].ID] = "XY9"
	env.texts[env.sources[2].ID] = "ZED 999"

	s := env.scheduler(t, Config{SourceTimeout: 5 * time.Second})
	report := s.RunCycle(ctx)

	require.NoError(t, report.Err)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, 3, report.Sources)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, report.Pending)
	assert.Equal(t, 2, report.Events)
	assert.Equal(t, 1, report.Dispatches)

	assert.Equal(t, []string{"ABC123"}, env.dispatcher.calls(), "only the registered plate dispatches")

	matched, err := env.store.QueryEvents(ctx, datastore.EventQuery{Mode: datastore.FilterLicensePlate, Value: "ABC123"})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.True(t, matched[0].Matched)

	unmatched, err := env.store.QueryEvents(ctx, datastore.EventQuery{Mode: datastore.FilterLicensePlate, Value: "ZED999"})
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.False(t, unmatched[0].Matched)

	short, err := env.store.QueryEvents(ctx, datastore.EventQuery{Mode: datastore.FilterLicensePlate, Value: "XY9"})
	require.NoError(t, err)
	assert.Empty(t, short, "short text never reaches the store")

	byDate, err := env.store.QueryEvents(ctx, datastore.EventQuery{Mode: datastore.FilterDate, Value: "2024-06-01"})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)
}

func TestDisabledActuatorIsNotDispatched(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 1)
	env.texts[env.sources[0].ID] = "ABC123"

	images, err := imagestore.New(conf.StorageSettings{ImageDir: t.TempDir()})
	require.NoError(t, err)
	off := &offDispatcher{}
	s := New(Config{SourceTimeout: 5 * time.Second}, env.store, env.acquirer, textRecognizer{texts: env.texts},
		recorder.New(images, env.store), off)
	t.Cleanup(s.tasks.Wait)

	report := s.RunCycle(context.Background())
	require.NoError(t, report.Err)
	assert.Equal(t, 1, report.Events)
	assert.Equal(t, 0, report.Dispatches)
	assert.Empty(t, off.calls())
}

func TestFailingAndHangingSourcesDoNotBlockOthers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, 3)
	failing, hanging, healthy := env.sources[0].ID, env.sources[1].ID, env.sources[2].ID
	env.texts[healthy] = "ABC123"

	env.acquirer.set(failing, func(context.Context) error {
		return errors.Join(capture.ErrNoFrame, fmt.Errorf("connection refused"))
	})
	release := make(chan struct{})
	env.acquirer.set(hanging, func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return ctx.Err()
	})

	s := env.scheduler(t, Config{CycleTimeout: 500 * time.Millisecond, SourceTimeout: 5 * time.Second})

	start := time.Now()
	report := s.RunCycle(ctx)
	assert.Less(t, time.Since(start), 2*time.Second, "cycle must not wait for the hanging source")

	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Pending)
	assert.Equal(t, 1, report.Events)
	assert.Equal(t, []string{"ABC123"}, env.dispatcher.calls())

	// the hanging source is still in flight and must not be started twice
	second := s.RunCycle(ctx)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 2, second.Attempted)
	assert.Equal(t, 1, env.acquirer.callCount(hanging))
	assert.Equal(t, 2, env.acquirer.callCount(healthy))

	close(release)
	s.tasks.Wait()

	third := s.RunCycle(ctx)
	assert.Equal(t, 0, third.Skipped)
	assert.Equal(t, 2, env.acquirer.callCount(hanging))
}

func TestSourceTimeoutBoundsTask(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 1)
	env.acquirer.set(env.sources[0].ID, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	s := env.scheduler(t, Config{SourceTimeout: 50 * time.Millisecond})
	report := s.RunCycle(context.Background())

	assert.Equal(t, 1, report.Failed)
	health := s.Health()
	require.Len(t, health, 1)
	assert.Equal(t, 1, health[0].ConsecutiveFailures)
	assert.Contains(t, health[0].LastError, "deadline")
}

func TestWorkerLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 4)
	env.acquirer.delay = 20 * time.Millisecond

	s := env.scheduler(t, Config{Workers: 1, SourceTimeout: 5 * time.Second})
	report := s.RunCycle(context.Background())

	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, int32(1), env.acquirer.maxSeen.Load())
}

func TestHealthTransitionsNotify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, 1)
	id := env.sources[0].ID

	var down atomic.Bool
	down.Store(true)
	env.acquirer.set(id, func(context.Context) error {
		if down.Load() {
			return errors.Join(capture.ErrNoFrame, fmt.Errorf("401 Unauthorized"))
		}
		return nil
	})

	notifier := &fakeNotifier{}
	s := env.scheduler(t, Config{UnhealthyThreshold: 2, SourceTimeout: time.Second}, WithNotifier(notifier))

	s.RunCycle(ctx)
	assert.True(t, s.Health()[0].Healthy, "one failure is below the threshold")
	assert.Empty(t, notifier.sent())

	s.RunCycle(ctx)
	s.RunCycle(ctx)
	health := s.Health()[0]
	assert.False(t, health.Healthy)
	assert.Equal(t, 3, health.ConsecutiveFailures)
	assert.Contains(t, health.LastError, "401")
	assert.Equal(t, []string{"Source down"}, notifier.sent(), "notified once per transition")

	down.Store(false)
	s.RunCycle(ctx)
	health = s.Health()[0]
	assert.True(t, health.Healthy)
	assert.Zero(t, health.ConsecutiveFailures)
	assert.Empty(t, health.LastError)
	assert.Equal(t, []string{"Source down", "Source recovered"}, notifier.sent())
}

func TestRemovedSourceLeavesHealth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, 2)
	s := env.scheduler(t, Config{SourceTimeout: time.Second})

	s.RunCycle(ctx)
	require.Len(t, s.Health(), 2)

	require.NoError(t, env.store.SetCameraActive(ctx, env.sources[0].ID, false))
	report := s.RunCycle(ctx)
	assert.Equal(t, 1, report.Sources)
	health := s.Health()
	require.Len(t, health, 1)
	assert.Equal(t, env.sources[1].ID, health[0].SourceID)
}

func TestSourcePanicIsContained(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 2)
	env.texts[env.sources[1].ID] = "ZED999"
	env.acquirer.set(env.sources[0].ID, func(context.Context) error {
		panic("decoder exploded")
	})

	s := env.scheduler(t, Config{SourceTimeout: time.Second})
	report := s.RunCycle(context.Background())

	require.NoError(t, report.Err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Events)
	assert.Contains(t, s.Health()[0].LastError, "panicked")
}

// failingStore cannot list its sources
type failingStore struct {
	calls atomic.Int32
}

func (f *failingStore) ListActiveSources(context.Context) ([]datastore.Camera, error) {
	f.calls.Add(1)
	return nil, fmt.Errorf("database is locked")
}

// panickingStore blows up inside the cycle body
type panickingStore struct{}

func (panickingStore) ListActiveSources(context.Context) ([]datastore.Camera, error) {
	panic("snapshot corrupted")
}

func TestCycleFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		store Store
		want  string
	}{
		{"snapshot error", &failingStore{}, "database is locked"},
		{"panic", panickingStore{}, "snapshot corrupted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			registry := prometheus.NewRegistry()
			m, err := metrics.NewPipelineMetrics(registry)
			require.NoError(t, err)

			s := New(Config{}, tt.store, newFakeAcquirer(), textRecognizer{}, nil, &fakeDispatcher{}, WithMetrics(m))
			report := s.RunCycle(context.Background())

			require.Error(t, report.Err)
			assert.True(t, errors.IsCategory(report.Err, errors.CategoryCycle))
			assert.Contains(t, report.Err.Error(), tt.want)

			expected := `
# HELP platewatch_cycles_total Polling cycles by status
# TYPE platewatch_cycles_total counter
platewatch_cycles_total{status="error"} 1
`
			assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "platewatch_cycles_total"))
		})
	}
}

func TestRunBacksOffAfterFailureAndStops(t *testing.T) {
	t.Parallel()

	store := &failingStore{}
	reports := make(chan CycleReport, 16)
	s := New(Config{Interval: time.Millisecond, Backoff: time.Hour}, store, newFakeAcquirer(), textRecognizer{}, nil, &fakeDispatcher{},
		WithReportHook(func(r CycleReport) { reports <- r }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	first := <-reports
	require.Error(t, first.Err)

	// backoff is an hour, so no second cycle may start
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), store.calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunReapsTasksOnShutdown(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 1)
	started := make(chan struct{})
	env.acquirer.set(env.sources[0].ID, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	s := env.scheduler(t, Config{Interval: time.Hour, CycleTimeout: 10 * time.Millisecond, SourceTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-started
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not reap the running task")
	}
	assert.Empty(t, s.Health(), "shutdown is not a source failure")
}
