package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/platewatch/platewatch/internal/capture"
	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

type mockImages struct{ mock.Mock }

func (m *mockImages) Save(ctx context.Context, plate string, img image.Image) (string, error) {
	args := m.Called(ctx, plate, img)
	return args.String(0), args.Error(1)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) InsertEvent(ctx context.Context, plate, imagePath string, sourceID uint) (datastore.RecognitionEvent, error) {
	args := m.Called(ctx, plate, imagePath, sourceID)
	return args.Get(0).(datastore.RecognitionEvent), args.Error(1)
}

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	topics   []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return p.err
}

var gate = datastore.Camera{ID: 3, Name: "gate"}

func testFrame() *capture.Frame {
	return &capture.Frame{Image: image.NewGray(image.Rect(0, 0, 2, 2)), SourceID: gate.ID, GrabbedAt: time.Now()}
}

func storedEvent(plate string, matched bool) datastore.RecognitionEvent {
	return datastore.RecognitionEvent{
		ID:           42,
		LicensePlate: plate,
		ImagePath:    "static/photos/" + plate + ".jpg",
		CapturedAt:   time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		CaptureDate:  "2024-06-01",
		SourceID:     gate.ID,
		Matched:      matched,
	}
}

func TestRecordRegisteredPlate(t *testing.T) {
	images := &mockImages{}
	events := &mockEvents{}
	images.On("Save", mock.Anything, "ABC123", mock.Anything).Return("static/photos/ABC123.jpg", nil).Once()
	events.On("InsertEvent", mock.Anything, "ABC123", "static/photos/ABC123.jpg", gate.ID).
		Return(storedEvent("ABC123", true), nil).Once()

	r := New(images, events)
	res, err := r.Record(context.Background(), "ABC123", testFrame(), gate)
	require.NoError(t, err)
	assert.True(t, res.Matched())
	assert.False(t, res.Suppressed)
	assert.Equal(t, uint(42), res.Event.ID)

	images.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestRecordImageFailureSkipsInsert(t *testing.T) {
	images := &mockImages{}
	events := &mockEvents{}
	diskErr := errors.Newf("disk full").Category(errors.CategoryDiskUsage).Build()
	images.On("Save", mock.Anything, "ABC123", mock.Anything).Return("", diskErr)

	r := New(images, events)
	_, err := r.Record(context.Background(), "ABC123", testFrame(), gate)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDiskUsage))
	events.AssertNotCalled(t, "InsertEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordNilFrame(t *testing.T) {
	r := New(&mockImages{}, &mockEvents{})
	_, err := r.Record(context.Background(), "ABC123", nil, gate)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestSuppressionWindow(t *testing.T) {
	images := &mockImages{}
	events := &mockEvents{}
	images.On("Save", mock.Anything, mock.Anything, mock.Anything).Return("x.jpg", nil)
	events.On("InsertEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storedEvent("ABC123", true), nil)

	r := New(images, events, WithSuppressionWindow(time.Minute))
	ctx := context.Background()

	first, err := r.Record(ctx, "ABC123", testFrame(), gate)
	require.NoError(t, err)
	assert.False(t, first.Suppressed)

	second, err := r.Record(ctx, "ABC123", testFrame(), gate)
	require.NoError(t, err)
	assert.True(t, second.Suppressed)
	assert.False(t, second.Matched(), "suppressed results never dispatch")

	other := datastore.Camera{ID: 4, Name: "garage"}
	third, err := r.Record(ctx, "ABC123", testFrame(), other)
	require.NoError(t, err)
	assert.False(t, third.Suppressed, "window is per source")

	events.AssertNumberOfCalls(t, "InsertEvent", 2)
}

func TestSuppressionReleasedOnFailure(t *testing.T) {
	images := &mockImages{}
	events := &mockEvents{}
	images.On("Save", mock.Anything, mock.Anything, mock.Anything).Return("x.jpg", nil)
	events.On("InsertEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(datastore.RecognitionEvent{}, fmt.Errorf("database is locked")).Once()
	events.On("InsertEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storedEvent("ABC123", false), nil).Once()

	r := New(images, events, WithSuppressionWindow(time.Minute))
	ctx := context.Background()

	_, err := r.Record(ctx, "ABC123", testFrame(), gate)
	require.Error(t, err)

	res, err := r.Record(ctx, "ABC123", testFrame(), gate)
	require.NoError(t, err)
	assert.False(t, res.Suppressed)
}

func TestNoSuppressionByDefault(t *testing.T) {
	images := &mockImages{}
	events := &mockEvents{}
	images.On("Save", mock.Anything, mock.Anything, mock.Anything).Return("x.jpg", nil)
	events.On("InsertEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storedEvent("ABC123", false), nil)

	r := New(images, events)
	for range 3 {
		res, err := r.Record(context.Background(), "ABC123", testFrame(), gate)
		require.NoError(t, err)
		assert.False(t, res.Suppressed)
	}
	events.AssertNumberOfCalls(t, "InsertEvent", 3)
}

func TestRecordPublishesEvent(t *testing.T) {
	images := &mockImages{}
	events := &mockEvents{}
	images.On("Save", mock.Anything, mock.Anything, mock.Anything).Return("static/photos/ABC123.jpg", nil)
	events.On("InsertEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storedEvent("ABC123", true), nil)

	pub := &fakePublisher{}
	r := New(images, events, WithPublisher(pub, "platewatch/events"))

	_, err := r.Record(context.Background(), "ABC123", testFrame(), gate)
	require.NoError(t, err)
	r.Wait()

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "platewatch/events", pub.topics[0])

	var msg EventMessage
	require.NoError(t, json.Unmarshal(pub.payloads[0], &msg))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "ABC123", msg.LicensePlate)
	assert.Equal(t, "gate", msg.SourceName)
	assert.Equal(t, gate.ID, msg.SourceID)
	assert.True(t, msg.Matched)
	assert.Equal(t, "static/photos/ABC123.jpg", msg.ImagePath)
}

func TestPublishFailureDoesNotFailRecord(t *testing.T) {
	images := &mockImages{}
	events := &mockEvents{}
	images.On("Save", mock.Anything, mock.Anything, mock.Anything).Return("x.jpg", nil)
	events.On("InsertEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storedEvent("ABC123", false), nil)

	r := New(images, events, WithPublisher(&fakePublisher{err: fmt.Errorf("not connected")}, "t"))
	_, err := r.Record(context.Background(), "ABC123", testFrame(), gate)
	require.NoError(t, err)
	r.Wait()
}
