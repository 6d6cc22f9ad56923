// Package recorder turns a plate candidate into a persisted recognition
// event: it stores the frame as an image artifact, inserts the event row and
// optionally publishes the event to MQTT.
package recorder

import (
	"context"
	"encoding/json"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/platewatch/platewatch/internal/capture"
	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/observability/metrics"
	"github.com/platewatch/platewatch/internal/recognizer"
)

// publishTimeout bounds one MQTT publish, it runs detached from the source task
const publishTimeout = 5 * time.Second

// ImageSaver writes a frame artifact and returns its path
type ImageSaver interface {
	Save(ctx context.Context, plate string, img image.Image) (string, error)
}

// EventStore inserts one recognition event and reports the matched flag on the row
type EventStore interface {
	InsertEvent(ctx context.Context, plate, imagePath string, sourceID uint) (datastore.RecognitionEvent, error)
}

// Publisher sends a payload to a topic, mqtt.Client satisfies it
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Result describes what Record did with a candidate
type Result struct {
	Event      datastore.RecognitionEvent
	Suppressed bool // true when the candidate fell inside the suppression window
}

// Matched reports whether the recorded plate belongs to an active vehicle.
func (r Result) Matched() bool {
	return !r.Suppressed && r.Event.Matched
}

// EventMessage is the MQTT payload for a recorded event
type EventMessage struct {
	ID           string    `json:"id"`
	LicensePlate string    `json:"license_plate"`
	SourceID     uint      `json:"source_id"`
	SourceName   string    `json:"source_name"`
	Matched      bool      `json:"matched"`
	ImagePath    string    `json:"image_path"`
	CapturedAt   time.Time `json:"captured_at"`
}

// Recorder persists recognition events.
type Recorder struct {
	images  ImageSaver
	events  EventStore
	metrics *metrics.PipelineMetrics

	window     time.Duration
	suppressed *cache.Cache

	publisher Publisher
	topic     string
	publishWg sync.WaitGroup

	log logger.Logger
}

// Option configures a Recorder
type Option func(*Recorder)

// WithSuppressionWindow drops repeats of the same plate on the same source
// within window. Zero keeps every event.
func WithSuppressionWindow(window time.Duration) Option {
	return func(r *Recorder) {
		r.window = window
	}
}

// WithPublisher publishes every recorded event to topic.
func WithPublisher(p Publisher, topic string) Option {
	return func(r *Recorder) {
		r.publisher = p
		r.topic = topic
	}
}

// WithMetrics counts recorded events.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// New creates a Recorder writing artifacts to images and rows to events.
func New(images ImageSaver, events EventStore, opts ...Option) *Recorder {
	r := &Recorder{
		images: images,
		events: events,
		log:    logger.Global().Module("recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.window > 0 {
		r.suppressed = cache.New(r.window, 2*r.window)
	}
	return r
}

// Record stores frame as the artifact for candidate and inserts the event
// row. The returned event carries the matched flag computed inside the insert
// transaction, callers must use it to decide the dispatch.
func (r *Recorder) Record(ctx context.Context, candidate recognizer.Candidate, frame *capture.Frame, source datastore.Camera) (Result, error) {
	if frame == nil || frame.Image == nil {
		return Result{}, errors.Newf("no frame to record for plate %s", candidate).
			Component("recorder").
			Category(errors.CategoryValidation).
			Build()
	}

	plate := string(candidate)
	key := suppressionKey(plate, source.ID)
	if r.suppressed != nil {
		// Add fails when the key is live, which makes check-and-mark atomic
		if err := r.suppressed.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
			r.log.Debug("candidate suppressed",
				logger.String("plate", plate),
				logger.Int("source_id", int(source.ID)))
			return Result{Suppressed: true}, nil
		}
	}

	event, err := r.persist(ctx, plate, frame, source)
	if err != nil {
		if r.suppressed != nil {
			r.suppressed.Delete(key)
		}
		return Result{}, err
	}

	if r.metrics != nil {
		r.metrics.RecordEvent(event.Matched)
	}
	r.log.Info("recognition event recorded",
		logger.Uint64("event_id", uint64(event.ID)),
		logger.String("plate", plate),
		logger.Int("source_id", int(source.ID)),
		logger.Bool("matched", event.Matched),
		logger.String("image_path", event.ImagePath))

	r.publish(event, source)
	return Result{Event: event}, nil
}

func (r *Recorder) persist(ctx context.Context, plate string, frame *capture.Frame, source datastore.Camera) (datastore.RecognitionEvent, error) {
	path, err := r.images.Save(ctx, plate, frame.Image)
	if err != nil {
		return datastore.RecognitionEvent{}, err
	}

	event, err := r.events.InsertEvent(ctx, plate, path, source.ID)
	if err != nil {
		// the artifact stays on disk; an orphaned image is preferred over a lost one
		r.log.Warn("event insert failed after image was stored",
			logger.String("plate", plate),
			logger.String("image_path", path),
			logger.Error(err))
		return datastore.RecognitionEvent{}, err
	}
	return event, nil
}

// publish sends the event to MQTT in the background. Failures are logged only.
func (r *Recorder) publish(event datastore.RecognitionEvent, source datastore.Camera) {
	if r.publisher == nil || r.topic == "" {
		return
	}

	payload, err := json.Marshal(EventMessage{
		ID:           uuid.NewString(),
		LicensePlate: event.LicensePlate,
		SourceID:     source.ID,
		SourceName:   source.Name,
		Matched:      event.Matched,
		ImagePath:    event.ImagePath,
		CapturedAt:   event.CapturedAt,
	})
	if err != nil {
		r.log.Error("failed to encode event message", logger.Error(err))
		return
	}

	r.publishWg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := r.publisher.Publish(ctx, r.topic, payload); err != nil {
			r.log.Warn("failed to publish recognition event",
				logger.String("topic", r.topic),
				logger.Uint64("event_id", uint64(event.ID)),
				logger.Error(err))
		}
	})
}

// Wait blocks until background publishes have finished.
func (r *Recorder) Wait() {
	r.publishWg.Wait()
}

func suppressionKey(plate string, sourceID uint) string {
	return plate + "|" + strconv.FormatUint(uint64(sourceID), 10)
}
