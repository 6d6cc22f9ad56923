// Package dispatcher notifies the external actuator (the gate relay) about a
// registered vehicle. Both the scheduler and the manual trigger path use it.
package dispatcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/httpclient"
	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/observability/metrics"
)

// DefaultTimeout bounds one actuator request when none is configured
const DefaultTimeout = 2 * time.Second

// maxDrainBytes is read from a response body so the connection can be reused
const maxDrainBytes = 4096

// Origin labels who asked for a dispatch
type Origin string

const (
	OriginPipeline Origin = "pipeline"
	OriginManual   Origin = "manual"
)

type originKey struct{}

// WithOrigin tags ctx so dispatch metrics and logs show who triggered it.
func WithOrigin(ctx context.Context, origin Origin) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

func originFrom(ctx context.Context) Origin {
	if o, ok := ctx.Value(originKey{}).(Origin); ok {
		return o
	}
	return OriginPipeline
}

// request is the JSON body the actuator expects
type request struct {
	LicensePlate string `json:"license_plate"`
	Command      string `json:"command"`
}

// Dispatcher posts trigger commands to the actuator endpoint.
type Dispatcher struct {
	enabled bool
	url     string
	timeout time.Duration
	client  *httpclient.Client
	metrics *metrics.PipelineMetrics
	log     logger.Logger
}

// New creates a Dispatcher. client and m may be nil.
func New(settings conf.ActuatorSettings, client *httpclient.Client, m *metrics.PipelineMetrics) *Dispatcher {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = httpclient.New(&httpclient.Config{DefaultTimeout: timeout})
	}
	return &Dispatcher{
		enabled: settings.Enabled,
		url:     settings.URL,
		timeout: timeout,
		client:  client,
		metrics: m,
		log:     logger.Global().Module("dispatcher"),
	}
}

// Enabled reports whether the actuator is configured to be called.
func (d *Dispatcher) Enabled() bool {
	return d.enabled
}

// Trigger sends {"license_plate": plate, "command": "trigger"} and reports
// whether the actuator answered 200 within the timeout. Failures are logged
// and returned as false; Trigger never retries.
func (d *Dispatcher) Trigger(ctx context.Context, plate string) bool {
	origin := originFrom(ctx)
	log := d.log.With(logger.String("plate", plate), logger.String("origin", string(origin)))

	if !d.enabled {
		log.Debug("actuator disabled, trigger skipped")
		return false
	}

	ok := d.post(ctx, plate, log)
	if d.metrics != nil {
		d.metrics.RecordDispatch(string(origin), ok)
	}
	return ok
}

func (d *Dispatcher) post(ctx context.Context, plate string, log logger.Logger) bool {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	resp, err := d.client.PostJSON(ctx, d.url, request{LicensePlate: plate, Command: "trigger"})
	elapsed := time.Since(start)
	if err != nil {
		err = errors.New(err).
			Component("dispatcher").
			Category(errors.CategoryActuator).
			Context("url", d.url).
			Timing("trigger", elapsed).
			Build()
		log.Warn("actuator unreachable", logger.Error(err), logger.Duration("elapsed", elapsed))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode != http.StatusOK {
		log.Warn("actuator rejected trigger",
			logger.Int("status", resp.StatusCode),
			logger.Duration("elapsed", elapsed))
		return false
	}

	log.Info("actuator triggered", logger.Duration("elapsed", elapsed))
	return true
}
