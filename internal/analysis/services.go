package analysis

import (
	"context"
	"time"

	"github.com/platewatch/platewatch/internal/api"
	"github.com/platewatch/platewatch/internal/capture"
	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/dispatcher"
	"github.com/platewatch/platewatch/internal/httpclient"
	"github.com/platewatch/platewatch/internal/imagestore"
	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/mqtt"
	"github.com/platewatch/platewatch/internal/notification"
	"github.com/platewatch/platewatch/internal/observability"
	"github.com/platewatch/platewatch/internal/pipeline"
	"github.com/platewatch/platewatch/internal/recognizer"
	"github.com/platewatch/platewatch/internal/recorder"
	"github.com/platewatch/platewatch/internal/trigger"
)

// mqttStartupWait bounds how long startup waits for the first broker connection
const mqttStartupWait = 5 * time.Second

// services holds every long-lived component of a realtime run.
type services struct {
	metrics    *observability.Metrics
	store      datastore.Interface
	mqtt       mqtt.Client
	httpClient *httpclient.Client
	recorder   *recorder.Recorder
	scheduler  *pipeline.Scheduler
	server     *api.Server
}

// newServices assembles the pipeline. On error, everything opened so far is closed.
func newServices(ctx context.Context, settings *conf.Settings) (svc *services, err error) {
	svc = &services{}
	defer func() {
		if err != nil {
			svc.close()
			svc = nil
		}
	}()

	if svc.metrics, err = observability.NewMetrics(); err != nil {
		return svc, err
	}

	if svc.store, err = datastore.Connect(settings, datastore.WithMetrics(svc.metrics.Datastore)); err != nil {
		return svc, err
	}

	acquirer, err := capture.NewFFmpegAcquirer(settings.Capture)
	if err != nil {
		return svc, err
	}

	extractor, err := recognizer.NewExtractor(settings.OCR)
	if err != nil {
		return svc, err
	}
	rec := recognizer.New(extractor, settings.Pipeline.MinPlateLength, settings.OCR.Timeout)

	images, err := imagestore.New(settings.Storage)
	if err != nil {
		return svc, err
	}

	recorderOpts := []recorder.Option{
		recorder.WithSuppressionWindow(settings.Pipeline.SuppressionWindow),
		recorder.WithMetrics(svc.metrics.Pipeline),
	}
	if settings.MQTT.Enabled {
		svc.mqtt = mqtt.NewClient(settings, svc.metrics.MQTT)
		// a failed first connect keeps retrying in the background
		connectCtx, cancel := context.WithTimeout(ctx, mqttStartupWait)
		connErr := svc.mqtt.Connect(connectCtx)
		cancel()
		if connErr != nil {
			GetLogger().Warn("MQTT connect failed, events will not be published until the broker is reachable",
				logger.Error(connErr))
		}
		recorderOpts = append(recorderOpts, recorder.WithPublisher(svc.mqtt, settings.MQTT.Topic))
	}
	svc.recorder = recorder.New(images, svc.store, recorderOpts...)

	svc.httpClient = httpclient.New(&httpclient.Config{DefaultTimeout: settings.Actuator.Timeout})
	disp := dispatcher.New(settings.Actuator, svc.httpClient, svc.metrics.Pipeline)

	schedOpts := []pipeline.Option{pipeline.WithMetrics(svc.metrics.Pipeline)}
	notifier, err := notification.NewShoutrrrNotifier(settings.Notification, settings.Main.Name)
	if err != nil {
		return svc, err
	}
	if notifier.Enabled() {
		schedOpts = append(schedOpts, pipeline.WithNotifier(notifier))
	}
	svc.scheduler = pipeline.New(pipeline.ConfigFromSettings(settings.Pipeline),
		svc.store, acquirer, rec, svc.recorder, disp, schedOpts...)

	if settings.WebServer.Enabled {
		svc.server, err = api.New(settings, svc.store, trigger.New(svc.store, disp),
			api.WithHealthReporter(svc.scheduler),
			api.WithMetricsHandler(svc.metrics.Handler()),
			api.WithVersion(settings.Version))
		if err != nil {
			return svc, err
		}
	}

	return svc, nil
}

// close releases components in reverse order of creation. Safe on a partial services.
func (svc *services) close() {
	log := GetLogger()

	if svc.server != nil {
		if err := svc.server.Shutdown(); err != nil {
			log.Warn("HTTP server shutdown failed", logger.Error(err))
		}
	}
	if svc.recorder != nil {
		svc.recorder.Wait()
	}
	if svc.httpClient != nil {
		svc.httpClient.Close()
	}
	if svc.mqtt != nil {
		svc.mqtt.Disconnect()
	}
	if svc.store != nil {
		if err := svc.store.Close(); err != nil {
			log.Error("failed to close database", logger.Error(err))
		}
	}
}
