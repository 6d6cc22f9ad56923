// Package telemetry wires opt-in error reporting to Sentry.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
)

// FlushTimeout is how long shutdown waits for queued events
const FlushTimeout = 2 * time.Second

// GetLogger returns the telemetry module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// InitSentry initializes the Sentry SDK and installs it as the enhanced error
// reporter. Nothing happens unless Sentry is enabled in settings.
func InitSentry(settings *conf.Settings, release string) error {
	return initSentry(settings, release, nil)
}

func initSentry(settings *conf.Settings, release string, transport sentry.Transport) error {
	if !settings.Sentry.Enabled {
		GetLogger().Debug("sentry telemetry disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		Environment:      settings.Sentry.Environment,
		Release:          "platewatch@" + release,
		ServerName:       settings.Main.Name,
		SampleRate:       1.0,
		AttachStacktrace: true,
		Transport:        transport,
		BeforeSend:       scrubEvent,
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	GetLogger().Info("sentry telemetry enabled",
		logger.String("environment", settings.Sentry.Environment),
		logger.String("release", release))
	return nil
}

// scrubEvent removes URL credentials from anything the SDK captured on its own,
// panics included
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.Message = errors.ScrubCredentials(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = errors.ScrubCredentials(event.Exception[i].Value)
	}
	return event
}

// Flush waits up to timeout for queued events.
func Flush(timeout time.Duration) {
	if sentry.CurrentHub().Client() == nil {
		return
	}
	if !sentry.Flush(timeout) {
		GetLogger().Warn("sentry flush timed out", logger.Duration("timeout", timeout))
	}
}
