package errors

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives enhanced errors as they are built
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu         sync.RWMutex
	telemetryReporter  TelemetryReporter
	hasActiveReporting atomic.Bool
)

// SetTelemetryReporter installs the global reporter. nil disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	telemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	reporter := telemetryReporter
	reporterMu.RUnlock()

	if reporter == nil || !reporter.IsEnabled() || !shouldReport(ee) {
		return
	}
	reporter.ReportError(ee)
}

// shouldReport filters out the high-volume, expected failure classes.
// A camera going offline is normal operation, not a bug.
func shouldReport(ee *EnhancedError) bool {
	if ee.Priority == PriorityHigh || ee.Priority == PriorityCritical {
		return true
	}
	switch ee.Category {
	case CategoryRTSP, CategoryActuator, CategoryNotFound, CategoryValidation, CategoryCancellation, CategoryTimeout:
		return false
	default:
		return true
	}
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError sends the error to Sentry with credentials scrubbed from the message
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := ScrubCredentials(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = ScrubCredentials(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		level := sentryLevel(ee)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{ee.Component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{
			Type:  fmt.Sprintf("%s %s", ee.Component, ee.Category),
			Value: message,
		}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func sentryLevel(ee *EnhancedError) sentry.Level {
	switch {
	case ee.Priority == PriorityCritical:
		return sentry.LevelFatal
	case ee.Category == CategoryDatabase, ee.Category == CategoryCycle:
		return sentry.LevelError
	default:
		return sentry.LevelWarning
	}
}

var urlCredentials = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/@\s:]+(:[^/@\s]*)?@`)

// ScrubCredentials removes user:password@ from any URL in s.
// Camera URIs carry credentials and end up in error messages.
func ScrubCredentials(s string) string {
	return urlCredentials.ReplaceAllString(s, "${1}[REDACTED]@")
}
