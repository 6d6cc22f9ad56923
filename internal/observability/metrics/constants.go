// Package metrics defines the Prometheus collectors exported by PlateWatch.
package metrics

import "time"

// Histogram bucket parameters
const (
	BucketStart1ms  = 0.001
	BucketStart10ms = 0.01
	BucketFactor2   = 2
	BucketCount12   = 12
	BucketCount15   = 15
)

// Status label values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Source attempt outcomes
const (
	OutcomeEvent       = "event"
	OutcomeNoFrame     = "no_frame"
	OutcomeNoCandidate = "no_candidate"
	OutcomeSuppressed  = "suppressed"
	OutcomeError       = "error"
	OutcomeSkipped     = "skipped"
)

// Pipeline stage names
const (
	StageAcquire   = "acquire"
	StageRecognize = "recognize"
	StageRecord    = "record"
	StageDispatch  = "dispatch"
)

// ShutdownTimeout bounds the telemetry server shutdown
const ShutdownTimeout = 5 * time.Second
