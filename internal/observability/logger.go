// Package observability exposes Prometheus metrics for PlateWatch.
package observability

import "github.com/platewatch/platewatch/internal/logger"

func getLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
