// Package conf provides configuration management for PlateWatch.
package conf

import "github.com/platewatch/platewatch/internal/logger"

// GetLogger returns the config module logger, resolved from the global
// logger on each call so it follows SetGlobal.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
