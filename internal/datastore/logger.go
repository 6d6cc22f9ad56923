package datastore

import (
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/platewatch/platewatch/internal/logger"
)

// slowQueryThreshold marks statements logged as slow
const slowQueryThreshold = 200 * time.Millisecond

// GetLogger returns the datastore module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

func (ds *DataStore) getLogger() logger.Logger {
	return GetLogger()
}

// newGormLogger routes GORM output through the datastore logger
func newGormLogger() gormlogger.Interface {
	return logger.NewGormLoggerAdapter(GetLogger().Module("gorm"), slowQueryThreshold)
}
