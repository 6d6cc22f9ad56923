// Package capture grabs single frames from RTSP cameras.
//
// Every Acquire call starts a fresh ffmpeg process that reads exactly one
// frame and exits; no connection is kept between calls.
package capture

import (
	"image"
	"time"

	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
)

// ErrNoFrame is the soft miss: the stream could not be opened or yielded no
// decodable frame. Errors returned by Acquire match it with errors.Is unless
// the caller's context was cancelled.
var ErrNoFrame = errors.NewStd("no frame available")

// Frame is one decoded image. It lives for a single pipeline cycle.
type Frame struct {
	Image     image.Image
	SourceID  uint
	GrabbedAt time.Time
}

// GetLogger returns the capture module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("capture")
}
