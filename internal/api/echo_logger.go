package api

import (
	"fmt"
	"io"

	echolog "github.com/labstack/gommon/log"

	"github.com/platewatch/platewatch/internal/logger"
)

// echoLogger routes echo's own log output into the module logger.
type echoLogger struct {
	log   logger.Logger
	level echolog.Lvl
}

func newEchoLogger(log logger.Logger) *echoLogger {
	return &echoLogger{log: log, level: echolog.INFO}
}

func (e *echoLogger) Output() io.Writer      { return io.Discard }
func (e *echoLogger) SetOutput(io.Writer)    {}
func (e *echoLogger) Prefix() string         { return "" }
func (e *echoLogger) SetPrefix(string)       {}
func (e *echoLogger) Level() echolog.Lvl     { return e.level }
func (e *echoLogger) SetLevel(l echolog.Lvl) { e.level = l }
func (e *echoLogger) SetHeader(string)       {}

func (e *echoLogger) emit(l echolog.Lvl, msg string) {
	if l < e.level {
		return
	}
	switch l {
	case echolog.DEBUG:
		e.log.Debug(msg)
	case echolog.WARN:
		e.log.Warn(msg)
	case echolog.ERROR:
		e.log.Error(msg)
	default:
		e.log.Info(msg)
	}
}

func (e *echoLogger) Print(i ...any)                 { e.emit(echolog.INFO, fmt.Sprint(i...)) }
func (e *echoLogger) Printf(format string, a ...any) { e.emit(echolog.INFO, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Printj(j echolog.JSON)          { e.emit(echolog.INFO, fmt.Sprint(j)) }
func (e *echoLogger) Debug(i ...any)                 { e.emit(echolog.DEBUG, fmt.Sprint(i...)) }
func (e *echoLogger) Debugf(format string, a ...any) { e.emit(echolog.DEBUG, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Debugj(j echolog.JSON)          { e.emit(echolog.DEBUG, fmt.Sprint(j)) }
func (e *echoLogger) Info(i ...any)                  { e.emit(echolog.INFO, fmt.Sprint(i...)) }
func (e *echoLogger) Infof(format string, a ...any)  { e.emit(echolog.INFO, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Infoj(j echolog.JSON)           { e.emit(echolog.INFO, fmt.Sprint(j)) }
func (e *echoLogger) Warn(i ...any)                  { e.emit(echolog.WARN, fmt.Sprint(i...)) }
func (e *echoLogger) Warnf(format string, a ...any)  { e.emit(echolog.WARN, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Warnj(j echolog.JSON)           { e.emit(echolog.WARN, fmt.Sprint(j)) }
func (e *echoLogger) Error(i ...any)                 { e.emit(echolog.ERROR, fmt.Sprint(i...)) }
func (e *echoLogger) Errorf(format string, a ...any) { e.emit(echolog.ERROR, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Errorj(j echolog.JSON)          { e.emit(echolog.ERROR, fmt.Sprint(j)) }

// Fatal and Panic variants never exit the process, they log and panic so
// echo's Recover middleware can contain them.
func (e *echoLogger) Fatal(i ...any)                 { e.Panic(i...) }
func (e *echoLogger) Fatalf(format string, a ...any) { e.Panicf(format, a...) }
func (e *echoLogger) Fatalj(j echolog.JSON)          { e.Panicj(j) }

func (e *echoLogger) Panic(i ...any) {
	msg := fmt.Sprint(i...)
	e.log.Error(msg)
	panic(msg)
}

func (e *echoLogger) Panicf(format string, a ...any) {
	e.Panic(fmt.Sprintf(format, a...))
}

func (e *echoLogger) Panicj(j echolog.JSON) {
	e.Panic(fmt.Sprint(j))
}
