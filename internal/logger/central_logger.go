package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	// LoadLocation must work on images without zoneinfo
	_ "time/tzdata"
)

// levelTrace sits below slog.LevelDebug
const levelTrace = slog.Level(-8)

const (
	logFileMode = 0o600
	logDirMode  = 0o700
)

var levels = map[string]slog.Level{
	"trace": levelTrace,
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// parseLogLevel maps a config level name to slog, unknown names mean info.
func parseLogLevel(name string) slog.Level {
	if lvl, ok := levels[name]; ok {
		return lvl
	}
	return slog.LevelInfo
}

var (
	global   *CentralLogger
	globalMu sync.Mutex
)

// SetGlobal installs cl as the logger returned by Global.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = cl
}

// Global returns the installed CentralLogger. Before SetGlobal it is a
// console logger at info level, so packages can log from init and tests.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = &CentralLogger{
			config:  &LoggingConfig{DefaultLevel: DefaultLogLevel},
			tz:      time.Local,
			base:    newTextHandler(os.Stdout, slog.LevelInfo, time.Local),
			modules: map[string]*os.File{},
		}
	}
	return global
}

// CentralLogger owns the log outputs and hands out module loggers.
// Console output is text, files get JSON.
type CentralLogger struct {
	mu      sync.RWMutex
	config  *LoggingConfig
	tz      *time.Location
	base    slog.Handler
	main    *os.File
	modules map[string]*os.File
}

// NewCentralLogger opens the outputs described by cfg.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz := time.Local
	if cfg.Timezone != "" && cfg.Timezone != "Local" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", cfg.Timezone, err)
		}
		tz = loc
	}

	cl := &CentralLogger{config: cfg, tz: tz, modules: map[string]*os.File{}}

	var outputs []slog.Handler
	if cfg.Console.Enabled {
		outputs = append(outputs, newTextHandler(os.Stdout, parseLogLevel(cfg.Console.Level), tz))
	}
	if cfg.FileOutput != nil && cfg.FileOutput.Enabled {
		f, err := openLogFile(cfg.FileOutput.Path)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cl.main = f
		outputs = append(outputs, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: parseLogLevel(cfg.FileOutput.Level)}))
	}
	switch len(outputs) {
	case 0:
		cl.base = newTextHandler(os.Stdout, parseLogLevel(cfg.DefaultLevel), tz)
	case 1:
		cl.base = outputs[0]
	default:
		cl.base = newMultiWriterHandler(outputs...)
	}

	for name, out := range cfg.ModuleOutputs {
		if !out.Enabled || out.FilePath == "" {
			continue
		}
		f, err := openLogFile(out.FilePath)
		if err != nil {
			_ = cl.Close()
			return nil, fmt.Errorf("opening log file for module %s: %w", name, err)
		}
		cl.modules[name] = f
	}

	return cl, nil
}

// Module returns a logger tagged with name. A module with its own file
// output writes there instead of the shared outputs.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level := parseLogLevel(cl.config.DefaultLevel)
	if lvl, ok := cl.config.ModuleLevels[name]; ok {
		level = parseLogLevel(lvl)
	}

	handler := cl.base
	if f, ok := cl.modules[name]; ok {
		out := cl.config.ModuleOutputs[name]
		if out.Level != "" {
			level = parseLogLevel(out.Level)
		}
		handler = slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	}

	return &moduleLogger{module: name, logger: slog.New(handler), level: level}
}

// Close closes every log file.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()

	var errs []error
	if cl.main != nil {
		errs = append(errs, cl.main.Close())
		cl.main = nil
	}
	for name, f := range cl.modules {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file for module %s: %w", name, err))
		}
	}
	cl.modules = nil
	return errors.Join(errs...)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), logDirMode); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode)
}

// NewSlogLogger returns a standalone text logger, mainly for tests.
// A nil writer discards output, a nil timezone means UTC.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = io.Discard
	}
	if tz == nil {
		tz = time.UTC
	}
	lvl := parseLogLevel(string(level))
	return &moduleLogger{logger: slog.New(newTextHandler(w, lvl, tz)), level: lvl}
}

type moduleLogger struct {
	module string
	logger *slog.Logger
	level  slog.Level
	fields []Field
}

func (m *moduleLogger) Module(name string) Logger {
	if m.module != "" {
		name = m.module + "." + name
	}
	return &moduleLogger{module: name, logger: m.logger, level: m.level, fields: slices.Clone(m.fields)}
}

func (m *moduleLogger) With(fields ...Field) Logger {
	return &moduleLogger{module: m.module, logger: m.logger, level: m.level, fields: slices.Concat(m.fields, fields)}
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.log(levelTrace, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.log(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.log(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.log(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.log(slog.LevelError, msg, fields) }

func (m *moduleLogger) log(level slog.Level, msg string, fields []Field) {
	if m == nil || level < m.level {
		return
	}
	attrs := make([]slog.Attr, 0, 1+len(m.fields)+len(fields))
	if m.module != "" {
		attrs = append(attrs, slog.String(moduleKey, m.module))
	}
	for _, f := range m.fields {
		attrs = append(attrs, toAttr(f))
	}
	for _, f := range fields {
		attrs = append(attrs, toAttr(f))
	}
	m.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func toAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case uint64:
		return slog.Uint64(f.Key, v)
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	case time.Duration:
		// JSON would otherwise get nanoseconds
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}
