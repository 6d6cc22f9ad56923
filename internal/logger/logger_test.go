package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextHandlerFormatsModuleAndFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, time.UTC).Module("pipeline")

	log.Info("cycle completed", Int("sources", 3), String("note", "two words"), Error(errors.New("boom")))

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "INFO  [pipeline] cycle completed"), line)
	assert.Contains(t, line, "sources=3")
	assert.Contains(t, line, `note="two words"`)
	assert.Contains(t, line, "error=boom")
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelWarn, nil)

	log.Debug("hidden")
	log.Info("hidden")
	log.Trace("hidden")
	log.Warn("shown")
	log.Error("also shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "also shown")
}

func TestTraceLevelName(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewSlogLogger(&buf, LogLevelTrace, nil).Trace("sql")
	assert.True(t, strings.HasPrefix(buf.String(), "TRACE sql"), buf.String())
}

func TestWithAccumulatesFieldsWithoutMutatingParent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	parent := NewSlogLogger(&buf, LogLevelInfo, nil).With(String("source", "gate"))
	child := parent.With(Int("attempt", 2))

	parent.Info("parent")
	child.Info("child")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "attempt=")
	assert.Contains(t, lines[1], "source=gate")
	assert.Contains(t, lines[1], "attempt=2")
}

func TestModuleOutputFile(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "main.log")
	sqlPath := filepath.Join(dir, "sql.log")

	cl, err := NewCentralLogger(&LoggingConfig{
		Console:       &ConsoleOutput{Enabled: false},
		FileOutput:    &FileOutput{Enabled: true, Path: mainPath, Level: "info"},
		ModuleOutputs: map[string]ModuleOutput{"datastore": {Enabled: true, FilePath: sqlPath, Level: "trace"}},
	})
	require.NoError(t, err)

	cl.Module("datastore").Trace("select 1")
	cl.Module("pipeline").Info("cycle completed")
	require.NoError(t, cl.Close())

	sql, err := os.ReadFile(sqlPath)
	require.NoError(t, err)
	assert.Contains(t, string(sql), "select 1")
	assert.NotContains(t, string(sql), "cycle completed")

	shared, err := os.ReadFile(mainPath)
	require.NoError(t, err)
	assert.Contains(t, string(shared), "cycle completed")
	assert.NotContains(t, string(shared), "select 1")
}

func TestCentralLoggerWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "app.log")

	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"datastore": "error"},
	})
	require.NoError(t, err)

	cl.Module("capture").Debug("grabbed frame", Duration("elapsed", 1500*time.Millisecond))
	cl.Module("datastore").Info("filtered by module level")
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "capture", record["module"])
	assert.Equal(t, "grabbed frame", record["msg"])
	assert.Equal(t, "1.5s", record["elapsed"])
}

func TestNewCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = NewCentralLogger(nil)
	require.Error(t, err)
}

func TestSubModuleNaming(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewSlogLogger(&buf, LogLevelInfo, nil).Module("capture").Module("ffmpeg").Info("started")
	assert.Contains(t, buf.String(), "[capture.ffmpeg]")
}
