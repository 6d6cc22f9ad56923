package conf

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadDefaults unmarshals the registered defaults plus the embedded config.yaml.
func loadDefaults(t *testing.T) *Settings {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	setDefaultConfig()

	data, err := fs.ReadFile(configFiles, "config.yaml")
	require.NoError(t, err)
	viper.SetConfigType("yaml")
	require.NoError(t, viper.ReadConfig(bytes.NewReader(data)))

	settings := &Settings{}
	require.NoError(t, viper.Unmarshal(settings))
	return settings
}

func TestEmbeddedConfigMatchesDefaults(t *testing.T) {
	settings := loadDefaults(t)

	require.NoError(t, ValidateSettings(settings))

	assert.Equal(t, 5*time.Second, settings.Pipeline.Interval)
	assert.Equal(t, 10*time.Second, settings.Pipeline.Backoff)
	assert.Equal(t, 5, settings.Pipeline.MinPlateLength)
	assert.Zero(t, settings.Pipeline.SuppressionWindow)
	assert.Equal(t, 8, settings.OCR.PSM)
	assert.Equal(t, "static/photos", settings.Storage.ImageDir)
	assert.Equal(t, "http://192.168.1.100/relay", settings.Actuator.URL)
	assert.Equal(t, 2*time.Second, settings.Actuator.Timeout)
	assert.True(t, settings.Output.SQLite.Enabled)
	assert.Equal(t, "info", settings.Log.DefaultLevel)
	require.NotNil(t, settings.Log.Console)
	assert.True(t, settings.Log.Console.Enabled)
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	settings := loadDefaults(t)

	settings.Pipeline.Interval = 0
	settings.Capture.Transport = "http"
	settings.Output.MySQL.Enabled = true
	settings.Actuator.URL = "ftp://relay"
	settings.WebServer.Port = "99999"

	err := ValidateSettings(settings)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 5)
}

func TestValidateSettingsSkipsDisabledSections(t *testing.T) {
	settings := loadDefaults(t)

	settings.Actuator.Enabled = false
	settings.Actuator.URL = ""
	settings.MQTT.Enabled = false
	settings.MQTT.Broker = ""
	settings.WebServer.Enabled = false
	settings.WebServer.Port = ""

	assert.NoError(t, ValidateSettings(settings))
}

func TestSaveYAMLConfigIsReadableByViper(t *testing.T) {
	settings := loadDefaults(t)
	settings.Pipeline.SuppressionWindow = 30 * time.Second
	settings.Notification.URLs = []string{"generic://example.com/hook"}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	assert.Equal(t, 30*time.Second, v.GetDuration("pipeline.suppressionwindow"))
	assert.Equal(t, []string{"generic://example.com/hook"}, v.GetStringSlice("notification.urls"))
}
