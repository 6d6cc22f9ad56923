// config.go: settings struct for PlateWatch and functions to load and save it.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/platewatch/platewatch/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// PipelineSettings controls the camera polling loop
type PipelineSettings struct {
	Interval           time.Duration // pause between polling cycles
	Backoff            time.Duration // pause after a cycle-level failure
	Workers            int           // max sources processed concurrently, 0 = one per source
	CycleTimeout       time.Duration // how long a cycle waits for its sources before moving on
	SourceTimeout      time.Duration // hard deadline for one source's acquire-to-dispatch sequence
	MinPlateLength     int           // shortest accepted plate candidate
	SuppressionWindow  time.Duration // ignore repeats of a plate on the same source within this window, 0 = off
	UnhealthyThreshold int           // consecutive failures before a source is reported unhealthy
}

// CaptureSettings controls single-frame grabbing from RTSP sources
type CaptureSettings struct {
	FfmpegPath string        // path to ffmpeg binary, empty = look up in PATH
	Transport  string        // rtsp transport: tcp or udp
	Timeout    time.Duration // max time to open the stream and grab one frame
}

// OCRSettings controls text extraction
type OCRSettings struct {
	Engine        string        // tesseract (CLI) or gosseract (libtesseract, needs the gosseract build tag)
	TesseractPath string        // path to tesseract binary, empty = look up in PATH
	Language      string        // tesseract language, e.g. eng
	PSM           int           // page segmentation mode, 8 = single word
	Timeout       time.Duration // max time for one extraction call
}

// StorageSettings controls image artifact storage
type StorageSettings struct {
	ImageDir    string // directory for recognition snapshots
	JPEGQuality int    // 1-100
	MinFreeMB   uint64 // refuse writes when free space drops below this, 0 = no check
}

// SQLiteSettings for the default embedded store
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings for an external store
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// OutputSettings selects the event store
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// ActuatorSettings describes the relay endpoint triggered for registered vehicles
type ActuatorSettings struct {
	Enabled bool
	URL     string        // e.g. http://192.168.1.100/relay
	Timeout time.Duration // request timeout, success requires a 200 within it
}

// MQTTSettings for optional publishing of recognition events
type MQTTSettings struct {
	Enabled  bool
	Broker   string // tcp://host:1883
	Topic    string
	Username string
	Password string
	ClientID string
	QoS      byte
	Retain   bool
}

// BasicAuthSettings protects the API. PasswordHash is a bcrypt hash.
type BasicAuthSettings struct {
	Enabled      bool
	Username     string
	PasswordHash string
}

// WebServerSettings for the HTTP API
type WebServerSettings struct {
	Enabled          bool
	Port             string
	BasicAuth        BasicAuthSettings
	TriggerRateLimit float64 // manual trigger requests per second per client
	TriggerBurst     int
}

// TelemetrySettings for the standalone Prometheus endpoint
type TelemetrySettings struct {
	Enabled bool
	Listen  string // host:port
}

// SentrySettings for error telemetry
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// NotificationSettings for source health alerts
type NotificationSettings struct {
	URLs    []string      // shoutrrr service URLs
	Timeout time.Duration // per-send timeout
}

// Settings contains all configuration options for PlateWatch
type Settings struct {
	Debug bool // true to enable debug mode

	Version   string `yaml:"-" mapstructure:"-"` // set from build flags, never read from config
	BuildDate string `yaml:"-" mapstructure:"-"`

	Main struct {
		Name string // name of this node, used in notifications
	}

	Log          logger.LoggingConfig
	Pipeline     PipelineSettings
	Capture      CaptureSettings
	OCR          OCRSettings
	Storage      StorageSettings
	Output       OutputSettings
	Actuator     ActuatorSettings
	MQTT         MQTTSettings
	WebServer    WebServerSettings
	Telemetry    TelemetrySettings
	Sentry       SentrySettings
	Notification NotificationSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults, env overrides and reads the config file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("PLATEWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Debug("configuration loaded", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// createDefaultConfig writes the embedded default config to dir and reads it.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// GetSettings returns the settings loaded by the last Load call
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath through a temp file and rename.
// Comments and ordering of the existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
