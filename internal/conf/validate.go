// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct and reports every problem at once
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validatePipelineSettings(&settings.Pipeline)...)
	ve.Errors = append(ve.Errors, validateCaptureSettings(&settings.Capture)...)
	ve.Errors = append(ve.Errors, validateOCRSettings(&settings.OCR)...)
	ve.Errors = append(ve.Errors, validateStorageSettings(&settings.Storage)...)
	ve.Errors = append(ve.Errors, validateOutputSettings(&settings.Output)...)
	ve.Errors = append(ve.Errors, validateActuatorSettings(&settings.Actuator)...)
	ve.Errors = append(ve.Errors, validateMQTTSettings(&settings.MQTT)...)
	ve.Errors = append(ve.Errors, validateWebServerSettings(&settings.WebServer)...)

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but no DSN is configured")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validatePipelineSettings(p *PipelineSettings) []string {
	var errs []string
	if p.Interval <= 0 {
		errs = append(errs, "pipeline.interval must be positive")
	}
	if p.Backoff < p.Interval {
		errs = append(errs, "pipeline.backoff must not be shorter than pipeline.interval")
	}
	if p.Workers < 0 {
		errs = append(errs, "pipeline.workers must not be negative")
	}
	if p.SourceTimeout <= 0 {
		errs = append(errs, "pipeline.sourcetimeout must be positive")
	}
	if p.CycleTimeout <= 0 {
		errs = append(errs, "pipeline.cycletimeout must be positive")
	}
	if p.MinPlateLength < 1 {
		errs = append(errs, "pipeline.minplatelength must be at least 1")
	}
	if p.SuppressionWindow < 0 {
		errs = append(errs, "pipeline.suppressionwindow must not be negative")
	}
	if p.UnhealthyThreshold < 1 {
		errs = append(errs, "pipeline.unhealthythreshold must be at least 1")
	}
	return errs
}

func validateCaptureSettings(c *CaptureSettings) []string {
	var errs []string
	switch c.Transport {
	case "tcp", "udp":
	default:
		errs = append(errs, fmt.Sprintf("capture.transport must be tcp or udp, got %q", c.Transport))
	}
	if c.Timeout <= 0 {
		errs = append(errs, "capture.timeout must be positive")
	}
	return errs
}

func validateOCRSettings(o *OCRSettings) []string {
	var errs []string
	switch o.Engine {
	case "tesseract", "gosseract":
	default:
		errs = append(errs, fmt.Sprintf("ocr.engine must be tesseract or gosseract, got %q", o.Engine))
	}
	if o.PSM < 0 || o.PSM > 13 {
		errs = append(errs, "ocr.psm must be between 0 and 13")
	}
	if o.Timeout <= 0 {
		errs = append(errs, "ocr.timeout must be positive")
	}
	return errs
}

func validateStorageSettings(s *StorageSettings) []string {
	var errs []string
	if strings.TrimSpace(s.ImageDir) == "" {
		errs = append(errs, "storage.imagedir must be set")
	}
	if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
		errs = append(errs, "storage.jpegquality must be between 1 and 100")
	}
	return errs
}

func validateOutputSettings(o *OutputSettings) []string {
	var errs []string
	switch {
	case o.SQLite.Enabled && o.MySQL.Enabled:
		errs = append(errs, "only one of output.sqlite and output.mysql can be enabled")
	case !o.SQLite.Enabled && !o.MySQL.Enabled:
		errs = append(errs, "one of output.sqlite or output.mysql must be enabled")
	}
	if o.SQLite.Enabled && o.SQLite.Path == "" {
		errs = append(errs, "output.sqlite.path must be set")
	}
	if o.MySQL.Enabled {
		if o.MySQL.Host == "" || o.MySQL.Database == "" || o.MySQL.Username == "" {
			errs = append(errs, "output.mysql requires host, database and username")
		}
		if _, err := strconv.Atoi(o.MySQL.Port); err != nil {
			errs = append(errs, fmt.Sprintf("output.mysql.port is not a number: %q", o.MySQL.Port))
		}
	}
	return errs
}

func validateActuatorSettings(a *ActuatorSettings) []string {
	if !a.Enabled {
		return nil
	}
	var errs []string
	if err := validateHTTPURL(a.URL); err != nil {
		errs = append(errs, fmt.Sprintf("actuator.url: %v", err))
	}
	if a.Timeout <= 0 {
		errs = append(errs, "actuator.timeout must be positive")
	}
	return errs
}

func validateMQTTSettings(m *MQTTSettings) []string {
	if !m.Enabled {
		return nil
	}
	var errs []string
	if m.Broker == "" {
		errs = append(errs, "mqtt.broker must be set when mqtt is enabled")
	}
	if m.Topic == "" {
		errs = append(errs, "mqtt.topic must be set when mqtt is enabled")
	}
	if m.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1 or 2")
	}
	return errs
}

func validateWebServerSettings(w *WebServerSettings) []string {
	if !w.Enabled {
		return nil
	}
	var errs []string
	if port, err := strconv.Atoi(w.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("webserver.port is not a valid port: %q", w.Port))
	}
	if w.BasicAuth.Enabled && (w.BasicAuth.Username == "" || w.BasicAuth.PasswordHash == "") {
		errs = append(errs, "webserver.basicauth requires username and passwordhash")
	}
	if w.TriggerRateLimit <= 0 {
		errs = append(errs, "webserver.triggerratelimit must be positive")
	}
	return errs
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
