// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers default values for every setting.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "PlateWatch")

	viper.SetDefault("log.default_level", "info")
	viper.SetDefault("log.timezone", "Local")
	viper.SetDefault("log.console.enabled", true)
	viper.SetDefault("log.console.level", "info")
	viper.SetDefault("log.file_output.enabled", false)
	viper.SetDefault("log.file_output.path", "logs/platewatch.log")
	viper.SetDefault("log.file_output.level", "info")

	viper.SetDefault("pipeline.interval", 5*time.Second)
	viper.SetDefault("pipeline.backoff", 10*time.Second)
	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("pipeline.cycletimeout", 45*time.Second)
	viper.SetDefault("pipeline.sourcetimeout", 30*time.Second)
	viper.SetDefault("pipeline.minplatelength", 5)
	viper.SetDefault("pipeline.suppressionwindow", time.Duration(0))
	viper.SetDefault("pipeline.unhealthythreshold", 3)

	viper.SetDefault("capture.ffmpegpath", "")
	viper.SetDefault("capture.transport", "tcp")
	viper.SetDefault("capture.timeout", 10*time.Second)

	viper.SetDefault("ocr.engine", "tesseract")
	viper.SetDefault("ocr.tesseractpath", "")
	viper.SetDefault("ocr.language", "eng")
	viper.SetDefault("ocr.psm", 8)
	viper.SetDefault("ocr.timeout", 5*time.Second)

	viper.SetDefault("storage.imagedir", "static/photos")
	viper.SetDefault("storage.jpegquality", 90)
	viper.SetDefault("storage.minfreemb", 100)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "platewatch.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "platewatch")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "platewatch")

	viper.SetDefault("actuator.enabled", true)
	viper.SetDefault("actuator.url", "http://192.168.1.100/relay")
	viper.SetDefault("actuator.timeout", 2*time.Second)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "platewatch/events")
	viper.SetDefault("mqtt.clientid", "platewatch")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.basicauth.enabled", false)
	viper.SetDefault("webserver.triggerratelimit", 1.0)
	viper.SetDefault("webserver.triggerburst", 3)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.environment", "production")

	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.timeout", 10*time.Second)
}
