// Package analysis assembles and runs the realtime recognition pipeline.
package analysis

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/observability"
	"github.com/platewatch/platewatch/internal/telemetry"
)

// GetLogger returns the analysis module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}

// RealtimeAnalysis runs the pipeline until SIGINT or SIGTERM.
func RealtimeAnalysis(settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, settings)
}

// Run starts every enabled component and blocks until ctx is cancelled.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := GetLogger()
	logSystemDetails(log)

	if err := telemetry.InitSentry(settings, settings.Version); err != nil {
		log.Warn("sentry initialization failed, continuing without error telemetry", logger.Error(err))
	}
	defer telemetry.Flush(telemetry.FlushTimeout)

	svc, err := newServices(ctx, settings)
	if err != nil {
		return err
	}
	defer svc.close()

	var wg sync.WaitGroup
	quit := make(chan struct{})

	if settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(settings, svc.metrics)
		if err != nil {
			return err
		}
		endpoint.Start(&wg, quit)
	}

	if svc.server != nil {
		svc.server.Start()
	}

	log.Info("starting realtime pipeline",
		logger.String("version", settings.Version),
		logger.Duration("interval", settings.Pipeline.Interval),
		logger.Int("workers", settings.Pipeline.Workers),
		logger.Bool("actuator", settings.Actuator.Enabled),
		logger.Bool("mqtt", settings.MQTT.Enabled),
		logger.Bool("api", settings.WebServer.Enabled))

	runErr := svc.scheduler.Run(ctx)

	close(quit)
	wg.Wait()

	log.Info("realtime pipeline stopped")
	return runErr
}

func logSystemDetails(log logger.Logger) {
	info, err := host.Info()
	if err != nil {
		log.Warn("failed to read host info", logger.Error(err))
		return
	}
	log.Info("system details",
		logger.String("os", info.OS),
		logger.String("platform", strings.TrimSpace(info.Platform+" "+info.PlatformVersion)),
		logger.String("arch", info.KernelArch),
		logger.String("hostname", info.Hostname))
}
