package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/logger"
	metricspkg "github.com/platewatch/platewatch/internal/observability/metrics"
)

// Endpoint serves Prometheus metrics on a dedicated listener, separate from the API.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates the telemetry endpoint. It fails if telemetry is disabled.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Telemetry.Enabled {
		return nil, fmt.Errorf("telemetry not enabled in settings")
	}
	return &Endpoint{
		listenAddress: settings.Telemetry.Listen,
		metrics:       metrics,
	}, nil
}

// Start serves until quitChan is closed, then shuts the server down.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	e.server = &http.Server{
		Addr:              e.listenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log := getLogger()
	wg.Go(func() {
		log.Info("telemetry endpoint starting", logger.String("address", e.listenAddress))
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("telemetry HTTP server error", logger.Error(err))
		}
	})

	wg.Go(func() {
		<-quitChan
		ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
		defer cancel()
		if err := e.server.Shutdown(ctx); err != nil {
			log.Error("telemetry server shutdown error", logger.Error(err))
		}
	})
}
