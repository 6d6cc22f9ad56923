package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/pipeline"
	"github.com/platewatch/platewatch/internal/trigger"
)

// healthPingTimeout bounds the datastore check in /health
const healthPingTimeout = 2 * time.Second

// ErrorResponse is returned for failed requests
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// TriggerRequest is the manual trigger body
type TriggerRequest struct {
	LicensePlate string `json:"license_plate"`
}

// TriggerResponse reports the actuator result
type TriggerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// EventResponse is one recognition event in search results
type EventResponse struct {
	ID           uint      `json:"id"`
	LicensePlate string    `json:"license_plate"`
	ImagePath    string    `json:"image_path"`
	CapturedAt   time.Time `json:"captured_at"`
	SourceID     uint      `json:"source_id"`
	Matched      bool      `json:"matched"`
}

// HealthResponse is returned by /api/v1/health
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version,omitempty"`
	Database      string  `json:"database"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Timestamp     string  `json:"timestamp"`
}

// HandleError logs err with a correlation id and writes an ErrorResponse.
func (s *Server) HandleError(c echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	}

	log := s.log.Warn
	if code >= http.StatusInternalServerError {
		log = s.log.Error
	}
	log("API error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("ip", c.RealIP()),
		logger.Error(err))

	return c.JSON(code, resp)
}

func (s *Server) postTrigger(c echo.Context) error {
	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleError(c, err, "invalid request body", http.StatusBadRequest)
	}
	if strings.TrimSpace(req.LicensePlate) == "" {
		return c.JSON(http.StatusBadRequest, TriggerResponse{Success: false, Message: "license_plate is required"})
	}

	ok, err := s.trigger.Trigger(c.Request().Context(), req.LicensePlate)
	switch {
	case errors.Is(err, trigger.ErrNotRegistered):
		return c.JSON(http.StatusNotFound, TriggerResponse{Success: false, Message: trigger.ErrNotRegistered.Error()})
	case err != nil:
		return s.HandleError(c, err, "failed to look up vehicle", http.StatusInternalServerError)
	}

	resp := TriggerResponse{Success: ok}
	if !ok {
		resp.Message = "actuator did not confirm the trigger"
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) getEvents(c echo.Context) error {
	q, err := parseEventQuery(c)
	if err != nil {
		return s.HandleError(c, err, "invalid search parameters", http.StatusBadRequest)
	}

	events, err := s.store.QueryEvents(c.Request().Context(), q)
	if err != nil {
		return s.HandleError(c, err, "failed to search events", http.StatusInternalServerError)
	}

	out := make([]EventResponse, 0, len(events))
	for i := range events {
		e := &events[i]
		out = append(out, EventResponse{
			ID:           e.ID,
			LicensePlate: e.LicensePlate,
			ImagePath:    e.ImagePath,
			CapturedAt:   e.CapturedAt,
			SourceID:     e.SourceID,
			Matched:      e.Matched,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// parseEventQuery maps query parameters to an EventQuery. Missing values are
// passed through so the store can answer with an empty result; only values
// that are present but malformed are rejected.
func parseEventQuery(c echo.Context) (datastore.EventQuery, error) {
	q := datastore.EventQuery{
		Mode:  datastore.FilterMode(c.QueryParam("mode")),
		Value: strings.TrimSpace(c.QueryParam("value")),
	}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, errors.Newf("limit must be a non-negative integer").
				Component("api").
				Category(errors.CategoryValidation).
				Build()
		}
		q.Limit = limit
	}

	var err error
	if q.Start, err = parseBound(c.QueryParam("start")); err != nil {
		return q, err
	}
	if q.End, err = parseBound(c.QueryParam("end")); err != nil {
		return q, err
	}
	return q, nil
}

func parseBound(raw string) (time.Time, error) {
	t, err := datastore.ParseTimeBound(raw)
	if err != nil {
		return time.Time{}, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Context("value", raw).
			Build()
	}
	return t, nil
}

func (s *Server) getSourcesHealth(c echo.Context) error {
	if s.health == nil {
		return c.JSON(http.StatusOK, []pipeline.SourceHealth{})
	}
	return c.JSON(http.StatusOK, s.health.Health())
}

func (s *Server) getVehicleRegistered(c echo.Context) error {
	plate := datastore.NormalizePlate(c.Param("plate"))
	registered, err := s.store.IsRegistered(c.Request().Context(), plate)
	if err != nil {
		return s.HandleError(c, err, "failed to look up vehicle", http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"license_plate": plate,
		"registered":    registered,
	})
}

func (s *Server) getHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
	defer cancel()

	uptime := time.Since(s.startTime)
	resp := HealthResponse{
		Status:        "healthy",
		Version:       s.version,
		Database:      "ok",
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Timestamp:     time.Now().Format(time.RFC3339),
	}

	code := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("health check database ping failed", logger.Error(err))
		resp.Status = "degraded"
		resp.Database = "unreachable"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
