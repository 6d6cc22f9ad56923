package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/platewatch/platewatch/internal/logger"
)

// Trigger rate limit defaults, per client IP
const (
	defaultTriggerRate  = 1.0
	defaultTriggerBurst = 3
	limiterExpiry       = 3 * time.Minute
)

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogURIPath:  true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("path", v.URIPath),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
				logger.String("ip", v.RemoteIP),
			}
			if v.Error != nil {
				s.log.Warn("request failed", append(fields, logger.Error(v.Error))...)
				return nil
			}
			s.log.Debug("request", fields...)
			return nil
		},
	})
}

// basicAuth checks credentials against the bcrypt hash in settings. It is a
// pass-through when auth is disabled.
func (s *Server) basicAuth() echo.MiddlewareFunc {
	cfg := s.settings.WebServer.BasicAuth
	return echomw.BasicAuthWithConfig(echomw.BasicAuthConfig{
		Skipper: func(echo.Context) bool { return !cfg.Enabled },
		Realm:   "PlateWatch",
		Validator: func(username, password string, c echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.Username)) == 1
			passErr := bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(password))
			if userOK && passErr == nil {
				return true, nil
			}
			s.log.Warn("rejected API credentials",
				logger.String("username", username),
				logger.String("ip", c.RealIP()))
			return false, nil
		},
	})
}

func (s *Server) triggerRateLimiter() echo.MiddlewareFunc {
	limit := s.settings.WebServer.TriggerRateLimit
	if limit <= 0 {
		limit = defaultTriggerRate
	}
	burst := s.settings.WebServer.TriggerBurst
	if burst <= 0 {
		burst = defaultTriggerBurst
	}

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(limit),
			Burst:     burst,
			ExpiresIn: limiterExpiry,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			s.log.Warn("manual trigger rate limited", logger.String("ip", identifier))
			return c.JSON(http.StatusTooManyRequests, TriggerResponse{
				Success: false,
				Message: "too many trigger requests, slow down",
			})
		},
	})
}

// HashPassword returns a bcrypt hash for the basic auth config.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
