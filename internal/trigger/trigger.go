// Package trigger implements the operator's manual gate trigger. It applies
// the same registry check as the pipeline and uses the same dispatcher.
package trigger

import (
	"context"

	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/dispatcher"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
)

// ErrNotRegistered is returned for plates without an active vehicle
var ErrNotRegistered = errors.NewStd("vehicle not registered")

// Registry answers whether a plate belongs to an active vehicle
type Registry interface {
	IsRegistered(ctx context.Context, plate string) (bool, error)
}

// Dispatcher triggers the actuator
type Dispatcher interface {
	Trigger(ctx context.Context, plate string) bool
}

// Service handles manual trigger requests.
type Service struct {
	registry   Registry
	dispatcher Dispatcher
	log        logger.Logger
}

// New creates a Service.
func New(registry Registry, d Dispatcher) *Service {
	return &Service{
		registry:   registry,
		dispatcher: d,
		log:        logger.Global().Module("trigger"),
	}
}

// Trigger dispatches the actuator for plate if it is registered. The bool is
// the dispatcher's result; a lookup failure or an unknown plate is an error.
func (s *Service) Trigger(ctx context.Context, plate string) (bool, error) {
	plate = datastore.NormalizePlate(plate)
	if plate == "" {
		return false, errors.Newf("license plate is required").
			Component("trigger").
			Category(errors.CategoryValidation).
			Build()
	}

	registered, err := s.registry.IsRegistered(ctx, plate)
	if err != nil {
		return false, err
	}
	if !registered {
		s.log.Info("manual trigger refused, vehicle not registered", logger.String("plate", plate))
		return false, errors.New(ErrNotRegistered).
			Component("trigger").
			Category(errors.CategoryNotFound).
			Context("plate", plate).
			Build()
	}

	ok := s.dispatcher.Trigger(dispatcher.WithOrigin(ctx, dispatcher.OriginManual), plate)
	s.log.Info("manual trigger", logger.String("plate", plate), logger.Bool("success", ok))
	return ok, nil
}
