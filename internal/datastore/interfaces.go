// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/observability/metrics"
)

// Interface abstracts the underlying database implementation and defines the interface for database operations.
type Interface interface {
	Open() error
	Close() error
	Ping(ctx context.Context) error

	// sources and registry
	ListActiveSources(ctx context.Context) ([]Camera, error)
	IsRegistered(ctx context.Context, plate string) (bool, error)
	AddCamera(ctx context.Context, camera *Camera) error
	SetCameraActive(ctx context.Context, id uint, active bool) error
	AddVehicle(ctx context.Context, vehicle *Vehicle) error
	SetVehicleActive(ctx context.Context, plate string, active bool) error

	// events
	InsertEvent(ctx context.Context, plate, imagePath string, sourceID uint) (RecognitionEvent, error)
	QueryEvents(ctx context.Context, q EventQuery) ([]RecognitionEvent, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB      *gorm.DB // GORM database instance
	metrics *metrics.DatastoreMetrics
	now     func() time.Time
	loc     *time.Location
}

// Option customizes a store returned by New
type Option func(*DataStore)

// WithMetrics records operation latency and result sizes.
func WithMetrics(m *metrics.DatastoreMetrics) Option {
	return func(ds *DataStore) { ds.metrics = m }
}

// WithClock replaces time.Now as the source of event capture times.
func WithClock(now func() time.Time) Option {
	return func(ds *DataStore) { ds.now = now }
}

// WithLocation sets the zone used for calendar dates, time.Local by default.
func WithLocation(loc *time.Location) Option {
	return func(ds *DataStore) { ds.loc = loc }
}

// New creates a store for the enabled output. SQLite wins when both are enabled.
func New(settings *conf.Settings, opts ...Option) Interface {
	var ds DataStore
	for _, opt := range opts {
		opt(&ds)
	}

	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{DataStore: ds, Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{DataStore: ds, Settings: settings}
	default:
		return nil
	}
}

// Connect creates the store selected by settings and opens it.
func Connect(settings *conf.Settings, opts ...Option) (Interface, error) {
	store := New(settings, opts...)
	if store == nil {
		return nil, errors.Newf("no event store enabled, enable output.sqlite or output.mysql").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}
	return store, nil
}

func (ds *DataStore) clock() time.Time {
	if ds.now != nil {
		return ds.now()
	}
	return time.Now()
}

func (ds *DataStore) location() *time.Location {
	if ds.loc != nil {
		return ds.loc
	}
	return time.Local
}

// NormalizePlate trims and uppercases a plate for storage and lookup.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// Ping verifies the database connection is alive.
func (ds *DataStore) Ping(ctx context.Context) error {
	if ds.DB == nil {
		return dbError(errors.NewStd("database connection is not initialized"), "ping", errors.PriorityHigh)
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "ping", errors.PriorityHigh)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dbError(err, "ping", errors.PriorityHigh)
	}
	return nil
}

// ListActiveSources returns all active cameras ordered by id.
func (ds *DataStore) ListActiveSources(ctx context.Context) ([]Camera, error) {
	start := time.Now()
	var cameras []Camera
	err := ds.DB.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&cameras).Error
	ds.recordOperation("list_sources", start, err)
	if err != nil {
		return nil, dbError(err, "list_sources", errors.PriorityHigh)
	}
	return cameras, nil
}

// IsRegistered reports whether plate exactly matches an active vehicle.
func (ds *DataStore) IsRegistered(ctx context.Context, plate string) (bool, error) {
	start := time.Now()
	registered, err := isRegistered(ds.DB.WithContext(ctx), NormalizePlate(plate))
	ds.recordOperation("is_registered", start, err)
	if err != nil {
		return false, dbError(err, "is_registered", "", "plate", plate)
	}
	return registered, nil
}

func isRegistered(tx *gorm.DB, plate string) (bool, error) {
	if plate == "" {
		return false, nil
	}
	var count int64
	err := tx.Model(&Vehicle{}).
		Where("license_plate = ? AND active = ?", plate, true).
		Count(&count).Error
	return count > 0, err
}

// InsertEvent records a recognition. The registration check and the insert
// run in one transaction so Matched reflects the registry at write time.
// The capture time is assigned here, not by the caller.
func (ds *DataStore) InsertEvent(ctx context.Context, plate, imagePath string, sourceID uint) (RecognitionEvent, error) {
	plate = NormalizePlate(plate)
	if plate == "" {
		return RecognitionEvent{}, validationError("license plate is empty", "license_plate", plate)
	}
	if imagePath == "" {
		return RecognitionEvent{}, validationError("image path is empty", "image_path", imagePath)
	}

	start := time.Now()
	captured := ds.clock()
	event := RecognitionEvent{
		LicensePlate: plate,
		ImagePath:    imagePath,
		CapturedAt:   captured.UTC().Truncate(time.Microsecond),
		CaptureDate:  captured.In(ds.location()).Format(captureDateLayout),
		SourceID:     sourceID,
	}

	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		matched, err := isRegistered(tx, plate)
		if err != nil {
			return fmt.Errorf("checking registration: %w", err)
		}
		event.Matched = matched
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("creating event: %w", err)
		}
		return nil
	})
	ds.recordOperation("insert_event", start, err)
	if err != nil {
		return RecognitionEvent{}, dbError(err, "insert_event", errors.PriorityHigh,
			"plate", plate,
			"source_id", sourceID)
	}
	event.CapturedAt = event.CapturedAt.In(ds.location())
	return event, nil
}

// AddCamera creates a camera. Port and StreamPath get their defaults when unset.
func (ds *DataStore) AddCamera(ctx context.Context, camera *Camera) error {
	if strings.TrimSpace(camera.Name) == "" {
		return validationError("camera name is required", "name", camera.Name)
	}
	if strings.TrimSpace(camera.Address) == "" {
		return validationError("camera address is required", "address", camera.Address)
	}
	if camera.Port == 0 {
		camera.Port = DefaultCameraPort
	}
	if camera.Port < 1 || camera.Port > 65535 {
		return validationError("camera port out of range", "port", camera.Port)
	}
	if camera.StreamPath == "" {
		camera.StreamPath = DefaultStreamPath
	}

	if err := ds.DB.WithContext(ctx).Create(camera).Error; err != nil {
		return dbError(err, "add_camera", "", "name", camera.Name)
	}
	return nil
}

// SetCameraActive enables or disables polling of a camera.
func (ds *DataStore) SetCameraActive(ctx context.Context, id uint, active bool) error {
	result := ds.DB.WithContext(ctx).Model(&Camera{}).Where("id = ?", id).Update("active", active)
	if result.Error != nil {
		return dbError(result.Error, "set_camera_active", "", "id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError("camera", id)
	}
	return nil
}

// AddVehicle registers a vehicle. A plate already present returns an error
// matching ErrDuplicate.
func (ds *DataStore) AddVehicle(ctx context.Context, vehicle *Vehicle) error {
	vehicle.LicensePlate = NormalizePlate(vehicle.LicensePlate)
	if vehicle.LicensePlate == "" {
		return validationError("license plate is required", "license_plate", vehicle.LicensePlate)
	}
	if strings.TrimSpace(vehicle.OwnerName) == "" {
		return validationError("owner name is required", "owner_name", vehicle.OwnerName)
	}
	if vehicle.RegistrationDate.IsZero() {
		vehicle.RegistrationDate = ds.clock().UTC()
	}

	if err := ds.DB.WithContext(ctx).Create(vehicle).Error; err != nil {
		if isDuplicateKeyError(err) {
			return conflictError(err, "add_vehicle", "license_plate", vehicle.LicensePlate)
		}
		return dbError(err, "add_vehicle", "", "plate", vehicle.LicensePlate)
	}
	return nil
}

// SetVehicleActive activates or deactivates a registration by plate.
func (ds *DataStore) SetVehicleActive(ctx context.Context, plate string, active bool) error {
	plate = NormalizePlate(plate)
	result := ds.DB.WithContext(ctx).Model(&Vehicle{}).Where("license_plate = ?", plate).Update("active", active)
	if result.Error != nil {
		return dbError(result.Error, "set_vehicle_active", "", "plate", plate)
	}
	if result.RowsAffected == 0 {
		return errors.Newf("vehicle %s not found", plate).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("plate", plate).
			Build()
	}
	return nil
}

// closeDB closes the underlying sql.DB
func (ds *DataStore) closeDB() error {
	if ds.DB == nil {
		return dbError(errors.NewStd("database connection is not initialized"), "close", "")
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", "")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", "")
	}
	return nil
}

// performAutoMigration creates or updates the schema.
func performAutoMigration(db *gorm.DB, dbType string) error {
	start := time.Now()
	if err := db.AutoMigrate(&Camera{}, &Vehicle{}, &RecognitionEvent{}); err != nil {
		return dbError(err, "auto_migrate", errors.PriorityCritical, "db_type", dbType)
	}
	GetLogger().Debug("database schema migrated",
		logger.String("db_type", dbType),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}
