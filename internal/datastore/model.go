// model.go this code defines the data model for the application
package datastore

import "time"

// Default connection values applied to cameras added without them
const (
	DefaultCameraPort = 554
	DefaultStreamPath = "/stream1"
)

// captureDateLayout is the layout of RecognitionEvent.CaptureDate
const captureDateLayout = "2006-01-02"

// Camera is a configured image source. Only active cameras are polled.
type Camera struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"not null"`
	Address    string `gorm:"not null"`
	Port       int
	Username   string
	Password   string `json:"-"`
	StreamPath string
	// Active has no gorm default so that false is written on create
	Active    bool `gorm:"index"`
	CreatedAt time.Time
}

// Vehicle is a registry entry. A plate is registered only while Active is true.
type Vehicle struct {
	ID               uint   `gorm:"primaryKey"`
	LicensePlate     string `gorm:"uniqueIndex;size:20;not null"`
	OwnerName        string `gorm:"not null"`
	Address          string
	PhoneNumber      string
	VehicleType      string
	RegistrationDate time.Time
	Active           bool `gorm:"index"`
}

// RecognitionEvent is one persisted plate read. Events are append-only.
type RecognitionEvent struct {
	ID           uint      `gorm:"primaryKey"`
	LicensePlate string    `gorm:"index;size:20"`
	ImagePath    string    `gorm:"not null"`
	CapturedAt   time.Time `gorm:"index"`
	// CaptureDate is CapturedAt's local calendar date, kept for portable date filters
	CaptureDate string `gorm:"index;size:10"`
	SourceID    uint   `gorm:"index"`
	Matched     bool
}
