// mqtt.go: Package mqtt publishes recognition events to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/platewatch/platewatch/internal/logger"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic on the MQTT broker.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retain   bool // true to retain messages at the broker
	// Connection timeouts
	ConnectTimeout       time.Duration
	ConnectRetryInterval time.Duration // between attempts while the first connect has not succeeded
	PublishTimeout       time.Duration
	DisconnectTimeout    time.Duration
	MaxReconnectDelay    time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:       30 * time.Second,
		ConnectRetryInterval: 10 * time.Second,
		PublishTimeout:       10 * time.Second,
		DisconnectTimeout:    250 * time.Millisecond,
		MaxReconnectDelay:    5 * time.Minute,
	}
}

// GetLogger returns the mqtt module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
