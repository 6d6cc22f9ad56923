package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/observability/metrics"
)

// client implements the Client interface on top of paho.
type client struct {
	config         Config
	internalClient pahomqtt.Client
	newClient      func(*pahomqtt.ClientOptions) pahomqtt.Client
	mu             sync.Mutex
	metrics        *metrics.MQTTMetrics
	log            logger.Logger
}

// NewClient creates a new MQTT client from settings. metrics may be nil.
func NewClient(settings *conf.Settings, m *metrics.MQTTMetrics) Client {
	cfg := DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.ClientID = settings.MQTT.ClientID
	if cfg.ClientID == "" {
		cfg.ClientID = settings.Main.Name
	}
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	cfg.QoS = settings.MQTT.QoS
	cfg.Retain = settings.MQTT.Retain
	return newClient(cfg, m)
}

func newClient(cfg Config, m *metrics.MQTTMetrics) *client {
	return &client{
		config:    cfg,
		newClient: pahomqtt.NewClient,
		metrics:   m,
		log:       GetLogger(),
	}
}

func mqttError(err error, category errors.ErrorCategory, broker string) error {
	return errors.New(err).
		Component("mqtt").
		Category(category).
		Context("broker", errors.ScrubCredentials(broker)).
		Build()
}

// Connect starts the connection. If the first attempt fails paho keeps
// retrying every ConnectRetryInterval until Disconnect, and the error is
// still returned so the caller can report it.
func (c *client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return mqttError(err, errors.CategoryConfiguration, c.config.Broker)
	}

	if host := u.Hostname(); host != "" && net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			c.log.Warn("MQTT broker host does not resolve yet",
				logger.String("broker", errors.ScrubCredentials(c.config.Broker)),
				logger.Error(err))
		}
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(c.config.MaxReconnectDelay)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(c.config.ConnectRetryInterval)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.mu.Lock()
	if c.internalClient != nil {
		c.mu.Unlock()
		return mqttError(errors.NewStd("connect already called"), errors.CategoryMQTTConnect, c.config.Broker)
	}
	pc := c.newClient(opts)
	c.internalClient = pc
	c.mu.Unlock()

	token := pc.Connect()
	if !waitToken(ctx, token, c.config.ConnectTimeout) {
		c.recordError("connect_timeout")
		return mqttError(errors.NewStd("connection timeout, retrying in background"), errors.CategoryMQTTConnect, c.config.Broker)
	}
	if err := token.Error(); err != nil {
		c.recordError("connect")
		return mqttError(err, errors.CategoryMQTTConnect, c.config.Broker)
	}

	c.setConnected(true)
	return nil
}

// Publish sends payload to topic with the configured QoS and retain flag.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	pc := c.paho()
	if pc == nil || !pc.IsConnected() {
		c.recordError("not_connected")
		return mqttError(errors.NewStd("not connected to MQTT broker"), errors.CategoryMQTTPublish, c.config.Broker)
	}

	start := time.Now()
	token := pc.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		c.recordError("publish_timeout")
		return mqttError(errors.NewStd("publish timeout"), errors.CategoryMQTTPublish, c.config.Broker)
	}
	if err := token.Error(); err != nil {
		c.recordError("publish")
		return mqttError(err, errors.CategoryMQTTPublish, c.config.Broker)
	}

	if c.metrics != nil {
		c.metrics.IncrementMessagesPublished()
		c.metrics.ObservePublishLatency(time.Since(start).Seconds())
	}
	c.log.Trace("message published", logger.String("topic", topic), logger.Int("bytes", len(payload)))
	return nil
}

// paho returns the underlying client, nil before Connect.
func (c *client) paho() pahomqtt.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internalClient
}

// waitToken waits for token completion, the timeout or ctx, whichever comes first.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) bool {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-token.Done():
		return true
	case <-timer:
		return false
	case <-ctx.Done():
		return false
	}
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	pc := c.paho()
	return pc != nil && pc.IsConnected()
}

// Disconnect closes the connection to the MQTT broker and stops any
// connect retries still in progress.
func (c *client) Disconnect() {
	if pc := c.paho(); pc != nil {
		pc.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	}
	c.setConnected(false)
}

func (c *client) onConnect(_ pahomqtt.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", errors.ScrubCredentials(c.config.Broker)))
	c.setConnected(true)
}

func (c *client) onConnectionLost(_ pahomqtt.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", errors.ScrubCredentials(c.config.Broker)),
		logger.Error(err))
	c.setConnected(false)
	c.recordError("connection_lost")
}

func (c *client) setConnected(connected bool) {
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(connected)
	}
}

func (c *client) recordError(errType string) {
	if c.metrics != nil {
		c.metrics.IncrementErrors(errType)
	}
}
