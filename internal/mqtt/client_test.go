package mqtt

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/observability/metrics"
)

// fakeToken completes immediately unless hang is set
type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error, hang bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if !hang {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records publishes; unimplemented methods panic through the nil embed
type fakePaho struct {
	pahomqtt.Client
	mu          sync.Mutex
	connected   bool
	connectErr  error
	publishErr  error
	hangPublish bool
	messages    []published
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = f.connectErr == nil
	return newToken(f.connectErr, false)
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic, qos, retained, payload.([]byte)})
	return newToken(f.publishErr, f.hangPublish)
}

func newTestClient(t *testing.T, fake *fakePaho) (*client, *metrics.MQTTMetrics) {
	t.Helper()
	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Broker = "tcp://127.0.0.1:1883"
	cfg.ClientID = "platewatch-test"
	cfg.QoS = 1
	cfg.PublishTimeout = 50 * time.Millisecond
	c := newClient(cfg, m)
	c.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client { return fake }
	return c, m
}

func TestConnectAndPublish(t *testing.T) {
	t.Parallel()

	fake := &fakePaho{}
	c, m := newTestClient(t, fake)

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())

	require.NoError(t, c.Publish(context.Background(), "platewatch/events", []byte(`{"license_plate":"ABC123"}`)))
	require.Len(t, fake.messages, 1)
	assert.Equal(t, "platewatch/events", fake.messages[0].topic)
	assert.Equal(t, byte(1), fake.messages[0].qos)
	assert.False(t, fake.messages[0].retained)

	expected := `
# HELP mqtt_connection_status Current MQTT connection status (1 for connected, 0 for disconnected)
# TYPE mqtt_connection_status gauge
mqtt_connection_status 1
# HELP mqtt_messages_published_total Total number of MQTT messages published
# TYPE mqtt_messages_published_total counter
mqtt_messages_published_total 1
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected),
		"mqtt_connection_status", "mqtt_messages_published_total"))

	c.Disconnect()
	assert.False(t, c.IsConnected())
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, &fakePaho{})
	err := c.Publish(context.Background(), "t", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
}

func TestConnectFailure(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, &fakePaho{connectErr: fmt.Errorf("not authorized")})
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnect))
	assert.False(t, c.IsConnected())
}

func TestPublishTimeout(t *testing.T) {
	t.Parallel()

	fake := &fakePaho{hangPublish: true}
	c, _ := newTestClient(t, fake)
	require.NoError(t, c.Connect(context.Background()))

	start := time.Now()
	err := c.Publish(context.Background(), "t", []byte("x"))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInvalidBrokerURL(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, &fakePaho{})
	c.config.Broker = "://bad"
	err := c.Connect(context.Background())
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestPublishDoesNotBlockOtherPublishes(t *testing.T) {
	t.Parallel()

	fake := &fakePaho{hangPublish: true}
	c, _ := newTestClient(t, fake)
	c.config.PublishTimeout = time.Minute
	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for range 2 {
		wg.Go(func() { _ = c.Publish(ctx, "t", []byte("x")) })
	}

	// both publishes reach paho while neither token has completed
	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.messages) == 2
	}, time.Second, 10*time.Millisecond)
	assert.True(t, c.IsConnected())

	cancel()
	wg.Wait()
}

// fakeBroker accepts MQTT connections on addr and records published topics.
type fakeBroker struct {
	listener net.Listener
	topics   chan string
}

func startFakeBroker(t *testing.T, addr string) *fakeBroker {
	t.Helper()
	l, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	b := &fakeBroker{listener: l, topics: make(chan string, 10)}
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go b.serve(conn)
		}
	}()
	return b
}

func (b *fakeBroker) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	for {
		pkt, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}
		switch p := pkt.(type) {
		case *packets.ConnectPacket:
			ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
			if err := ack.Write(conn); err != nil {
				return
			}
		case *packets.PublishPacket:
			b.topics <- p.TopicName
		case *packets.DisconnectPacket:
			return
		}
	}
}

func TestConnectRetriesUntilBrokerIsUp(t *testing.T) {
	t.Parallel()

	// reserve a port, then free it so the first attempt is refused
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Broker = "tcp://" + addr
	cfg.ClientID = "platewatch-retry"
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.ConnectRetryInterval = 50 * time.Millisecond
	cfg.PublishTimeout = time.Second
	c := newClient(cfg, m)
	t.Cleanup(c.Disconnect)

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnect))
	assert.False(t, c.IsConnected())

	broker := startFakeBroker(t, addr)

	require.Eventually(t, c.IsConnected, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, c.Publish(context.Background(), "platewatch/events", []byte(`{"license_plate":"ABC123"}`)))

	select {
	case topic := <-broker.topics:
		assert.Equal(t, "platewatch/events", topic)
	case <-time.After(5 * time.Second):
		t.Fatal("broker never received the publish")
	}
}
