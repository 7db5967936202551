package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/config"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// paho invokes handlers on its own goroutines; a handler that blocks holds
// up delivery on that subscription. A returned error is logged and the
// message is still acknowledged.
type MessageHandler func(topic string, payload []byte) error

// Client is the graydispatch connection to the MQTT broker.
//
// It announces the service on the status topic (with an LWT for crashes),
// reconnects automatically and restores subscriptions after every
// reconnect. All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	subs subscriptionSet

	connected atomic.Bool
	connects  atomic.Int64 // successful connections, initial one included
	lastError atomic.Pointer[string]

	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Status is a point-in-time view of the broker connection.
type Status struct {
	Connected     bool     `json:"connected"`
	Broker        string   `json:"broker"`
	ClientID      string   `json:"client_id"`
	Subscriptions []string `json:"subscriptions"`
	Reconnects    int64    `json:"reconnects"`
	LastError     string   `json:"last_error,omitempty"`
}

// Connect dials the broker described by cfg and waits up to
// defaultConnectTimeout for the first connection. On success the online
// status has been queued on graylogic/dispatch/status.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT reconnecting", "broker", c.brokerAddr())
		}
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: %s: no answer after %v", ErrConnectionFailed, c.brokerAddr(), defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.brokerAddr(), err)
	}

	// The on-connect handler runs asynchronously; the token already proves
	// the connection is up.
	c.connected.Store(true)
	return c, nil
}

// onConnected runs on the initial connection and on every reconnect.
func (c *Client) onConnected() {
	c.connected.Store(true)
	c.connects.Add(1)

	c.subs.each(func(s subscription) {
		// A failed restore surfaces on the next reconnect or health check.
		c.client.Subscribe(s.topic, s.qos, c.deliverTo(s.handler))
	})
	c.client.Publish(Topics{}.Status(), byte(c.cfg.QoS), true, buildOnlinePayload(c.cfg.Broker.ClientID))

	c.hookMu.RLock()
	hook := c.onConnect
	c.hookMu.RUnlock()
	if hook != nil {
		hook()
	}
}

func (c *Client) onConnectionLost(err error) {
	c.connected.Store(false)
	if err != nil {
		msg := err.Error()
		c.lastError.Store(&msg)
	}

	c.hookMu.RLock()
	hook := c.onDisconnect
	c.hookMu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// Close publishes the graceful offline status and disconnects. Closing a
// client that never connected is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(Topics{}.Status(), byte(c.cfg.QoS), true, buildOfflinePayload(c.cfg.Broker.ClientID))
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		if last := c.lastError.Load(); last != nil {
			return fmt.Errorf("%w: %s", ErrNotConnected, *last)
		}
		return ErrNotConnected
	}
	return nil
}

// HealthDetails implements the API's detailed health view.
func (c *Client) HealthDetails() any {
	return c.Status()
}

// Status returns the current connection state and subscriptions.
func (c *Client) Status() Status {
	s := Status{
		Connected:     c.IsConnected(),
		Broker:        c.brokerAddr(),
		ClientID:      c.cfg.Broker.ClientID,
		Subscriptions: c.subs.topics(),
	}
	if n := c.connects.Load(); n > 1 {
		s.Reconnects = n - 1
	}
	if last := c.lastError.Load(); last != nil {
		s.LastError = *last
	}
	return s
}

// IsConnected reports whether the broker connection is currently up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// SetOnConnect sets a callback run after every (re)connection.
func (c *Client) SetOnConnect(callback func()) {
	c.hookMu.Lock()
	c.onConnect = callback
	c.hookMu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.hookMu.Lock()
	c.onDisconnect = callback
	c.hookMu.Unlock()
}

// SetLogger sets the logger used for handler errors and panics.
// Without one they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.hookMu.Lock()
	c.logger = logger
	c.hookMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.logger
}

func (c *Client) brokerAddr() string {
	return fmt.Sprintf("%s:%d", c.cfg.Broker.Host, c.cfg.Broker.Port)
}

// deliverTo adapts handler to paho, recovering panics and logging errors.
func (c *Client) deliverTo(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
