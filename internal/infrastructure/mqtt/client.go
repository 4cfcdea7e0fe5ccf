package mqtt

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/config"
)

// Client is the control plane's link to the field broker. It owns the
// irrigation topic tree under one prefix, announces the core on the
// retained system topic and re-subscribes the device filters after every
// reconnect. All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected atomic.Bool

	mu     sync.RWMutex
	hooks  ConnectionHooks
	logger Logger
}

// Logger is satisfied by logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ConnectionHooks are called on paho goroutines. OnConnect runs after the
// device filters have been restored, on the first connect and every
// reconnect.
type ConnectionHooks struct {
	OnConnect func()
	OnLost    func(err error)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives the concrete topic a device published on and the
// raw payload. A returned error is logged; the message is still consumed.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker described by cfg and blocks until the session is
// up or defaultConnectTimeout passes. A will on {prefix}/system/status marks
// the core offline if the process dies without calling Close.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		topics:        Topics{Prefix: cfg.TopicPrefix},
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.warn("MQTT reconnecting", "broker", cfg.Broker.Host, "prefix", c.topics.prefix())
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: %w after %v", ErrConnectionFailed, ErrTimeout, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously; mark the link up now so the
	// caller can subscribe straight away.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)

	if failed := c.restoreSubscriptions(); len(failed) > 0 {
		c.warn("MQTT subscriptions not restored", "topics", failed)
	}
	if err := c.announce(buildOnlinePayload(c.cfg.Broker.ClientID)); err != nil {
		c.warn("MQTT online status not published", "error", err)
	}

	if hook := c.connectionHooks().OnConnect; hook != nil {
		hook()
	}
}

func (c *Client) handleLost(err error) {
	c.connected.Store(false)
	if hook := c.connectionHooks().OnLost; hook != nil {
		hook(err)
	}
}

// restoreSubscriptions re-subscribes every remembered filter and returns the
// filters the broker refused. Filters stay tracked either way so the next
// reconnect retries them.
func (c *Client) restoreSubscriptions() []string {
	var failed []string
	for _, sub := range c.snapshot() {
		if err := await(c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler)), ErrSubscribeFailed); err != nil {
			failed = append(failed, sub.topic)
		}
	}
	return failed
}

// snapshot copies the tracked subscriptions in topic order.
func (c *Client) snapshot() []subscription {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].topic < subs[j].topic })
	return subs
}

// announce publishes a retained core status on {prefix}/system/status.
func (c *Client) announce(payload []byte) error {
	return await(c.client.Publish(c.topics.SystemStatus(), c.QoS(), true, payload), ErrPublishFailed)
}

// Close marks the core offline on the system topic, lets in-flight publishes
// drain and disconnects. Calling Close on a closed client is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		if err := c.announce(buildOfflinePayload(c.cfg.Broker.ClientID)); err != nil {
			c.warn("MQTT offline status not published", "error", err)
		}
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the session is currently up.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured default QoS level.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// SetHooks replaces the connection hooks.
func (c *Client) SetHooks(hooks ConnectionHooks) {
	c.mu.Lock()
	c.hooks = hooks
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures and reconnect events.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) connectionHooks() ConnectionHooks {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hooks
}

func (c *Client) warn(msg string, args ...any) {
	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// wrapHandler adapts a MessageHandler to paho, recovering and logging
// handler panics.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.mu.RLock()
				logger := c.logger
				c.mu.RUnlock()
				if logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.warn("MQTT message rejected", "topic", msg.Topic(), "error", err)
		}
	}
}
