package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Yogesh-MG/Iotfarming/internal/device"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/mqtt"
	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
)

const (
	defaultHandlerTimeout = 10 * time.Second
	defaultQueueSize      = 256
)

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Ingestor accepts device traffic. *irrigation.Service implements it.
type Ingestor interface {
	SubmitReading(ctx context.Context, deviceID string, moisture float64, ackIDs []int64) (*irrigation.IngestResult, error)
	Acknowledge(ctx context.Context, deviceID string, ids []int64) (int, error)
}

// Devices resolves API keys and device IDs. *device.Registry implements it.
type Devices interface {
	Authenticate(ctx context.Context, rawKey string) (*device.Device, error)
	GetDevice(ctx context.Context, id string) (*device.Device, error)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge. Zero values take defaults.
type Options struct {
	Topics         mqtt.Topics
	QoS            byte
	HandlerTimeout time.Duration
	QueueSize      int
}

// Metrics counts bridge traffic since start.
type Metrics struct {
	ReadingsAccepted uint64 `json:"readings_accepted"`
	AcksAccepted     uint64 `json:"acks_accepted"`
	Rejected         uint64 `json:"rejected"`
	Published        uint64 `json:"published"`
	PublishFailed    uint64 `json:"publish_failed"`
	Dropped          uint64 `json:"dropped"`
}

type outbound struct {
	topic    string
	payload  []byte
	retained bool
}

// Bridge moves device traffic between MQTT and the irrigation service.
type Bridge struct {
	client  MQTTClient
	ingest  Ingestor
	devices Devices
	topics  mqtt.Topics
	qos     byte
	timeout time.Duration
	outbox  chan outbound

	logger   Logger
	loggerMu sync.RWMutex

	ctx    context.Context //nolint:containedctx // bridge lifetime, cancelled by Stop
	cancel context.CancelFunc
	wg     sync.WaitGroup

	readings      atomic.Uint64
	acks          atomic.Uint64
	rejected      atomic.Uint64
	published     atomic.Uint64
	publishFailed atomic.Uint64
	dropped       atomic.Uint64
}

// New creates a bridge. Call Start to subscribe and begin publishing.
func New(client MQTTClient, ingest Ingestor, devices Devices, opts Options) *Bridge {
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = defaultHandlerTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Bridge{
		client:  client,
		ingest:  ingest,
		devices: devices,
		topics:  opts.Topics,
		qos:     opts.QoS,
		timeout: opts.HandlerTimeout,
		outbox:  make(chan outbound, opts.QueueSize),
		logger:  noopLogger{},
		ctx:     context.Background(),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) log() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// Start subscribes to device readings and acknowledgements and starts the
// publish worker. The worker stops when ctx is cancelled or Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	for _, topic := range b.deviceTopics() {
		if err := b.client.Subscribe(topic, b.qos, b.HandleMessage); err != nil {
			b.cancel()
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	b.wg.Add(1)
	go b.publishLoop()

	b.log().Info("MQTT device bridge started",
		"readings", b.topics.AllReadings(),
		"acks", b.topics.AllAcks(),
	)
	return nil
}

// Stop removes the device subscriptions, cancels the publish worker and
// waits for it to exit. Queued messages that were not yet published are
// discarded.
func (b *Bridge) Stop() {
	if b.cancel == nil {
		return
	}
	if b.client.IsConnected() {
		for _, topic := range b.deviceTopics() {
			if err := b.client.Unsubscribe(topic); err != nil {
				b.log().Warn("MQTT unsubscribe failed", "topic", topic, "error", err)
			}
		}
	}
	b.cancel()
	b.wg.Wait()
}

func (b *Bridge) deviceTopics() []string {
	return []string{b.topics.AllReadings(), b.topics.AllAcks()}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg := <-b.outbox:
			if err := b.client.Publish(msg.topic, msg.payload, b.qos, msg.retained); err != nil {
				b.publishFailed.Add(1)
				b.log().Warn("MQTT publish failed", "topic", msg.topic, "error", err)
				continue
			}
			b.published.Add(1)
		}
	}
}

// HandleMessage dispatches an inbound device message by topic kind. It has
// the mqtt.MessageHandler signature.
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	kind, hardwareID, ok := b.topics.ParseDevice(topic)
	if !ok {
		b.rejected.Add(1)
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	var err error
	switch kind {
	case mqtt.KindReading:
		err = b.handleReading(ctx, hardwareID, payload)
	case mqtt.KindAck:
		err = b.handleAck(ctx, hardwareID, payload)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	if err != nil {
		b.rejected.Add(1)
	}
	return err
}

func (b *Bridge) handleReading(ctx context.Context, hardwareID string, payload []byte) error {
	var msg ReadingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if msg.Moisture == nil {
		return fmt.Errorf("%w: moisture is required", ErrInvalidPayload)
	}

	dev, err := b.authenticate(ctx, hardwareID, msg.APIKey)
	if err != nil {
		return err
	}

	res, err := b.ingest.SubmitReading(ctx, dev.ID, *msg.Moisture, msg.AckCommandIDs)
	if err != nil {
		return fmt.Errorf("reading from %s: %w", hardwareID, err)
	}
	b.readings.Add(1)
	b.log().Debug("MQTT reading accepted",
		"device_id", dev.ID,
		"reading_id", res.Reading.ID,
		"acknowledged", res.Acknowledged,
	)
	return nil
}

func (b *Bridge) handleAck(ctx context.Context, hardwareID string, payload []byte) error {
	var msg AckMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	dev, err := b.authenticate(ctx, hardwareID, msg.APIKey)
	if err != nil {
		return err
	}

	n, err := b.ingest.Acknowledge(ctx, dev.ID, msg.CommandIDs)
	if err != nil {
		return fmt.Errorf("ack from %s: %w", hardwareID, err)
	}
	b.acks.Add(1)
	b.log().Debug("MQTT ack accepted", "device_id", dev.ID, "acknowledged", n)
	return nil
}

func (b *Bridge) authenticate(ctx context.Context, hardwareID, apiKey string) (*device.Device, error) {
	dev, err := b.devices.Authenticate(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("authenticating %s: %w", hardwareID, err)
	}
	if dev.HardwareID != hardwareID {
		return nil, fmt.Errorf("%w: key for %s used on %s", ErrTopicMismatch, dev.HardwareID, hardwareID)
	}
	return dev, nil
}

// Notify implements irrigation.Notifier. Commands and status changes are
// queued for publishing; when the queue is full the message is dropped.
func (b *Bridge) Notify(ctx context.Context, ev irrigation.Event) {
	var build func(hardwareID string) (outbound, error)

	switch ev.Kind {
	case irrigation.EventCommand:
		if ev.Command == nil {
			return
		}
		build = func(hw string) (outbound, error) {
			p, err := json.Marshal(NewCommandMessage(ev.Command))
			return outbound{topic: b.topics.Command(hw), payload: p}, err
		}
	case irrigation.EventStatus, irrigation.EventAutoMode:
		if ev.Status == nil {
			return
		}
		build = func(hw string) (outbound, error) {
			p, err := json.Marshal(NewStatusMessage(ev.Status))
			return outbound{topic: b.topics.Status(hw), payload: p, retained: true}, err
		}
	default:
		return
	}

	dev, err := b.devices.GetDevice(ctx, ev.DeviceID)
	if err != nil {
		b.log().Warn("MQTT notify: device lookup failed", "device_id", ev.DeviceID, "error", err)
		return
	}
	msg, err := build(dev.HardwareID)
	if err != nil {
		b.log().Error("MQTT notify: encoding failed", "device_id", ev.DeviceID, "error", err)
		return
	}

	select {
	case b.outbox <- msg:
	default:
		b.dropped.Add(1)
		b.log().Warn("MQTT outbox full, dropping message", "topic", msg.topic)
	}
}

// GetMetrics returns a snapshot of the bridge counters.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		ReadingsAccepted: b.readings.Load(),
		AcksAccepted:     b.acks.Load(),
		Rejected:         b.rejected.Load(),
		Published:        b.published.Load(),
		PublishFailed:    b.publishFailed.Load(),
		Dropped:          b.dropped.Load(),
	}
}
