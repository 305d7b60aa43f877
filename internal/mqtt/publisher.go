package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

// PublisherConfig describes the broker session of a telemetry producer.
type PublisherConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

type publishClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// Publisher sends JSON telemetry to a single topic. Unlike Manager it lets
// paho reconnect on its own, since a producer has no budget to enforce.
type Publisher struct {
	client    publishClient
	cfg       PublisherConfig
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPublisher(cfg PublisherConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		cfg:    cfg,
		logger: logger.With("component", "mqtt-publisher"),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(newClientID(cfg.ClientID))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		p.logger.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits for the initial session and respects ctx and Disconnect.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return ErrClosed
	default:
	}
	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()
	for {
		if token.WaitTimeout(tokenPoll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			p.setConnected(true)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return ErrClosed
		default:
		}
	}
}

// Publish marshals v to JSON and sends it at QoS 1. Raw []byte values are
// sent as-is so malformed payloads can be produced on purpose.
func (p *Publisher) Publish(v any) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	data, ok := v.([]byte)
	if !ok {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	topic := p.cfg.Topic
	token := p.client.Publish(topic, subscribeQoS, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		p.logger.Error("failed to publish telemetry", "topic", topic, "error", err)
		return fmt.Errorf("publish telemetry: %w", err)
	}

	p.logger.Debug("published telemetry", "topic", topic, "size", len(data))
	return nil
}

func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect is idempotent. Connect returns ErrClosed afterwards.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.client.Disconnect(quiesceMillis)
	p.setConnected(false)
	p.logger.Info("mqtt disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
