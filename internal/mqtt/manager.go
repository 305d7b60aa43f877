package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"sensorhub/internal/config"
)

const (
	subscribeQoS     = byte(1) // At least once delivery
	tokenPoll        = 200 * time.Millisecond
	subscribeTimeout = 5 * time.Second
	unsubTimeout     = 2 * time.Second
	quiesceMillis    = 250
)

// Client is the subset of the paho client the Manager drives.
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// MessageHandler processes one inbound payload. ctx is cancelled when the
// per-message timeout elapses or the Manager is closed.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Manager owns the single broker session of the process. It keeps one topic
// subscribed, reconnects on a fixed interval after the session drops, and
// gives up with a *FatalError once the reconnect budget is spent. paho's own
// auto-reconnect is disabled so every attempt is counted here.
type Manager struct {
	cfg      config.Config
	clientID string
	logger   *slog.Logger
	client   Client

	mu       sync.RWMutex
	state    State
	attempts int
	handler  MessageHandler

	lost      chan error
	stopCh    chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once

	inflight  sync.WaitGroup
	msgCtx    context.Context
	msgCancel context.CancelFunc
}

func NewManager(cfg config.Config, logger *slog.Logger) *Manager {
	return newManager(cfg, logger, func(opts *mqtt.ClientOptions) Client {
		return mqtt.NewClient(opts)
	})
}

func newManager(cfg config.Config, logger *slog.Logger, newClient func(*mqtt.ClientOptions) Client) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	msgCtx, msgCancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg,
		clientID:  newClientID(cfg.MQTTClientID),
		logger:    logger.With("component", "mqtt"),
		lost:      make(chan error, 1),
		stopCh:    make(chan struct{}),
		msgCtx:    msgCtx,
		msgCancel: msgCancel,
	}
	m.client = newClient(m.clientOptions())
	return m
}

// newClientID appends a random suffix so two instances never share a session.
func newClientID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:8])
}

func (m *Manager) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.MQTTBroker)
	opts.SetClientID(m.clientID)
	if m.cfg.MQTTUsername != "" {
		opts.SetUsername(m.cfg.MQTTUsername)
		opts.SetPassword(m.cfg.MQTTPassword)
	}

	// Session settings
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(false)

	// Keepalive / timeouts
	opts.SetConnectTimeout(m.cfg.MQTTConnectTimeout)
	opts.SetKeepAlive(m.cfg.MQTTKeepAlive)
	opts.SetPingTimeout(10 * time.Second)

	if m.cfg.MQTTTLSInsecure {
		m.logger.Warn("mqtt TLS certificate verification disabled", "broker", m.cfg.MQTTBroker)
		//nolint:gosec // G402 – explicit opt-in via MQTT_TLS_INSECURE
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.handleConnectionLost(err)
	})
	return opts
}

// SetMessageHandler sets the handler for payloads on the configured topic.
func (m *Manager) SetMessageHandler(handler func(ctx context.Context, topic string, payload []byte)) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the session is up and subscribed.
func (m *Manager) IsConnected() bool {
	return m.State() == Connected && m.client.IsConnected()
}

func (m *Manager) ClientID() string {
	return m.clientID
}

// Run connects, then supervises the session until ctx is done or Close is
// called. It returns nil on a normal stop and a *FatalError when the broker
// stays unreachable for MQTTMaxReconnectAttempts consecutive attempts. A
// failed initial connect is retried under the same budget.
func (m *Manager) Run(ctx context.Context) error {
	m.setState(Connecting)
	if err := m.connectOnce(ctx); err != nil {
		if m.stopping(ctx) {
			return nil
		}
		m.logger.Warn("mqtt initial connect failed", "broker", m.cfg.MQTTBroker, "error", err)
		if err := m.reconnect(ctx, err); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.stopCh:
			return nil
		case cause := <-m.lost:
			if err := m.reconnect(ctx, cause); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-m.stopCh:
		return true
	default:
		return false
	}
}

func (m *Manager) reconnect(ctx context.Context, cause error) error {
	maxAttempts := m.cfg.MQTTMaxReconnectAttempts
	for {
		m.mu.Lock()
		if m.state == Closed {
			m.mu.Unlock()
			return nil
		}
		m.attempts++
		attempt := m.attempts
		m.mu.Unlock()

		if attempt > maxAttempts {
			m.setState(Offline)
			m.logger.Error("max reconnection attempts reached", "max", maxAttempts, "error", cause)
			return &FatalError{Attempts: maxAttempts, Err: cause}
		}

		m.setState(Reconnecting)
		m.logger.Warn("attempting to reconnect to mqtt broker",
			"attempt", attempt,
			"max", maxAttempts,
			"in", m.cfg.MQTTReconnectInterval,
		)

		timer := time.NewTimer(m.cfg.MQTTReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-m.stopCh:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		err := m.connectOnce(ctx)
		if err == nil {
			return nil
		}
		if m.stopping(ctx) {
			return nil
		}
		m.logger.Warn("mqtt reconnect failed", "attempt", attempt, "error", err)
		cause = err
	}
}

// connectOnce performs one connect + subscribe. The attempt counter is only
// reset once the subscription is in place.
func (m *Manager) connectOnce(ctx context.Context) error {
	token := m.client.Connect()

	// Wait in a ctx/stop-aware loop.
	for {
		if token.WaitTimeout(tokenPoll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			break
		}

		select {
		case <-ctx.Done():
			m.client.Disconnect(0)
			return ctx.Err()
		case <-m.stopCh:
			m.client.Disconnect(0)
			return ErrClosed
		default:
		}
	}

	if !m.setState(Connected) {
		m.client.Disconnect(0)
		return ErrClosed
	}
	m.logger.Info("connected to mqtt broker", "broker", m.cfg.MQTTBroker, "client_id", m.clientID)

	if err := m.subscribe(); err != nil {
		m.client.Disconnect(0)
		m.setState(Disconnected)
		return fmt.Errorf("subscribe: %w", err)
	}

	m.mu.Lock()
	m.attempts = 0
	m.mu.Unlock()
	return nil
}

func (m *Manager) subscribe() error {
	topic := m.cfg.MQTTTopic
	token := m.client.Subscribe(topic, subscribeQoS, m.onMessage)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	m.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", subscribeQoS)
	return nil
}

func (m *Manager) handleConnectionLost(err error) {
	if !m.setState(Reconnecting) {
		return
	}
	m.logger.Warn("mqtt connection lost", "error", err)
	select {
	case m.lost <- err:
	default:
	}
}

// onMessage hands each payload to the handler on its own goroutine with its
// own deadline. Payloads that arrive after Close are dropped.
func (m *Manager) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m.mu.RLock()
	if m.state == Closed || m.handler == nil {
		m.mu.RUnlock()
		m.logger.Warn("dropping mqtt message", "topic", msg.Topic(), "state", m.State())
		return
	}
	handler := m.handler
	m.inflight.Add(1)
	m.mu.RUnlock()

	topic, payload := msg.Topic(), msg.Payload()
	m.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	go func() {
		defer m.inflight.Done()
		defer func() {
			if p := recover(); p != nil {
				m.logger.Error("mqtt message handler panicked", "topic", topic, "panic", p)
			}
		}()

		ctx, cancel := context.WithTimeout(m.msgCtx, m.cfg.MessageTimeout)
		defer cancel()
		handler(ctx, topic, payload)
	}()
}

// setState records a transition and logs it. Closed is terminal: once there,
// every further transition is refused and false is returned.
func (m *Manager) setState(to State) bool {
	m.mu.Lock()
	from := m.state
	if from == Closed {
		m.mu.Unlock()
		return to == Closed
	}
	m.state = to
	attempt := m.attempts
	m.mu.Unlock()

	if from != to {
		m.logger.Log(context.Background(), to.logLevel(), "mqtt state",
			"from", from.String(),
			"to", to.String(),
			"attempt", attempt,
		)
	}
	return true
}

// Close unsubscribes, releases the session, and waits for in-flight
// handlers until ctx is done. It is idempotent and the Closed state is final.
func (m *Manager) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		m.stopOnce.Do(func() { close(m.stopCh) })

		wasConnected := m.State() == Connected
		m.setState(Closed)

		if wasConnected && m.client.IsConnected() {
			token := m.client.Unsubscribe(m.cfg.MQTTTopic)
			if !token.WaitTimeout(unsubTimeout) {
				m.logger.Warn("mqtt unsubscribe timed out", "topic", m.cfg.MQTTTopic)
			} else if uerr := token.Error(); uerr != nil {
				m.logger.Warn("mqtt unsubscribe failed", "topic", m.cfg.MQTTTopic, "error", uerr)
			}
		}

		// Disconnect without holding m.mu to avoid lock contention/deadlocks.
		m.client.Disconnect(quiesceMillis)

		done := make(chan struct{})
		go func() {
			m.inflight.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("waiting for in-flight messages: %w", ctx.Err())
		}
		m.msgCancel()
		m.logger.Info("mqtt manager closed")
	})
	return err
}

// IsFatal reports whether err means the broker session is gone for good.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
