package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublishClient struct {
	fakeClient
	pubMu      sync.Mutex
	publishErr error
	sent       []published
}

func (c *fakePublishClient) Publish(topic string, qos byte, _ bool, payload any) mqtt.Token {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if c.publishErr != nil {
		return newToken(c.publishErr)
	}
	c.sent = append(c.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newToken(nil)
}

func newTestPublisher(fc *fakePublishClient) *Publisher {
	p := NewPublisher(PublisherConfig{Broker: "tcp://localhost:1883", ClientID: "simulator", Topic: "sensors/telemetry"},
		slog.New(slog.DiscardHandler))
	p.client = fc
	return p
}

func TestPublisher_RequiresConnection(t *testing.T) {
	p := newTestPublisher(&fakePublishClient{})
	assert.ErrorContains(t, p.Publish(map[string]float64{"soc": 1}), "not connected")
}

func TestPublisher_PublishJSON(t *testing.T) {
	fc := &fakePublishClient{}
	p := newTestPublisher(fc)
	require.NoError(t, p.Connect(context.Background()))

	require.NoError(t, p.Publish(map[string]float64{"soc": 80}))
	require.NoError(t, p.Publish([]byte("not json")))

	require.Len(t, fc.sent, 2)
	assert.Equal(t, "sensors/telemetry", fc.sent[0].topic)
	assert.Equal(t, byte(1), fc.sent[0].qos)
	assert.JSONEq(t, `{"soc":80}`, string(fc.sent[0].payload))
	assert.Equal(t, "not json", string(fc.sent[1].payload))
}

func TestPublisher_PublishError(t *testing.T) {
	fc := &fakePublishClient{publishErr: errors.New("broker gone")}
	p := newTestPublisher(fc)
	require.NoError(t, p.Connect(context.Background()))
	assert.ErrorContains(t, p.Publish(map[string]int{}), "broker gone")
}

func TestPublisher_ConnectAfterDisconnect(t *testing.T) {
	fc := &fakePublishClient{}
	p := newTestPublisher(fc)
	require.NoError(t, p.Connect(context.Background()))

	p.Disconnect()
	p.Disconnect()
	assert.False(t, p.IsConnected())
	assert.ErrorIs(t, p.Connect(context.Background()), ErrClosed)
}

func TestPublisher_ConnectFailure(t *testing.T) {
	fc := &fakePublishClient{fakeClient: fakeClient{failAll: errors.New("refused")}}
	p := newTestPublisher(fc)
	assert.ErrorContains(t, p.Connect(context.Background()), "refused")
}
