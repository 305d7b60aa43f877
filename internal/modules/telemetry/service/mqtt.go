package service

import "context"

// MessageSubscriber is the broker side the service attaches its ingest
// handler to.
type MessageSubscriber interface {
	SetMessageHandler(handler func(ctx context.Context, topic string, payload []byte))
}

// Register sets up the telemetry module's MQTT message handler.
func (s *Service) Register(subscriber MessageSubscriber) {
	subscriber.SetMessageHandler(func(ctx context.Context, topic string, payload []byte) {
		s.logger.Debug("processing telemetry message", "topic", topic, "bytes", len(payload))
		s.Ingest(ctx, payload)
	})
}
