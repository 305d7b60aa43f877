package service

import (
	"log/slog"
	"time"

	"sensorhub/internal/modules/telemetry/repository"
	"sensorhub/internal/modules/telemetry/types"
)

const defaultDiagnosticTimeout = 5 * time.Second

// ReadingPublisher receives every reading after it has been committed.
type ReadingPublisher interface {
	PublishReading(rec types.Reading)
}

type Service struct {
	repository        repository.TelemetryRepository
	live              ReadingPublisher
	logger            *slog.Logger
	diagnosticTimeout time.Duration
}

type Option func(*Service)

// WithPublisher forwards stored readings to p.
func WithPublisher(p ReadingPublisher) Option {
	return func(s *Service) { s.live = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(repository repository.TelemetryRepository, opts ...Option) *Service {
	s := &Service{
		repository:        repository,
		logger:            slog.Default(),
		diagnosticTimeout: defaultDiagnosticTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
