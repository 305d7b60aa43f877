package telemetry

import (
	"log/slog"
	"net/http"

	"sensorhub/internal/db"
	"sensorhub/internal/modules/telemetry/controller"
	"sensorhub/internal/modules/telemetry/repository"
	"sensorhub/internal/modules/telemetry/service"
)

// RegisterFeature wires the telemetry module: the ingest handler on the
// broker subscription and the read API on mux. live may be nil.
func RegisterFeature(mux *http.ServeMux, database *db.DB, subscriber service.MessageSubscriber, live service.ReadingPublisher, logger *slog.Logger) {
	logger = logger.With("module", "telemetry")

	opts := []service.Option{service.WithLogger(logger)}
	if live != nil {
		opts = append(opts, service.WithPublisher(live))
	}

	telemetryRepository := repository.NewRepository(database)
	telemetryService := service.NewService(telemetryRepository, opts...)
	telemetryService.Register(subscriber)

	telemetryController := controller.NewTelemetryController(telemetryService, logger)
	telemetryController.RegisterRoutes(mux)
}
