package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"sensorhub/internal/modules/telemetry/service"
	"sensorhub/internal/modules/telemetry/types"
)

type TelemetryService interface {
	ListTelemetry(ctx context.Context, p service.ListTelemetryParams) (types.Page[types.Reading], error)
	ListDiagnostics(ctx context.Context, page, limit int) (types.Page[types.Diagnostic], error)
	LatestReading(ctx context.Context) (*types.Reading, error)
	ClearTelemetry(ctx context.Context) error
}

type TelemetryController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type telemetryControllerImpl struct {
	service TelemetryService
	logger  *slog.Logger
}

func NewTelemetryController(service TelemetryService, logger *slog.Logger) TelemetryController {
	if logger == nil {
		logger = slog.Default()
	}
	return &telemetryControllerImpl{service: service, logger: logger}
}

// RegisterRoutes mounts the read API. List responses can run to thousands
// of rows, so they are gzip-compressed when the client accepts it.
func (c *telemetryControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/data", gzhttp.GzipHandler(http.HandlerFunc(c.handleListData)))
	mux.Handle("GET /api/logs", gzhttp.GzipHandler(http.HandlerFunc(c.handleListLogs)))
	mux.HandleFunc("GET /api/data/latest", c.handleLatest)
	mux.HandleFunc("DELETE /api/data", c.handleClearData)
}
