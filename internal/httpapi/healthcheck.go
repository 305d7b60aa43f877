package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"sensorhub/internal/utils"
)

const healthTimeout = 2 * time.Second

type DatabasePinger interface {
	Ping(ctx context.Context) error
}

type BrokerStatus interface {
	IsConnected() bool
}

type healthServices struct {
	Database string `json:"database"`
	MQTT     string `json:"mqtt"`
}

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthchecker struct {
	db     DatabasePinger
	broker BrokerStatus
	logger *slog.Logger
}

func (h *healthchecker) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	dbUp := true
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("failed to check database connectivity", "error", err)
		dbUp = false
	}
	mqttUp := h.broker.IsConnected()

	resp := healthResponse{
		Status:    "healthy",
		Timestamp: utils.Timestamp(),
		Services: healthServices{
			Database: connectedString(dbUp),
			MQTT:     connectedString(mqttUp),
		},
	}
	status := http.StatusOK
	if !dbUp || !mqttUp {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	utils.WriteJSON(w, status, resp)
}

func connectedString(up bool) string {
	if up {
		return "connected"
	}
	return "disconnected"
}

func registerHealthcheck(mux *http.ServeMux, db DatabasePinger, broker BrokerStatus, logger *slog.Logger) {
	h := &healthchecker{db: db, broker: broker, logger: logger}
	mux.HandleFunc("GET /health", h.handleHealth)
}
