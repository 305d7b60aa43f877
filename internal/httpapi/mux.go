package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"

	"sensorhub/internal/utils"
)

// NewMux registers the operational endpoints and the catch-all 404. Feature
// modules add their own routes to the returned mux. live may be nil.
func NewMux(db DatabasePinger, broker BrokerStatus, live http.Handler, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, broker, logger)
	if live != nil {
		mux.Handle("GET /api/live", live)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		logger.Warn("unknown endpoint", "method", r.Method, "uri", r.URL.RequestURI())
		utils.WriteError(w, http.StatusNotFound, fmt.Sprintf("Endpoint not found: %s %s", r.Method, r.URL.RequestURI()))
	})
	return mux
}
