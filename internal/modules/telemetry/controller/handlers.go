package controller

import (
	"context"
	"errors"
	"net/http"

	"sensorhub/internal/db"
	"sensorhub/internal/modules/telemetry/service"
	"sensorhub/internal/utils"
)

func (c *telemetryControllerImpl) handleListData(w http.ResponseWriter, r *http.Request) {
	params, err := parseListDataQuery(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	page, err := c.service.ListTelemetry(r.Context(), params)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Data fetched successfully", page)
}

func (c *telemetryControllerImpl) handleListLogs(w http.ResponseWriter, r *http.Request) {
	pageNum, limit, err := parsePaging(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	page, err := c.service.ListDiagnostics(r.Context(), pageNum, limit)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Logs fetched successfully", page)
}

func (c *telemetryControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := c.service.LatestReading(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if latest == nil {
		utils.WriteError(w, http.StatusNotFound, "No telemetry data available")
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Latest data fetched successfully", latest)
}

func (c *telemetryControllerImpl) handleClearData(w http.ResponseWriter, r *http.Request) {
	if err := c.service.ClearTelemetry(r.Context()); err != nil {
		c.writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "All sensor data has been deleted successfully", map[string]any{"data": nil})
}

// writeError maps service errors onto stable status codes. Caller input
// errors are not logged as faults.
func (c *telemetryControllerImpl) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.WriteError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, db.ErrPoolTimeout):
		c.logger.Warn("request rejected, database busy", "method", r.Method, "path", r.URL.Path, "error", err)
		utils.WriteError(w, http.StatusServiceUnavailable, "Database is busy, please retry later")
	case errors.Is(err, context.Canceled):
		c.logger.Debug("request cancelled", "method", r.Method, "path", r.URL.Path)
	default:
		c.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
