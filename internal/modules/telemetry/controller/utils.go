package controller

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"sensorhub/internal/modules/telemetry/service"
	"sensorhub/internal/modules/telemetry/types"
)

const (
	defaultLimit = 10
	defaultPage  = 1
	dateOnly     = "2006-01-02"
	dateReason   = "Expected an RFC 3339 timestamp or YYYY-MM-DD date."
)

// parsePaging reads limit and page, defaulting to 10 and 1. limit is
// checked first so a request with both wrong reports limit.
func parsePaging(r *http.Request) (page, limit int, err error) {
	q := r.URL.Query()
	limit, err = parsePositiveParam(q.Get("limit"), "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	page, err = parsePositiveParam(q.Get("page"), "page", defaultPage)
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func parsePositiveParam(s, name string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, &service.ValidationError{Param: name}
	}
	return n, nil
}

// parseDateParam accepts RFC 3339 (with or without fractional seconds) or a
// bare YYYY-MM-DD, which is read as midnight UTC. An empty value is no bound.
func parseDateParam(s, name string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse(dateOnly, s); err == nil {
		return &t, nil
	}
	return nil, &service.ValidationError{Param: name, Reason: dateReason}
}

func parseListDataQuery(r *http.Request) (service.ListTelemetryParams, error) {
	page, limit, err := parsePaging(r)
	if err != nil {
		return service.ListTelemetryParams{}, err
	}
	q := r.URL.Query()
	start, err := parseDateParam(q.Get("startDate"), "startDate")
	if err != nil {
		return service.ListTelemetryParams{}, err
	}
	end, err := parseDateParam(q.Get("endDate"), "endDate")
	if err != nil {
		return service.ListTelemetryParams{}, err
	}
	return service.ListTelemetryParams{
		Page:  page,
		Limit: limit,
		Range: types.TimeRange{Start: start, End: end},
	}, nil
}
