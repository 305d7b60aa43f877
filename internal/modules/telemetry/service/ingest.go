package service

import (
	"context"
	"encoding/json"
	"strings"

	"sensorhub/internal/modules/telemetry/types"
)

const diagnosticPrefix = "Error processing message: "

var requiredFields = []string{
	"temperature_inside",
	"temperature_outside",
	"voltage",
	"current",
	"power",
	"soc",
}

// PayloadError reports every field that kept a message from becoming a reading.
type PayloadError struct {
	Missing []string
	Invalid []string
}

func (e *PayloadError) Error() string {
	if len(e.Missing) > 0 {
		return "Missing required fields: " + strings.Join(e.Missing, ", ")
	}
	return "Invalid numeric fields: " + strings.Join(e.Invalid, ", ")
}

// ParseMeasurements decodes a JSON object carrying the six required numeric
// fields. A field that is absent or null is missing; one that is present but
// not a number is invalid. Unknown fields are ignored.
func ParseMeasurements(payload []byte) (types.Measurements, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return types.Measurements{}, err
	}

	var m types.Measurements
	dest := map[string]*float64{
		"temperature_inside":  &m.TemperatureInside,
		"temperature_outside": &m.TemperatureOutside,
		"voltage":             &m.Voltage,
		"current":             &m.Current,
		"power":               &m.Power,
		"soc":                 &m.SOC,
	}

	perr := &PayloadError{}
	for _, field := range requiredFields {
		v, ok := raw[field]
		if !ok || string(v) == "null" {
			perr.Missing = append(perr.Missing, field)
			continue
		}
		if err := json.Unmarshal(v, dest[field]); err != nil {
			perr.Invalid = append(perr.Invalid, field)
		}
	}
	if len(perr.Missing) > 0 || len(perr.Invalid) > 0 {
		return types.Measurements{}, perr
	}
	return m, nil
}

// Ingest turns one raw payload into exactly one stored row: a reading, or a
// diagnostic describing why the payload was rejected or could not be stored.
// It never fails; a diagnostic that cannot be written is only logged.
func (s *Service) Ingest(ctx context.Context, payload []byte) {
	m, err := ParseMeasurements(payload)
	if err != nil {
		s.recordFailure(ctx, err)
		return
	}

	rec, err := s.repository.InsertReading(ctx, m)
	if err != nil {
		s.recordFailure(ctx, err)
		return
	}

	s.logger.Info("reading stored", "id", rec.ID)
	s.logger.Debug("reading values",
		"temperature_inside", m.TemperatureInside,
		"temperature_outside", m.TemperatureOutside,
		"voltage", m.Voltage,
		"current", m.Current,
		"power", m.Power,
		"soc", m.SOC,
	)
	if s.live != nil {
		s.live.PublishReading(rec)
	}
}

func (s *Service) recordFailure(ctx context.Context, cause error) {
	msg := diagnosticPrefix + cause.Error()
	s.logger.Error("mqtt message error", "error", cause)

	// The diagnostic gets its own deadline so a message that timed out can
	// still leave a trace.
	diagCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.diagnosticTimeout)
	defer cancel()

	if _, err := s.repository.InsertDiagnostic(diagCtx, msg); err != nil {
		s.logger.Error("failed to log error to database", "error", err, "diagnostic", msg)
	}
}
