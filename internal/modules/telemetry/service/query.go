package service

import (
	"context"
	"fmt"
	"math"

	"sensorhub/internal/modules/telemetry/types"
)

const positiveIntegerReason = "It must be a positive integer."

// ValidationError is a caller input error. It maps to a 400 response and is
// never logged as a system fault.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = positiveIntegerReason
	}
	return fmt.Sprintf("Invalid '%s' parameter. %s", e.Param, reason)
}

type ListTelemetryParams struct {
	Page  int
	Limit int
	Range types.TimeRange
}

func validatePaging(page, limit int) error {
	if limit <= 0 {
		return &ValidationError{Param: "limit"}
	}
	if page <= 0 {
		return &ValidationError{Param: "page"}
	}
	return nil
}

// pageOffset returns the row offset of page. A page too far out to address
// is clamped to the largest offset, which yields an empty page.
func pageOffset(page, limit int) int {
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}

// ListTelemetry returns one newest-first page of readings. total_pages is
// derived from the filtered count.
func (s *Service) ListTelemetry(ctx context.Context, p ListTelemetryParams) (types.Page[types.Reading], error) {
	if err := validatePaging(p.Page, p.Limit); err != nil {
		return types.Page[types.Reading]{}, err
	}
	rows, total, err := s.repository.ListReadings(ctx, p.Range, p.Limit, pageOffset(p.Page, p.Limit))
	if err != nil {
		return types.Page[types.Reading]{}, err
	}
	return types.NewPage(rows, p.Page, p.Limit, total), nil
}

func (s *Service) ListDiagnostics(ctx context.Context, page, limit int) (types.Page[types.Diagnostic], error) {
	if err := validatePaging(page, limit); err != nil {
		return types.Page[types.Diagnostic]{}, err
	}
	rows, total, err := s.repository.ListDiagnostics(ctx, limit, pageOffset(page, limit))
	if err != nil {
		return types.Page[types.Diagnostic]{}, err
	}
	return types.NewPage(rows, page, limit, total), nil
}

// LatestReading returns nil when nothing has been stored yet.
func (s *Service) LatestReading(ctx context.Context) (*types.Reading, error) {
	return s.repository.GetLatestReading(ctx)
}

// ClearTelemetry deletes every reading. Clearing an empty table succeeds.
func (s *Service) ClearTelemetry(ctx context.Context) error {
	if err := s.repository.DeleteAllReadings(ctx); err != nil {
		return err
	}
	s.logger.Warn("all telemetry readings deleted")
	return nil
}
