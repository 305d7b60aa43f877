package types

import "time"

// Measurements are the six values a device reports in one telemetry message.
type Measurements struct {
	TemperatureInside  float64 `json:"temperature_inside"`
	TemperatureOutside float64 `json:"temperature_outside"`
	Voltage            float64 `json:"voltage"`
	Current            float64 `json:"current"`
	Power              float64 `json:"power"`
	SOC                float64 `json:"soc"`
}

// Reading is a persisted telemetry row. ID and Timestamp are assigned by the store.
type Reading struct {
	ID int64 `json:"id"`
	Measurements
	Timestamp time.Time `json:"timestamp"`
}

// Diagnostic is a persisted note about a message that could not be ingested.
type Diagnostic struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TimeRange bounds a reading query. Both ends are inclusive and optional.
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

type Pagination struct {
	CurrentPage    int `json:"current_page"`
	TotalPages     int `json:"total_pages"`
	TotalRecords   int `json:"total_records"`
	RecordsPerPage int `json:"records_per_page"`
}

type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// NewPage builds page metadata. total_pages is never below 1, so an empty
// result still reports one (empty) page.
func NewPage[T any](items []T, page, limit, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 1
	if total > 0 {
		totalPages = (total-1)/limit + 1
	}
	return Page[T]{
		Data: items,
		Pagination: Pagination{
			CurrentPage:    page,
			TotalPages:     totalPages,
			TotalRecords:   total,
			RecordsPerPage: limit,
		},
	}
}
