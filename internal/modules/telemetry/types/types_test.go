package types

import (
	"math"
	"testing"
)

func TestNewPage(t *testing.T) {
	tests := []struct {
		name      string
		page      int
		limit     int
		total     int
		wantPages int
	}{
		{"empty store", 1, 10, 0, 1},
		{"exact fit", 1, 10, 10, 1},
		{"partial last page", 3, 10, 25, 3},
		{"limit of one", 1, 1, 7, 7},
		{"huge limit", 1, math.MaxInt, 5, 1},
		{"huge total", 1, 2, math.MaxInt, math.MaxInt/2 + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewPage[int](nil, tt.page, tt.limit, tt.total)
			if got.Data == nil {
				t.Error("Data is nil; want empty slice")
			}
			want := Pagination{CurrentPage: tt.page, TotalPages: tt.wantPages, TotalRecords: tt.total, RecordsPerPage: tt.limit}
			if got.Pagination != want {
				t.Errorf("pagination = %+v; want %+v", got.Pagination, want)
			}
		})
	}
}
