package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		page, size int
		wantPage   int
		wantSize   int
		wantOffset int
	}{
		{"defaults", 0, 0, 1, DefaultPageSize, 0},
		{"second page", 2, 10, 2, 10, 10},
		{"negative page", -3, 5, 1, 5, 0},
		{"oversized page", 3, 1000, 3, MaxPageSize, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Normalize(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantSize, p.Limit())
			assert.Equal(t, tt.wantOffset, p.Offset())
		})
	}
}

func TestPagination_Info(t *testing.T) {
	p := Normalize(2, 20)

	assert.Equal(t, PageInfo{Page: 2, PageSize: 20, Total: 41, TotalPages: 3}, p.Info(41))
	assert.Equal(t, 0, p.TotalPages(0))
	assert.Equal(t, 2, p.TotalPages(40))
}

func TestPagination_ZeroValue(t *testing.T) {
	var p Pagination
	assert.Equal(t, 0, p.Offset())
	assert.Equal(t, DefaultPageSize, p.Limit())
}
