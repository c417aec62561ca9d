package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseOffsetParams(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		wantPage     int
		wantPageSize int
		wantOffset   int
		wantErr      bool
	}{
		{
			name:         "defaults",
			query:        "",
			wantPage:     1,
			wantPageSize: DefaultPageSize,
			wantOffset:   0,
		},
		{
			name:         "custom page and size",
			query:        "page=3&page_size=10",
			wantPage:     3,
			wantPageSize: 10,
			wantOffset:   20,
		},
		{
			name:         "page_size capped",
			query:        "page_size=500",
			wantPageSize: MaxPageSize,
			wantPage:     1,
			wantOffset:   0,
		},
		{
			name:    "negative page",
			query:   "page=-1",
			wantErr: true,
		},
		{
			name:    "zero page",
			query:   "page=0",
			wantErr: true,
		},
		{
			name:    "non-numeric page_size",
			query:   "page_size=abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			p, err := ParseOffsetParams(r)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseOffsetParams() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if p.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", p.Page, tt.wantPage)
			}
			if p.PageSize != tt.wantPageSize {
				t.Errorf("PageSize = %d, want %d", p.PageSize, tt.wantPageSize)
			}
			if p.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", p.Offset, tt.wantOffset)
			}
		})
	}
}

func TestNewOffsetPage(t *testing.T) {
	type item struct{ Name string }

	tests := []struct {
		name           string
		itemCount      int
		params         OffsetParams
		totalItems     int
		wantTotalPages int
	}{
		{
			name:           "first of multiple pages",
			itemCount:      10,
			params:         OffsetParams{Page: 1, PageSize: 10},
			totalItems:     25,
			wantTotalPages: 3,
		},
		{
			name:           "single page",
			itemCount:      3,
			params:         OffsetParams{Page: 1, PageSize: 10},
			totalItems:     3,
			wantTotalPages: 1,
		},
		{
			name:           "exact fit",
			itemCount:      10,
			params:         OffsetParams{Page: 1, PageSize: 10},
			totalItems:     10,
			wantTotalPages: 1,
		},
		{
			name:           "empty",
			itemCount:      0,
			params:         OffsetParams{Page: 1, PageSize: 10},
			totalItems:     0,
			wantTotalPages: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]item, tt.itemCount)
			page := NewOffsetPage(items, tt.params, tt.totalItems)

			if len(page.Items) != tt.itemCount {
				t.Errorf("Items length = %d, want %d", len(page.Items), tt.itemCount)
			}
			if page.TotalPages != tt.wantTotalPages {
				t.Errorf("TotalPages = %d, want %d", page.TotalPages, tt.wantTotalPages)
			}
			if page.TotalItems != tt.totalItems {
				t.Errorf("TotalItems = %d, want %d", page.TotalItems, tt.totalItems)
			}
		})
	}
}

func TestPaginate(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	t.Run("middle page", func(t *testing.T) {
		page := Paginate(items, OffsetParams{Page: 2, PageSize: 10, Offset: 10})
		if len(page.Items) != 10 {
			t.Fatalf("Items length = %d, want 10", len(page.Items))
		}
		if page.Items[0] != 10 {
			t.Errorf("Items[0] = %d, want 10", page.Items[0])
		}
		if page.TotalItems != 25 || page.TotalPages != 3 {
			t.Errorf("TotalItems/TotalPages = %d/%d, want 25/3", page.TotalItems, page.TotalPages)
		}
	})

	t.Run("last partial page", func(t *testing.T) {
		page := Paginate(items, OffsetParams{Page: 3, PageSize: 10, Offset: 20})
		if len(page.Items) != 5 {
			t.Fatalf("Items length = %d, want 5", len(page.Items))
		}
	})

	t.Run("offset beyond end", func(t *testing.T) {
		page := Paginate(items, OffsetParams{Page: 10, PageSize: 10, Offset: 90})
		if len(page.Items) != 0 {
			t.Errorf("Items length = %d, want 0", len(page.Items))
		}
		if page.TotalItems != 25 {
			t.Errorf("TotalItems = %d, want 25", page.TotalItems)
		}
	})
}
