package pagination

import "testing"

func TestPageRequest_Defaults(t *testing.T) {
	tests := []struct {
		name       string
		in         PageRequest
		page, size int
	}{
		{"zero", PageRequest{}, 1, DefaultPageSize},
		{"explicit", PageRequest{Page: 3, PageSize: 5}, 3, 5},
		{"negative", PageRequest{Page: -2, PageSize: -1}, 1, DefaultPageSize},
		{"oversized", PageRequest{Page: 1, PageSize: 5000}, 1, MaxPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.in
			req.Defaults()
			if req.Page != tt.page || req.PageSize != tt.size {
				t.Errorf("Defaults() = %d/%d, want %d/%d", req.Page, req.PageSize, tt.page, tt.size)
			}
		})
	}
}

func TestNewPageResponse(t *testing.T) {
	t.Run("partial_last_page", func(t *testing.T) {
		resp := NewPageResponse([]int{1, 2}, 1, 2, 5)
		if resp.TotalPages != 3 || !resp.HasNext {
			t.Errorf("got %d pages, has_next=%v", resp.TotalPages, resp.HasNext)
		}
	})

	t.Run("last_page", func(t *testing.T) {
		resp := NewPageResponse([]int{5}, 3, 2, 5)
		if resp.HasNext {
			t.Error("last page must not report a next page")
		}
	})

	t.Run("nil_data_is_empty_slice", func(t *testing.T) {
		resp := NewPageResponse[int](nil, 1, 20, 0)
		if resp.Data == nil || resp.TotalPages != 0 {
			t.Errorf("unexpected empty response %+v", resp)
		}
	})

	t.Run("zero_page_size", func(t *testing.T) {
		resp := NewPageResponse[int](nil, 1, 0, 7)
		if resp.TotalPages != 0 {
			t.Errorf("TotalPages = %d, want 0", resp.TotalPages)
		}
	})
}
