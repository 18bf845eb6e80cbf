package pagination

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

// Page is a 1-based offset page request.
type Page struct {
	Page     int `form:"page,default=1" validate:"gte=1"`
	PageSize int `form:"page_size,default=50" validate:"gte=1,lte=250"`
}

// Normalize fills zero values with defaults. Out-of-range values are left for validation.
func (p Page) Normalize() Page {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	return p
}

// Offset returns the row offset of the page.
func (p Page) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// PageInfo describes the returned page.
type PageInfo struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	HasMore  bool  `json:"has_more"`
}

// BuildPageInfo computes HasMore from the total row count.
func BuildPageInfo(p Page, total int64) PageInfo {
	return PageInfo{
		Total:    total,
		Page:     p.Page,
		PageSize: p.PageSize,
		HasMore:  int64(p.Offset()+p.PageSize) < total,
	}
}
