package services

import "gorm.io/gorm"

// Page is one slice of a listing plus the totals needed to render pagers.
type Page[T any] struct {
	Items    []T   `json:"data"`
	Total    int64 `json:"total"`
	Page     int   `json:"currentPage"`
	PerPage  int   `json:"perPage"`
	LastPage int   `json:"lastPage"`
}

// paginate counts query before applying preloads so relations are only
// loaded for the returned slice.
func paginate[T any](query *gorm.DB, page, perPage int, preloads ...string) (Page[T], error) {
	if page < 1 {
		page = 1
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page[T]{}, err
	}

	find := query.Session(&gorm.Session{})
	for _, p := range preloads {
		find = find.Preload(p)
	}
	items := make([]T, 0, perPage)
	err := find.
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&items).Error
	if err != nil {
		return Page[T]{}, err
	}

	last := int((total + int64(perPage) - 1) / int64(perPage))
	if last < 1 {
		last = 1
	}
	return Page[T]{Items: items, Total: total, Page: page, PerPage: perPage, LastPage: last}, nil
}
