package services

import (
	"math"

	"github.com/scrapsail/scrapsail-backend/internal/dto"
)

func normalizePage(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit, (page - 1) * limit
}

func newPagination(page, limit int, total int64) dto.Pagination {
	return dto.Pagination{
		Current: page,
		Pages:   int(math.Ceil(float64(total) / float64(limit))),
		Total:   total,
		Limit:   limit,
	}
}
