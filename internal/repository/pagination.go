package repository

import (
	"fmt"

	"relgraph_backend/internal/util"

	"gorm.io/gorm"
)

// keysetAfter 追加键集分页谓词，配合 ORDER BY sortCol DESC, idCol DESC 使用
func keysetAfter(q *gorm.DB, sortCol, idCol string, after *util.Cursor) *gorm.DB {
	if after == nil {
		return q
	}
	return q.Where(
		fmt.Sprintf("((%s < ?) OR (%s = ? AND %s < ?))", sortCol, sortCol, idCol),
		after.CreatedAt, after.CreatedAt, after.ID,
	)
}

func keysetOrder(sortCol, idCol string) string {
	return fmt.Sprintf("%s DESC, %s DESC", sortCol, idCol)
}

// paginate 先统计总数再取一页，q 不能带 Select/Order
func paginate[T any](q *gorm.DB, columns, order string, limit, offset int) ([]T, int64, error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	results := make([]T, 0, limit)
	if total == 0 {
		return results, 0, nil
	}
	err := q.Session(&gorm.Session{}).
		Select(columns).
		Order(order).
		Offset(offset).
		Limit(limit).
		Scan(&results).Error
	return results, total, err
}
