package repository

import "gorm.io/gorm"

// maxPageSize 单页最大条数
const maxPageSize = 100

// applyPagination 页码从 1 开始，pageSize 超过上限时截断，非正数时不分页
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return query.Limit(pageSize).Offset(pageOffset(page, pageSize))
}

func pageOffset(page, pageSize int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * pageSize
}
