package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

func GetPage(c *gin.Context) int {
	pageStr := c.DefaultQuery("page", "1")
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func GetPageSize(c *gin.Context) int {
	pageSizeStr := c.DefaultQuery("page_size", "50")
	pageSize, err := strconv.Atoi(pageSizeStr)
	if err != nil || pageSize < 1 || pageSize > 1000 {
		return 50
	}
	return pageSize
}

func GetOffset(page, pageSize int) int {
	return (page - 1) * pageSize
}

func GetLimit(page, pageSize int) int {
	return pageSize
}
