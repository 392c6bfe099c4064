package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequestIDHeader 请求 ID 响应头
const RequestIDHeader = "X-Request-ID"

// Response 统一响应结构
type Response struct {
	Success bool        `json:"success"` // 是否成功
	Message string      `json:"message"` // 提示消息
	Error   *string     `json:"error"`   // 错误原因，成功时为 null
	Data    interface{} `json:"data"`    // 数据内容
}

// Pagination 分页信息
type Pagination struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int64 `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	ItemsPerPage int   `json:"itemsPerPage"`
	HasNextPage  bool  `json:"hasNextPage"`
	HasPrevPage  bool  `json:"hasPrevPage"`
}

// NewPagination 构建分页信息
func NewPagination(page, limit int, total int64) Pagination {
	var totalPages int64
	if limit > 0 {
		totalPages = (total + int64(limit) - 1) / int64(limit)
	}
	return Pagination{
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalItems:   total,
		ItemsPerPage: limit,
		HasNextPage:  int64(page) < totalPages,
		HasPrevPage:  page > 1,
	}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	SuccessWithMsg(c, MsgSuccess, data)
}

// SuccessWithMsg 成功响应（自定义消息）
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: msg,
		Data:    data,
	})
}

// Created 201 响应
func Created(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: msg,
		Data:    data,
	})
}

// Error 错误响应，message 与 error 均为对外文案
func Error(c *gin.Context, statusCode int, msg string) {
	ErrorWithData(c, statusCode, msg, nil)
}

// ErrorWithData 错误响应（带数据）
func ErrorWithData(c *gin.Context, statusCode int, msg string, data interface{}) {
	if statusCode < http.StatusBadRequest {
		statusCode = http.StatusBadRequest
	}
	attachRequestID(c)
	reason := msg
	c.JSON(statusCode, Response{
		Success: false,
		Message: msg,
		Error:   &reason,
		Data:    data,
	})
}

// Abort 错误响应并终止后续中间件
func Abort(c *gin.Context, statusCode int, msg string) {
	Error(c, statusCode, msg)
	c.Abort()
}

// NotFound 404响应
func NotFound(c *gin.Context, msg string) {
	Error(c, CodeNotFound, msg)
}

// Unauthorized 401响应
func Unauthorized(c *gin.Context, msg string) {
	Error(c, CodeUnauthorized, msg)
}

// Forbidden 403响应
func Forbidden(c *gin.Context, msg string) {
	Error(c, CodeForbidden, msg)
}

// BadRequest 400响应
func BadRequest(c *gin.Context, msg string) {
	Error(c, CodeBadRequest, msg)
}

// Internal 500响应，不暴露内部错误
func Internal(c *gin.Context) {
	Error(c, CodeInternal, MsgInternal)
}

func attachRequestID(c *gin.Context) {
	if c == nil {
		return
	}
	value, ok := c.Get("request_id")
	if !ok {
		return
	}
	if id, ok := value.(string); ok && id != "" {
		c.Header(RequestIDHeader, id)
	}
}
