package public

import (
	"strconv"
	"strings"

	"github.com/pluginhub/internal/constants"
	handlershared "github.com/pluginhub/internal/http/handlers/shared"
	"github.com/pluginhub/internal/http/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func getUserID(c *gin.Context) (uint, bool) {
	return handlershared.CurrentUserID(c)
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondServiceError(c *gin.Context, err error) {
	handlershared.RespondServiceError(c, err)
}

// parseUintParam 解析路径中的 ID 参数
func parseUintParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || value == 0 {
		respondError(c, response.CodeBadRequest, "Invalid "+name, nil)
		return 0, false
	}
	return uint(value), true
}

// authorizeUserParam 路径中的用户必须是当前用户或管理员
func authorizeUserParam(c *gin.Context) (uint, bool) {
	targetID, ok := parseUintParam(c, "userId")
	if !ok {
		return 0, false
	}
	currentID, ok := getUserID(c)
	if !ok {
		return 0, false
	}
	if currentID != targetID && handlershared.CurrentUserType(c) != constants.UserTypeAdmin {
		respondError(c, response.CodeForbidden, "Forbidden", nil)
		return 0, false
	}
	return targetID, true
}
