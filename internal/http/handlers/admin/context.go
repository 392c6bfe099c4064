package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/pluginhub/internal/http/handlers/shared"
	"github.com/pluginhub/internal/http/response"

	"github.com/gin-gonic/gin"
)

func operatorID(c *gin.Context) uint {
	return handlershared.UserIDFromContext(c)
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || value == 0 {
		respondError(c, response.CodeBadRequest, "Invalid "+name, nil)
		return 0, false
	}
	return uint(value), true
}
