package public

import (
	"strings"

	handlershared "github.com/pluginhub/internal/http/handlers/shared"
	"github.com/pluginhub/internal/http/response"
	"github.com/pluginhub/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetAllPlugins 插件目录分页列表
func (h *Handler) GetAllPlugins(c *gin.Context) {
	page, limit := handlershared.ParsePagination(c)
	result, err := h.PluginService.List(repository.PluginListFilter{
		Page:       page,
		PageSize:   limit,
		Search:     strings.TrimSpace(c.Query("search")),
		PluginType: strings.TrimSpace(c.Query("pluginType")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Plugins retrieved successfully", result)
}

// GetPluginWithVersions 获取插件及其全部版本
func (h *Handler) GetPluginWithVersions(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	plugin, err := h.PluginService.GetWithVersions(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Plugin retrieved successfully", plugin)
}
