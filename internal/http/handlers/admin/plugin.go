package admin

import (
	"github.com/pluginhub/internal/http/response"
	"github.com/pluginhub/internal/service"

	"github.com/gin-gonic/gin"
)

// CreatePlugin 创建插件及其全部版本，整体在一个事务内完成
func (h *Handler) CreatePlugin(c *gin.Context) {
	var req service.CreatePluginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}
	plugin, err := h.PluginService.CreateWithVersions(req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_plugin_created", "plugin_id", plugin.ID, "operator_user_id", operatorID(c))
	response.Created(c, "Plugin created successfully", plugin)
}
