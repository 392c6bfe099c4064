package public

import (
	"github.com/pluginhub/internal/constants"
	handlershared "github.com/pluginhub/internal/http/handlers/shared"
	"github.com/pluginhub/internal/http/response"
	"github.com/pluginhub/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	Email        string `json:"email" binding:"required"`
	UserType     *int   `json:"userType"`
	Provider     string `json:"provider"`
	ProviderID   string `json:"providerId"`
	ReferralCode string `json:"referralCode"`
}

// CreateUser 创建用户，并按推荐码来源链尝试归因
func (h *Handler) CreateUser(c *gin.Context) {
	referralCode := handlershared.ExtractReferralCode(c)

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Email is required", err)
		return
	}
	if req.UserType != nil && *req.UserType == constants.UserTypeAdmin {
		respondError(c, response.CodeForbidden, "Admin accounts cannot be self-registered", nil)
		return
	}

	result, err := h.UserService.Create(service.CreateUserInput{
		Email:        req.Email,
		UserType:     req.UserType,
		Provider:     req.Provider,
		ProviderID:   req.ProviderID,
		ReferralCode: referralCode,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.GetHeader("User-Agent"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Created(c, "User created successfully", result)
}

// GetMe 获取当前登录用户
func (h *Handler) GetMe(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	user, err := h.UserService.GetByID(uid)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, user)
}
