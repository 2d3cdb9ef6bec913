package handler

import (
	"net/http"
	"time"

	"chat-insights-go/internal/config"
	"chat-insights-go/pkg/hash"
	"chat-insights-go/pkg/log"
	"chat-insights-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责管理员登录。
type AuthHandler struct {
	admin      config.AdminConfig
	jwtManager *token.JWTManager
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(admin config.AdminConfig, jwtManager *token.JWTManager) *AuthHandler {
	return &AuthHandler{admin: admin, jwtManager: jwtManager}
}

// LoginRequest 定义了登录 API 的请求体结构。
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 校验管理员账号密码并签发 access token。
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		respondError(c, http.StatusBadRequest, "无效的请求负载：用户名和密码不能为空")
		return
	}

	if req.Username != h.admin.Username || !hash.CheckPasswordHash(req.Password, h.admin.PasswordHash) {
		log.Warnf("Login: 登录失败, username: %s", req.Username)
		respondError(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	accessToken, expiresAt, err := h.jwtManager.GenerateToken(req.Username, token.RoleAdmin)
	if err != nil {
		log.Error("Login: 生成 token 失败", err)
		respondError(c, http.StatusInternalServerError, "生成 token 失败")
		return
	}

	log.Infof("User '%s' logged in successfully", req.Username)
	respondOK(c, "Login successful", gin.H{
		"token":     accessToken,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}
