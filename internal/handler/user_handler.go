package handler

import (
	"errors"
	"net/http"
	"tani-assist-go/internal/service"
	"tani-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UserHandler 负责处理所有与用户相关的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterRequest 定义了用户注册 API 的请求体结构。
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=64"`
	Password    string `json:"password" binding:"required,min=6"`
	Name        string `json:"name" binding:"max=100"`
	Location    string `json:"location" binding:"max=100"`
	FarmingType string `json:"farmingType" binding:"max=50"`
}

// Register 处理用户注册请求。
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: Invalid request payload, error: %v", err)
		fail(c, http.StatusBadRequest, "无效的请求负载：用户名和密码不能为空，密码至少 6 位")
		return
	}

	user, err := h.userService.Register(service.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		Name:        req.Name,
		Location:    req.Location,
		FarmingType: req.FarmingType,
	})
	if errors.Is(err, service.ErrUserExists) {
		fail(c, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		log.Errorf("Register: User registration failed for '%s', error: %v", req.Username, err)
		fail(c, http.StatusInternalServerError, "注册失败")
		return
	}

	log.Infof("User '%s' registered successfully", user.Username)
	success(c, user)
}

// LoginRequest 定义了用户登录 API 的请求体结构。
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 处理用户登录请求。
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载：用户名和密码不能为空")
		return
	}

	accessToken, refreshToken, err := h.userService.Login(req.Username, req.Password)
	if err != nil {
		log.Warnf("Login: User authentication failed for '%s', error: %v", req.Username, err)
		fail(c, http.StatusUnauthorized, "无效的凭证")
		return
	}

	log.Infof("User '%s' logged in successfully", req.Username)
	success(c, gin.H{
		"token":        accessToken,
		"refreshToken": refreshToken,
	})
}

// GetProfile 获取当前登录用户的个人信息。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	success(c, user)
}

// UpdateProfileRequest 定义了修改画像的请求体结构。
type UpdateProfileRequest struct {
	Name        string `json:"name" binding:"max=100"`
	Location    string `json:"location" binding:"max=100"`
	FarmingType string `json:"farmingType" binding:"max=50"`
}

// UpdateProfile 修改当前用户的姓名、地区和种植类型。
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	updated, err := h.userService.UpdateProfile(user.UserID, service.ProfileUpdate{
		Name:        req.Name,
		Location:    req.Location,
		FarmingType: req.FarmingType,
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusNotFound, "用户不存在")
		return
	}
	if err != nil {
		log.Errorf("UpdateProfile: failed for user %d, error: %v", user.UserID, err)
		fail(c, http.StatusInternalServerError, "更新失败")
		return
	}
	success(c, updated)
}

// Logout 处理用户登出逻辑。
func (h *UserHandler) Logout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.userService.Logout(c.Request.Context(), c.GetString("token")); err != nil {
		log.Error("Logout: Failed to logout", err)
		fail(c, http.StatusInternalServerError, "登出失败")
		return
	}
	log.Infof("User '%s' logged out successfully", user.Username)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "登出成功"})
}
