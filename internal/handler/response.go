// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"tani-assist-go/internal/model"

	"github.com/gin-gonic/gin"
)

// success 以统一的信封格式返回数据。
func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

// fail 以统一的信封格式返回错误。
func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// currentUser 取出由 AuthMiddleware 注入的用户。
func currentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get("user")
	if !ok {
		fail(c, http.StatusUnauthorized, "未认证用户或无法获取用户信息")
		return nil, false
	}
	user, ok := v.(*model.User)
	if !ok || user == nil {
		fail(c, http.StatusInternalServerError, "用户数据类型错误")
		return nil, false
	}
	return user, true
}
