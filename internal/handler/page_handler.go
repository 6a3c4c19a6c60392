package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PageHandler 提供内嵌的单页前端。
type PageHandler struct {
	page []byte
}

// NewPageHandler 创建一个新的 PageHandler。
func NewPageHandler(page []byte) *PageHandler {
	return &PageHandler{page: page}
}

// Index 返回首页。
func (h *PageHandler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", h.page)
}
