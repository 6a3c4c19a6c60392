package handler

import (
	"net/http"
	"strconv"
	"tani-assist-go/internal/service"
	"tani-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// HistoryHandler 处理对话日志的查询请求。
type HistoryHandler struct {
	service service.HistoryService
}

// NewHistoryHandler 创建一个新的 HistoryHandler。
func NewHistoryHandler(service service.HistoryService) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// List 分页返回当前用户的对话日志。
func (h *HistoryHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	result, err := h.service.List(c.Request.Context(), user.UserID, page, size)
	if err != nil {
		log.Errorf("History: list failed for user %d, error: %v", user.UserID, err)
		fail(c, http.StatusInternalServerError, "Failed to retrieve conversation history")
		return
	}
	success(c, result)
}

// Search 检索当前用户的对话日志。
func (h *HistoryHandler) Search(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	query := c.Query("q")
	if query == "" {
		fail(c, http.StatusBadRequest, "查询参数 q 不能为空")
		return
	}
	entries, err := h.service.Search(c.Request.Context(), user.UserID, query)
	if err != nil {
		log.Errorf("History: search failed for user %d, error: %v", user.UserID, err)
		fail(c, http.StatusInternalServerError, "检索失败")
		return
	}
	success(c, entries)
}
