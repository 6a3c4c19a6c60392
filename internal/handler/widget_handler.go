package handler

import (
	"net/http"
	"tani-assist-go/internal/model"
	"tani-assist-go/internal/service"
	"tani-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// WidgetHandler 处理侧边栏小工具的请求。
type WidgetHandler struct {
	widgets   service.WidgetService
	assistant service.AssistantService
}

// NewWidgetHandler 创建一个新的 WidgetHandler。
func NewWidgetHandler(widgets service.WidgetService, assistant service.AssistantService) *WidgetHandler {
	return &WidgetHandler{widgets: widgets, assistant: assistant}
}

// Tip 返回今日提示，优先使用会话中缓存的提示。
func (h *WidgetHandler) Tip(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sess, err := h.assistant.Open(c.Request.Context(), user)
	if err != nil {
		log.Warnf("Tip: open session failed, userID: %d, error: %v", user.UserID, err)
		sess = nil
	}
	success(c, gin.H{"tip": h.widgets.Tip(sess)})
}

func (h *WidgetHandler) Prices(c *gin.Context) {
	success(c, h.widgets.Prices())
}

func (h *WidgetHandler) QuickTopics(c *gin.Context) {
	success(c, h.widgets.QuickTopics())
}

// Usage 返回今日用量与进度。
func (h *WidgetHandler) Usage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.widgets.Usage(user.UserID)
	if err != nil {
		log.Errorf("Usage: failed for user %d, error: %v", user.UserID, err)
		fail(c, http.StatusInternalServerError, "无法获取用量")
		return
	}
	success(c, view)
}

// AnalyzeSoil 按规则表分析提交的土壤读数。
func (h *WidgetHandler) AnalyzeSoil(c *gin.Context) {
	var reading model.SoilReading
	if err := c.ShouldBindJSON(&reading); err != nil {
		fail(c, http.StatusBadRequest, "无效的土壤读数")
		return
	}
	success(c, h.widgets.AnalyzeSoil(reading))
}

// SampleSoil 返回一份模拟读数及其分析。
func (h *WidgetHandler) SampleSoil(c *gin.Context) {
	success(c, h.widgets.SampleSoil())
}

// Diseases 按作物查询常见病害。
func (h *WidgetHandler) Diseases(c *gin.Context) {
	diseases, err := h.widgets.Diseases(c.Query("plant"))
	if err != nil {
		log.Errorf("Diseases: query failed, error: %v", err)
		fail(c, http.StatusInternalServerError, "查询失败")
		return
	}
	success(c, diseases)
}
