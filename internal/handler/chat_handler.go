package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"tani-assist-go/internal/model"
	"tani-assist-go/internal/service"
	"tani-assist-go/pkg/log"
	"tani-assist-go/pkg/token"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责对话相关的请求：会话读取、提问、快捷问题、重置以及 WebSocket 流式对话。
type ChatHandler struct {
	assistant     service.AssistantService
	userService   service.UserService
	jwtManager    *token.JWTManager
	maxImageBytes int64
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(assistant service.AssistantService, userService service.UserService, jwtManager *token.JWTManager, maxImageBytes int64) *ChatHandler {
	return &ChatHandler{
		assistant:     assistant,
		userService:   userService,
		jwtManager:    jwtManager,
		maxImageBytes: maxImageBytes,
	}
}

// sessionPayload 是对话接口的响应数据。
type sessionPayload struct {
	Session *model.Session `json:"session"`
	Render  *model.Render  `json:"render,omitempty"`
}

// MessageRequest 定义了 JSON 提问的请求体结构。
type MessageRequest struct {
	Text string `json:"text"`
}

// GetSession 返回当前会话（含跨日处理后的轮次、用量与每日提示）。
func (h *ChatHandler) GetSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sess, err := h.assistant.Open(c.Request.Context(), user)
	if err != nil {
		log.Errorf("GetSession: open session failed, userID: %d, error: %v", user.UserID, err)
		fail(c, http.StatusInternalServerError, "无法加载会话")
		return
	}
	if err := h.assistant.Save(c.Request.Context(), sess); err != nil {
		log.Errorf("GetSession: save session failed, userID: %d, error: %v", user.UserID, err)
	}
	success(c, sessionPayload{Session: sess})
}

// readQuestion 支持 JSON {"text": "..."} 与 multipart（text + image）两种提交方式。
func (h *ChatHandler) readQuestion(c *gin.Context) (service.Question, error) {
	var q service.Question
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req MessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return q, err
		}
		q.Text = req.Text
		return q, nil
	}

	q.Text = c.PostForm("text")
	fileHeader, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return q, nil
	}
	if err != nil {
		return q, err
	}
	file, err := fileHeader.Open()
	if err != nil {
		return q, err
	}
	defer file.Close()

	// 最多多读 1 字节，超限的图片交给 Submit 以错误轮次的形式拒绝
	var r io.Reader = file
	if h.maxImageBytes > 0 {
		r = io.LimitReader(file, h.maxImageBytes+1)
	}
	if q.Image, err = io.ReadAll(r); err != nil {
		return q, err
	}
	return q, nil
}

// SendMessage 处理一次提问。模型调用失败不会返回 HTTP 错误，而是通过 render.kind=error 告知前端。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	q, err := h.readQuestion(c)
	if err != nil {
		log.Warnf("SendMessage: invalid payload, userID: %d, error: %v", user.UserID, err)
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}

	ctx := c.Request.Context()
	sess, err := h.assistant.Open(ctx, user)
	if err != nil {
		log.Errorf("SendMessage: open session failed, userID: %d, error: %v", user.UserID, err)
		fail(c, http.StatusInternalServerError, "无法加载会话")
		return
	}
	next, render, err := h.assistant.Submit(ctx, sess, q)
	if errors.Is(err, service.ErrEmptyQuestion) {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Errorf("SendMessage: submit failed, userID: %d, error: %v", user.UserID, err)
		fail(c, http.StatusInternalServerError, "处理提问失败")
		return
	}
	h.saveAndRespond(c, next, render)
}

// QuickTopic 把快捷问题填入输入框。
func (h *ChatHandler) QuickTopic(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sess, err := h.assistant.Open(ctx, user)
	if err != nil {
		fail(c, http.StatusInternalServerError, "无法加载会话")
		return
	}
	next, render, err := h.assistant.QuickTopic(ctx, sess, c.Param("id"))
	if errors.Is(err, service.ErrUnknownTopic) {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "处理失败")
		return
	}
	h.saveAndRespond(c, next, render)
}

// ResetSession 清空当前对话。
func (h *ChatHandler) ResetSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sess, err := h.assistant.Open(ctx, user)
	if err != nil {
		fail(c, http.StatusInternalServerError, "无法加载会话")
		return
	}
	next, render, err := h.assistant.Reset(ctx, sess)
	if err != nil {
		fail(c, http.StatusInternalServerError, "处理失败")
		return
	}
	h.saveAndRespond(c, next, render)
}

func (h *ChatHandler) saveAndRespond(c *gin.Context, sess *model.Session, render model.Render) {
	if err := h.assistant.Save(c.Request.Context(), sess); err != nil {
		log.Errorf("保存会话失败, userID: %d, error: %v", sess.UserID, err)
		fail(c, http.StatusInternalServerError, "保存会话失败")
		return
	}
	success(c, sessionPayload{Session: sess, Render: &render})
}

// chunkWriter 将模型的原始分块包装成 {"chunk":"..."} 写入 WebSocket。
type chunkWriter struct {
	conn *websocket.Conn
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *chunkWriter) WriteMessage(messageType int, data []byte) error {
	b, _ := json.Marshal(map[string]string{"chunk": string(data)})
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON，附带渲染指令与最新用量。
func sendCompletion(conn *websocket.Conn, sess *model.Session, render *model.Render) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	if render != nil {
		notif["render"] = render
	}
	if sess != nil {
		notif["usage"] = gin.H{"count": sess.UsageCount, "limit": sess.DailyLimit, "remaining": sess.Remaining()}
	}
	b, _ := json.Marshal(notif)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

func sendError(conn *websocket.Conn, message string) {
	b, _ := json.Marshal(map[string]string{"error": message})
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

// Handle 处理一个传入的 WebSocket 连接，每条文本消息都是一次提问。
func (h *ChatHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyTyped(tokenString, token.TypeAccess)
	if err != nil {
		fail(c, http.StatusUnauthorized, "无效的 token")
		return
	}
	if revoked, err := h.userService.IsTokenRevoked(c.Request.Context(), tokenString); err != nil || revoked {
		fail(c, http.StatusUnauthorized, "token 已失效")
		return
	}
	user, err := h.userService.GetProfile(claims.UserID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "无法获取用户信息")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", user.Username)
	ctx := c.Request.Context()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Debugf("WebSocket 连接关闭: %v", err)
			return
		}

		// 兼容纯文本与 {"text": "..."} 两种格式
		text := string(message)
		if len(message) > 0 && message[0] == '{' {
			var req MessageRequest
			if err := json.Unmarshal(message, &req); err == nil {
				text = req.Text
			}
		}

		sess, err := h.assistant.Open(ctx, user)
		if err != nil {
			log.Errorf("WebSocket: open session failed, userID: %d, error: %v", user.UserID, err)
			sendError(conn, "服务暂时不可用，请稍后重试")
			sendCompletion(conn, nil, nil)
			continue
		}
		next, render, err := h.assistant.Submit(ctx, sess, service.Question{Text: text, Stream: &chunkWriter{conn: conn}})
		if err != nil {
			if !errors.Is(err, service.ErrEmptyQuestion) {
				log.Errorf("WebSocket: submit failed, userID: %d, error: %v", user.UserID, err)
			}
			msg := render.Message
			if msg == "" {
				msg = "处理提问失败"
			}
			sendError(conn, msg)
			sendCompletion(conn, sess, nil)
			continue
		}
		if err := h.assistant.Save(ctx, next); err != nil {
			log.Errorf("WebSocket: save session failed, userID: %d, error: %v", user.UserID, err)
		}
		if render.Kind == model.RenderError {
			sendError(conn, render.Message)
		}
		sendCompletion(conn, next, &render)
	}
}
