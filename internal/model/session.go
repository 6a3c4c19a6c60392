package model

import "time"

// 对话轮次的角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleError     = "error"
)

// 助手轮次的类别：正常回答或提示性消息（离题提醒等）。
const (
	KindAnswer   = "answer"
	KindAdvisory = "advisory"
	KindError    = "error"
)

// ChatTurn 是会话缓冲区中的一条消息，追加后不再修改。
type ChatTurn struct {
	Role      string    `json:"role"`
	Kind      string    `json:"kind,omitempty"`
	Text      string    `json:"text"`
	HasImage  bool      `json:"hasImage,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session 是一个用户的会话上下文，显式地在各个处理函数之间传递。
// Day 记录 Turns 所属的自然日（YYYY-MM-DD），跨日后 Turns 会被清空。
type Session struct {
	UserID     uint       `json:"userId"`
	Day        string     `json:"day"`
	Turns      []ChatTurn `json:"turns"`
	Draft      string     `json:"draft,omitempty"`
	Tip        string     `json:"tip,omitempty"`
	UsageCount int        `json:"usageCount"`
	DailyLimit int        `json:"dailyLimit"`
}

// Clone 返回一个不与原会话共享 Turns 底层数组的副本。
func (s *Session) Clone() *Session {
	c := *s
	c.Turns = append([]ChatTurn(nil), s.Turns...)
	return &c
}

// Remaining 返回今日剩余可用次数。
func (s *Session) Remaining() int {
	if r := s.DailyLimit - s.UsageCount; r > 0 {
		return r
	}
	return 0
}

// 渲染指令的类别。
const (
	RenderAnswer   = "answer"
	RenderOffTopic = "off_topic"
	RenderQuota    = "quota"
	RenderError    = "error"
	RenderPrefill  = "prefill"
	RenderReset    = "reset"
	RenderInvalid  = "invalid"
)

// Render 告诉前端本次操作之后应如何展示。
type Render struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
	Prefill string `json:"prefill,omitempty"`
}

// UsageView 是侧边栏展示的用量信息。
type UsageView struct {
	Count      int     `json:"count"`
	Limit      int     `json:"limit"`
	Remaining  int     `json:"remaining"`
	Progress   float64 `json:"progress"`
	TotalUsage int     `json:"totalUsage"`
}
