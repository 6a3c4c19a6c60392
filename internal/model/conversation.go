package model

import "time"

// Conversation 对应 conversations 表，是一次成功问答的日志记录。
type Conversation struct {
	ConvID        string    `gorm:"type:char(36);primaryKey;column:conv_id" json:"convId"`
	UserID        uint      `gorm:"index;not null;column:user_id" json:"userId"`
	Timestamp     time.Time `gorm:"index;not null;column:timestamp" json:"timestamp"`
	UserInput     string    `gorm:"type:text;not null;column:user_input" json:"userInput"`
	AIResponse    string    `gorm:"type:text;not null;column:ai_response" json:"aiResponse"`
	TopicCategory string    `gorm:"type:varchar(50);column:topic_category" json:"topicCategory"`
	ImageKey      string    `gorm:"type:varchar(255);column:image_key" json:"imageKey,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationDocument 是写入 Elasticsearch 的对话文档结构。
type ConversationDocument struct {
	ConvID        string    `json:"conv_id"`
	UserID        uint      `json:"user_id"`
	Timestamp     time.Time `json:"timestamp"`
	UserInput     string    `json:"user_input"`
	AIResponse    string    `json:"ai_response"`
	TopicCategory string    `json:"topic_category"`
}
