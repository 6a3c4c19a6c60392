// Package repository 提供了数据访问层的实现。
package repository

import (
	"fmt"
	"strings"
	"tani-assist-go/internal/model"

	"gorm.io/gorm"
)

// ConversationRepository 定义了对话日志（conversations 表）的查询接口。
// 写入只通过 UsageRepository.RecordExchange 在事务内完成。
type ConversationRepository interface {
	ListByUser(userID uint, offset, limit int) ([]model.Conversation, int64, error)
	SearchByUser(userID uint, query string, limit int) ([]model.Conversation, error)
	FindByIDs(convIDs []string) ([]model.Conversation, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// ListByUser 按时间倒序分页返回用户的对话日志及总数。
func (r *conversationRepository) ListByUser(userID uint, offset, limit int) ([]model.Conversation, int64, error) {
	var convs []model.Conversation
	var total int64

	db := r.db.Model(&model.Conversation{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	err := db.Order("timestamp DESC").Offset(offset).Limit(limit).Find(&convs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, total, nil
}

// SearchByUser 在问题和回答中做 LIKE 匹配，Elasticsearch 不可用时使用。
func (r *conversationRepository) SearchByUser(userID uint, query string, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	pattern := "%" + escapeLike(query) + "%"
	err := r.db.Where("user_id = ?", userID).
		Where("(user_input LIKE ? ESCAPE '!' OR ai_response LIKE ? ESCAPE '!')", pattern, pattern).
		Order("timestamp DESC").
		Limit(limit).
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search conversations: %w", err)
	}
	return convs, nil
}

// FindByIDs 按主键批量读取对话日志。
func (r *conversationRepository) FindByIDs(convIDs []string) ([]model.Conversation, error) {
	if len(convIDs) == 0 {
		return []model.Conversation{}, nil
	}
	var convs []model.Conversation
	if err := r.db.Where("conv_id IN ?", convIDs).Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	return convs, nil
}

// escapeLike 使用 '!' 作为转义符，SQLite 与 MySQL 行为一致。
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
