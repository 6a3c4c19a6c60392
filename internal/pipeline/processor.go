// Package pipeline 定义了对话事件的异步处理流程。
package pipeline

import (
	"context"
	"fmt"
	"tani-assist-go/internal/model"
	"tani-assist-go/pkg/events"
	"tani-assist-go/pkg/log"
)

// ConversationIndex 是全文索引的写入端。
type ConversationIndex interface {
	IndexConversation(ctx context.Context, doc model.ConversationDocument) error
}

// Indexer 消费 conversation.logged 事件并写入检索索引。
type Indexer struct {
	index ConversationIndex
}

// NewIndexer 创建一个新的 Indexer 实例。index 为 nil 时事件只被记录。
func NewIndexer(index ConversationIndex) *Indexer {
	return &Indexer{index: index}
}

// Process 实现 events.Processor。
func (p *Indexer) Process(ctx context.Context, event events.ConversationLogged) error {
	if event.ConvID == "" {
		return fmt.Errorf("event %s has no conv_id", event.EventID)
	}
	if p.index == nil {
		log.Debugf("[Indexer] 检索索引未启用, 跳过 ConvID: %s", event.ConvID)
		return nil
	}

	doc := model.ConversationDocument{
		ConvID:        event.ConvID,
		UserID:        event.UserID,
		Timestamp:     event.Timestamp,
		UserInput:     event.UserInput,
		AIResponse:    event.AIResponse,
		TopicCategory: event.TopicCategory,
	}
	if err := p.index.IndexConversation(ctx, doc); err != nil {
		return fmt.Errorf("索引对话失败: %w", err)
	}
	log.Infof("[Indexer] 对话已索引, ConvID: %s, UserID: %d", event.ConvID, event.UserID)
	return nil
}
