// Package events defines the messages exchanged over Kafka.
package events

import (
	"context"
	"time"
)

// ConversationLogged is emitted after an exchange has been counted and written to the conversation log.
type ConversationLogged struct {
	EventID       string    `json:"event_id"`
	ConvID        string    `json:"conv_id"`
	UserID        uint      `json:"user_id"`
	Timestamp     time.Time `json:"timestamp"`
	UserInput     string    `json:"user_input"`
	AIResponse    string    `json:"ai_response"`
	TopicCategory string    `json:"topic_category"`
	ImageKey      string    `json:"image_key,omitempty"`
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	PublishConversation(ctx context.Context, event ConversationLogged) error
}

// Processor handles a single delivered event.
type Processor interface {
	Process(ctx context.Context, event ConversationLogged) error
}

// DirectPublisher hands events straight to a Processor in-process. It is used when Kafka is disabled.
type DirectPublisher struct {
	Processor Processor
}

// PublishConversation implements Publisher.
func (p DirectPublisher) PublishConversation(ctx context.Context, event ConversationLogged) error {
	if p.Processor == nil {
		return nil
	}
	return p.Processor.Process(ctx, event)
}
