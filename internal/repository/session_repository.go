package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"tani-assist-go/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrSessionNotFound 表示 Redis 中没有该用户的会话上下文。
var ErrSessionNotFound = errors.New("session not found")

const sessionTTL = 7 * 24 * time.Hour

// SessionRepository 定义了会话上下文的存取接口。
type SessionRepository interface {
	Get(ctx context.Context, userID uint) (*model.Session, error)
	Save(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context, userID uint) error
}

type redisSessionRepository struct {
	redisClient *redis.Client
	maxTurns    int
}

// NewSessionRepository 创建一个新的 SessionRepository 实例，maxTurns <= 0 表示不裁剪。
func NewSessionRepository(redisClient *redis.Client, maxTurns int) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient, maxTurns: maxTurns}
}

func sessionKey(userID uint) string {
	return fmt.Sprintf("session:%d", userID)
}

// Get 从 Redis 读取会话上下文。
func (r *redisSessionRepository) Get(ctx context.Context, userID uint) (*model.Session, error) {
	jsonData, err := r.redisClient.Get(ctx, sessionKey(userID)).Result()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var session model.Session
	if err := json.Unmarshal([]byte(jsonData), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Save 写回会话上下文，只保留最近 maxTurns 条消息。
func (r *redisSessionRepository) Save(ctx context.Context, session *model.Session) error {
	toStore := *session
	if r.maxTurns > 0 && len(toStore.Turns) > r.maxTurns {
		toStore.Turns = toStore.Turns[len(toStore.Turns)-r.maxTurns:]
	}
	jsonData, err := json.Marshal(toStore)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.redisClient.Set(ctx, sessionKey(session.UserID), jsonData, sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

// Delete 删除会话上下文。
func (r *redisSessionRepository) Delete(ctx context.Context, userID uint) error {
	if err := r.redisClient.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
