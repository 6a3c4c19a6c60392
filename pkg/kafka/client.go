// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"tani-assist-go/internal/config"
	"tani-assist-go/pkg/events"
	"tani-assist-go/pkg/log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 是单条消息处理失败后允许的最大重试次数，超过后提交 offset 放弃。
const maxAttempts = 3

// Producer 把对话事件写入 Kafka 主题。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

// PublishConversation 发送一个 conversation.logged 事件，以用户 ID 作为分区键保证单用户有序。
func (p *Producer) PublishConversation(ctx context.Context, event events.ConversationLogged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", event.UserID)),
		Value: payload,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理对话事件，ctx 取消后退出。
// 失败次数记录在 Redis 中，达到阈值后提交 offset 终止重试。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor events.Processor, rdb *redis.Client) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var event events.ConversationLogged
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		if err := processor.Process(ctx, event); err != nil {
			log.Errorf("处理对话事件失败: ConvID=%s, Error: %v", event.ConvID, err)
			if giveUp(ctx, rdb, event.ConvID) {
				log.Errorf("对话事件多次失败(>=%d)，提交 offset 终止重试: ConvID=%s", maxAttempts, event.ConvID)
				commit(ctx, r, m)
			}
			continue
		}

		_ = rdb.Del(ctx, attemptsKey(event.ConvID)).Err()
		commit(ctx, r, m)
	}
}

func attemptsKey(convID string) string {
	return fmt.Sprintf("kafka:attempts:%s", convID)
}

// giveUp 递增失败计数并判断是否应放弃。Redis 异常时保守处理：不提交 offset，让 Kafka 重试。
func giveUp(ctx context.Context, rdb *redis.Client, convID string) bool {
	key := attemptsKey(convID)
	attempts, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false
	}
	_ = rdb.Expire(ctx, key, 24*time.Hour).Err()
	return attempts >= maxAttempts
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
