package eventbus

import (
	"context"
	"fmt"
	"time"

	rediscommon "wisefido-vitals/internal/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisStreamBus 通过 Redis Streams 发布事件
// 每条消息包含 topic、published_at 和 payload（JSON）字段
type RedisStreamBus struct {
	redisClient *redis.Client
	stream      string
	maxLen      int64
	logger      *zap.Logger
}

// NewRedisStreamBus 创建 Redis Streams 事件总线
func NewRedisStreamBus(redisClient *redis.Client, stream string, maxLen int64, logger *zap.Logger) *RedisStreamBus {
	return &RedisStreamBus{
		redisClient: redisClient,
		stream:      stream,
		maxLen:      maxLen,
		logger:      logger,
	}
}

// Publish 发布事件
func (b *RedisStreamBus) Publish(ctx context.Context, topic string, payload map[string]interface{}) error {
	id, err := rediscommon.PublishToStream(ctx, b.redisClient, b.stream, b.maxLen, map[string]interface{}{
		"topic":        topic,
		"published_at": time.Now().UTC().Format(time.RFC3339Nano),
		"payload":      payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", b.stream, err)
	}

	b.logger.Debug("Published event to Redis Streams",
		zap.String("stream", b.stream),
		zap.String("topic", topic),
		zap.String("stream_id", id),
	)
	return nil
}
