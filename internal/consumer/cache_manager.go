package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wisefido-vitals/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// scanBatch SCAN 每批数量
const scanBatch = 200

// CacheManager Redis 缓存管理器
// 写入方（新报警、确认、解除、读数更正）只做失效，不直接修改缓存中的聚合值
type CacheManager struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(redisClient *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		ttl:         ttl,
		logger:      logger,
	}
}

// ============================================
// 缓存键
// ============================================

// AllAlarmsPattern 所有报警列表缓存
func (c *CacheManager) AllAlarmsPattern() string {
	return c.keyPrefix + "alarms:*"
}

// PatientAlarmsKey 患者报警列表缓存键（status 为空表示全部）
func (c *CacheManager) PatientAlarmsKey(patientID, status string) string {
	if status == "" {
		status = "all"
	}
	return fmt.Sprintf("%salarms:%s:%s", c.keyPrefix, patientID, status)
}

// PatientAlarmCountKey 患者 active 报警数量缓存键
func (c *CacheManager) PatientAlarmCountKey(patientID string) string {
	return fmt.Sprintf("%salarm_count:%s", c.keyPrefix, patientID)
}

// PatientReadingsPattern 患者读数相关缓存
func (c *CacheManager) PatientReadingsPattern(patientID string) string {
	return fmt.Sprintf("%sreadings:%s:*", c.keyPrefix, patientID)
}

// KeysFor 事件需要失效的缓存键
func (c *CacheManager) KeysFor(e models.Event) []string {
	switch e.(type) {
	case models.AlarmTriggered, models.AlarmAcknowledged, models.AlarmResolved:
		return []string{
			c.AllAlarmsPattern(),
			c.PatientAlarmCountKey(e.PatientID()),
		}
	case models.VitalRecorded, models.VitalUpdated:
		return []string{
			c.PatientReadingsPattern(e.PatientID()),
		}
	}
	return nil
}

// ============================================
// 失效 / 读写
// ============================================

// Invalidate 删除缓存；包含通配符时先 SCAN 再删除。返回删除的键数量
func (c *CacheManager) Invalidate(ctx context.Context, keyOrPattern string) (int64, error) {
	if !strings.ContainsAny(keyOrPattern, "*?[") {
		n, err := c.redisClient.Del(ctx, keyOrPattern).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to delete cache key %s: %w", keyOrPattern, err)
		}
		return n, nil
	}

	// 先完成 SCAN 再删除，避免游标期间删除导致漏键
	var keys []string
	seen := make(map[string]struct{})
	iter := c.redisClient.Scan(ctx, 0, keyOrPattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan cache keys: %w", err)
	}

	var removed int64
	for start := 0; start < len(keys); start += scanBatch {
		end := start + scanBatch
		if end > len(keys) {
			end = len(keys)
		}
		n, err := c.redisClient.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to delete cache keys: %w", err)
		}
		removed += n
	}

	c.logger.Debug("Invalidated cache",
		zap.String("pattern", keyOrPattern),
		zap.Int64("removed", removed),
	)
	return removed, nil
}

// GetJSON 读取缓存并反序列化，未命中返回 false
func (c *CacheManager) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := c.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache: %w", err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache %s: %w", key, err)
	}
	return true, nil
}

// SetJSON 序列化后写入缓存（使用配置的 TTL）
func (c *CacheManager) SetJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache %s: %w", key, err)
	}
	if err := c.redisClient.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}
