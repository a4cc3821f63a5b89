package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqttcommon "wisefido-vitals/internal/common/mqtt"
	"wisefido-vitals/internal/models"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// ingestWorkers 同时处理的设备读数上限
const ingestWorkers = 8

// Subscriber MQTT 订阅（*mqttcommon.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// VitalIngester 读数录入入口
type VitalIngester interface {
	Ingest(ctx context.Context, input models.VitalReadingInput, recordedBy string) (*models.VitalReading, error)
}

// DeviceReading 设备上报的读数
// 主题格式: devices/{device_id}/vitals
type DeviceReading struct {
	PatientID   string     `json:"patient_id"`
	EncounterID *string    `json:"encounter_id,omitempty"`
	RecordedAt  *time.Time `json:"recorded_at,omitempty"`
	models.Measurements
}

// MQTTConsumer 设备读数消费者
type MQTTConsumer struct {
	topic         string
	qos           byte
	mqttClient    Subscriber
	ingester      VitalIngester
	ingestTimeout time.Duration
	logger        *zap.Logger

	// MQTT 回调只负责投递到 workers，录入在 worker 中完成
	workers *pool.Pool
	mu      sync.RWMutex
	stopped bool
}

// NewMQTTConsumer 创建设备读数消费者
func NewMQTTConsumer(
	topic string,
	qos byte,
	mqttClient Subscriber,
	ingester VitalIngester,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		topic:         topic,
		qos:           qos,
		mqttClient:    mqttClient,
		ingester:      ingester,
		ingestTimeout: 10 * time.Second,
		logger:        logger,
		workers:       pool.New().WithMaxGoroutines(ingestWorkers),
	}
}

// Start 启动消费者
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.topic, c.qos, c.deliver); err != nil {
		return fmt.Errorf("failed to subscribe to device topic: %w", err)
	}

	c.logger.Info("Device MQTT consumer started",
		zap.String("topic", c.topic),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 取消订阅并等待正在处理的读数完成
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("failed to wait for device readings: %w", ctx.Err())
	}

	c.logger.Info("Device MQTT consumer stopped")
	return nil
}

// deliver MQTT 回调：交给 worker 处理后立即返回
func (c *MQTTConsumer) deliver(topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		c.logger.Warn("Consumer stopped, device reading dropped", zap.String("topic", topic))
		return nil
	}

	c.workers.Go(func() {
		if err := c.handleMessage(topic, payload); err != nil {
			c.logger.Error("Failed to handle device reading",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	})
	return nil
}

// handleMessage 处理设备读数
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received device reading",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	// 1. 从主题中提取设备标识
	deviceID, err := deviceIDFromTopic(topic)
	if err != nil {
		return err
	}

	// 2. 解析消息
	var msg DeviceReading
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal device reading: %w", err)
	}

	// 3. 录入（来源固定为 device）
	ctx, cancel := context.WithTimeout(context.Background(), c.ingestTimeout)
	defer cancel()

	reading, err := c.ingester.Ingest(ctx, models.VitalReadingInput{
		PatientID:    msg.PatientID,
		EncounterID:  msg.EncounterID,
		RecordedAt:   msg.RecordedAt,
		Source:       models.SourceDevice,
		Measurements: msg.Measurements,
	}, "device:"+deviceID)
	if err != nil {
		return fmt.Errorf("failed to ingest device reading from %s: %w", deviceID, err)
	}

	c.logger.Info("Ingested device reading",
		zap.String("device_id", deviceID),
		zap.String("patient_id", reading.PatientID),
		zap.String("reading_id", reading.ReadingID),
	)
	return nil
}

// deviceIDFromTopic 主题格式: devices/{device_id}/vitals（可带前缀）
func deviceIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-2] == "" {
		return "", fmt.Errorf("invalid topic format: %s", topic)
	}
	return parts[len(parts)-2], nil
}
