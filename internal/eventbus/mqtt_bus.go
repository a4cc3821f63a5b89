package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Publisher MQTT 发布（*mqttcommon.Client 实现）
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// MQTTBus 通过 MQTT 发布事件，主题为 prefix + topic（如 wisefido/alarm.critical）
type MQTTBus struct {
	client      Publisher
	topicPrefix string
	qos         byte
	logger      *zap.Logger
}

// NewMQTTBus 创建 MQTT 事件总线
func NewMQTTBus(client Publisher, topicPrefix string, qos byte, logger *zap.Logger) *MQTTBus {
	return &MQTTBus{
		client:      client,
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
	}
}

// Publish 发布事件（JSON）
func (b *MQTTBus) Publish(ctx context.Context, topic string, payload map[string]interface{}) error {
	data, err := json.Marshal(map[string]interface{}{
		"topic":   topic,
		"payload": payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	mqttTopic := b.topicPrefix + topic
	if err := b.client.Publish(ctx, mqttTopic, b.qos, false, data); err != nil {
		return err
	}

	b.logger.Debug("Published event to MQTT",
		zap.String("topic", mqttTopic),
		zap.Int("payload_size", len(data)),
	)
	return nil
}
