package eventbus

import (
	"context"
)

// NopBus 不发布任何事件（EVENT_BUS=none）
type NopBus struct{}

// Publish 丢弃事件
func (NopBus) Publish(context.Context, string, map[string]interface{}) error {
	return nil
}
