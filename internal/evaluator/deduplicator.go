package evaluator

import (
	"context"
	"fmt"

	"wisefido-vitals/internal/models"
)

// ActiveAlarmFinder 查询 active 报警（由事务内的存储实现）
type ActiveAlarmFinder interface {
	FindActiveAlarm(ctx context.Context, patientID, parameter string) (*models.Alarm, error)
}

// Deduplicator 保证同一 (patient, parameter) 最多一条 active 报警
// 必须基于与报警写入相同的事务构建
type Deduplicator struct {
	finder ActiveAlarmFinder
}

// NewDeduplicator 创建去重器
func NewDeduplicator(finder ActiveAlarmFinder) *Deduplicator {
	return &Deduplicator{finder: finder}
}

// HasActive 该患者该参数是否已有 active 报警
func (d *Deduplicator) HasActive(ctx context.Context, patientID, parameter string) (bool, error) {
	alarm, err := d.finder.FindActiveAlarm(ctx, patientID, parameter)
	if err != nil {
		return false, fmt.Errorf("failed to find active alarm: %w", err)
	}
	return alarm != nil, nil
}
