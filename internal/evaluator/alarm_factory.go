package evaluator

import (
	"context"
	"time"

	"wisefido-vitals/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlarmFactory 根据读数决定是否生成新报警
type AlarmFactory struct {
	table  *ThresholdTable
	dedup  *Deduplicator
	now    func() time.Time
	logger *zap.Logger
}

// NewAlarmFactory 创建报警工厂
func NewAlarmFactory(table *ThresholdTable, dedup *Deduplicator, logger *zap.Logger) *AlarmFactory {
	return &AlarmFactory{
		table:  table,
		dedup:  dedup,
		now:    time.Now,
		logger: logger,
	}
}

// Evaluate 评估读数的单个参数
// 返回 nil 表示不需要报警（未配置、未测量、正常，或已有 active 报警）
func (f *AlarmFactory) Evaluate(ctx context.Context, reading *models.VitalReading, parameter string) (*models.Alarm, error) {
	band, ok := f.table.BoundsFor(parameter)
	if !ok {
		return nil, nil
	}
	value, ok := reading.Value(parameter)
	if !ok {
		return nil, nil
	}

	severity := Classify(value, band)
	if severity == models.SeverityNone {
		return nil, nil
	}

	exists, err := f.dedup.HasActive(ctx, reading.PatientID, parameter)
	if err != nil {
		return nil, err
	}
	if exists {
		f.logger.Debug("Active alarm exists, suppressed",
			zap.String("patient_id", reading.PatientID),
			zap.String("reading_id", reading.ReadingID),
			zap.String("parameter", parameter),
		)
		return nil, nil
	}

	// 阈值快照只记录 warning 阈值，critical 触发也一样（下游 UI 依赖这个结构）
	now := f.now()
	return &models.Alarm{
		AlarmID:      uuid.New().String(),
		PatientID:    reading.PatientID,
		ReadingID:    reading.ReadingID,
		Parameter:    parameter,
		Value:        value,
		ThresholdMin: band.WarningLow,
		ThresholdMax: band.WarningHigh,
		Severity:     severity,
		Status:       models.AlarmStatusActive,
		TriggeredAt:  reading.RecordedAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// EvaluateAll 按阈值表顺序依次评估所有已配置参数
func (f *AlarmFactory) EvaluateAll(ctx context.Context, reading *models.VitalReading) ([]*models.Alarm, error) {
	var alarms []*models.Alarm
	for _, parameter := range f.table.Parameters() {
		alarm, err := f.Evaluate(ctx, reading, parameter)
		if err != nil {
			return nil, err
		}
		if alarm != nil {
			alarms = append(alarms, alarm)
		}
	}
	return alarms, nil
}
