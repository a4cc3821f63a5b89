package models

import (
	"time"
)

// Severity 阈值分级结果
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// 报警状态
const (
	AlarmStatusActive       = "active"
	AlarmStatusAcknowledged = "acknowledged"
	AlarmStatusResolved     = "resolved"
)

// ThresholdBand 单个参数的阈值配置（nil 表示该方向无限制）
type ThresholdBand struct {
	WarningLow   *float64 `json:"warning_low,omitempty" yaml:"warning_low"`
	WarningHigh  *float64 `json:"warning_high,omitempty" yaml:"warning_high"`
	CriticalLow  *float64 `json:"critical_low,omitempty" yaml:"critical_low"`
	CriticalHigh *float64 `json:"critical_high,omitempty" yaml:"critical_high"`
}

// Alarm 生命体征报警（对应 vital_alarms 表）
// ThresholdMin/ThresholdMax 始终记录触发时的 warning 阈值，critical 触发也一样
type Alarm struct {
	AlarmID        string     `json:"alarm_id" db:"alarm_id"`
	PatientID      string     `json:"patient_id" db:"patient_id"`
	ReadingID      string     `json:"reading_id" db:"reading_id"`
	Parameter      string     `json:"parameter" db:"parameter"`
	Value          float64    `json:"value" db:"value"`
	ThresholdMin   *float64   `json:"threshold_min,omitempty" db:"threshold_min"`
	ThresholdMax   *float64   `json:"threshold_max,omitempty" db:"threshold_max"`
	Severity       Severity   `json:"severity" db:"severity"`
	Status         string     `json:"status" db:"status"` // active, acknowledged, resolved
	TriggeredAt    time.Time  `json:"triggered_at" db:"triggered_at"`
	AcknowledgedBy *string    `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedBy     *string    `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// ToPayload 序列化为传输无关的 map
func (a *Alarm) ToPayload() map[string]interface{} {
	payload := map[string]interface{}{
		"alarm_id":      a.AlarmID,
		"patient_id":    a.PatientID,
		"reading_id":    a.ReadingID,
		"parameter":     a.Parameter,
		"value":         a.Value,
		"threshold_min": floatOrNil(a.ThresholdMin),
		"threshold_max": floatOrNil(a.ThresholdMax),
		"severity":      string(a.Severity),
		"status":        a.Status,
		"triggered_at":  a.TriggeredAt.UTC().Format(time.RFC3339),
	}
	if a.AcknowledgedBy != nil {
		payload["acknowledged_by"] = *a.AcknowledgedBy
	}
	if a.AcknowledgedAt != nil {
		payload["acknowledged_at"] = a.AcknowledgedAt.UTC().Format(time.RFC3339)
	}
	if a.ResolvedBy != nil {
		payload["resolved_by"] = *a.ResolvedBy
	}
	if a.ResolvedAt != nil {
		payload["resolved_at"] = a.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func floatOrNil(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
