package evaluator

import (
	"wisefido-vitals/internal/models"
)

// Classify 按阈值对单个测量值分级
// 先判断 critical 再判断 warning；等于阈值视为正常，只有越过阈值才算异常
func Classify(value float64, band models.ThresholdBand) models.Severity {
	switch {
	case band.CriticalLow != nil && value < *band.CriticalLow:
		return models.SeverityCritical
	case band.CriticalHigh != nil && value > *band.CriticalHigh:
		return models.SeverityCritical
	case band.WarningLow != nil && value < *band.WarningLow:
		return models.SeverityWarning
	case band.WarningHigh != nil && value > *band.WarningHigh:
		return models.SeverityWarning
	default:
		return models.SeverityNone
	}
}
