package models

import (
	"time"
)

// 生命体征参数名（与阈值表、报警记录的 parameter 字段一致）
const (
	ParamHeartRate       = "heart_rate"
	ParamSystolicBP      = "systolic_bp"
	ParamDiastolicBP     = "diastolic_bp"
	ParamSpO2            = "spo2"
	ParamTemperature     = "temperature"
	ParamRespiratoryRate = "respiratory_rate"
	ParamGCS             = "gcs"
	ParamPainScore       = "pain_score"
)

// AllParameters 读数上可能出现的全部参数（顺序固定）
var AllParameters = []string{
	ParamHeartRate,
	ParamSystolicBP,
	ParamDiastolicBP,
	ParamSpO2,
	ParamTemperature,
	ParamRespiratoryRate,
	ParamGCS,
	ParamPainScore,
}

// 读数来源
const (
	SourceManual   = "manual"
	SourceDevice   = "device"
	SourceImported = "imported"
)

// Measurements 稀疏的生命体征测量值（nil 表示未测量）
type Measurements struct {
	HeartRate       *float64 `json:"heart_rate,omitempty"`
	SystolicBP      *float64 `json:"systolic_bp,omitempty"`
	DiastolicBP     *float64 `json:"diastolic_bp,omitempty"`
	SpO2            *float64 `json:"spo2,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	RespiratoryRate *float64 `json:"respiratory_rate,omitempty"`
	GCS             *float64 `json:"gcs,omitempty"`
	PainScore       *float64 `json:"pain_score,omitempty"`
}

// Value 按参数名取测量值，第二个返回值为 false 表示未测量或参数未知
func (m Measurements) Value(parameter string) (float64, bool) {
	var v *float64
	switch parameter {
	case ParamHeartRate:
		v = m.HeartRate
	case ParamSystolicBP:
		v = m.SystolicBP
	case ParamDiastolicBP:
		v = m.DiastolicBP
	case ParamSpO2:
		v = m.SpO2
	case ParamTemperature:
		v = m.Temperature
	case ParamRespiratoryRate:
		v = m.RespiratoryRate
	case ParamGCS:
		v = m.GCS
	case ParamPainScore:
		v = m.PainScore
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// IsEmpty 是否一个测量值都没有
func (m Measurements) IsEmpty() bool {
	for _, p := range AllParameters {
		if _, ok := m.Value(p); ok {
			return false
		}
	}
	return true
}

// ToMap 转为 parameter -> value（仅包含已测量的字段）
func (m Measurements) ToMap() map[string]interface{} {
	out := make(map[string]interface{})
	for _, p := range AllParameters {
		if v, ok := m.Value(p); ok {
			out[p] = v
		}
	}
	return out
}

// VitalReading 生命体征读数（对应 vital_signs 表）
type VitalReading struct {
	ReadingID   string    `json:"reading_id" db:"reading_id"`
	PatientID   string    `json:"patient_id" db:"patient_id"`
	EncounterID *string   `json:"encounter_id,omitempty" db:"encounter_id"`
	RecordedAt  time.Time `json:"recorded_at" db:"recorded_at"`
	Source      string    `json:"source" db:"source"` // manual, device, imported
	RecordedBy  string    `json:"recorded_by" db:"recorded_by"`
	Measurements
	UpdatedBy *string   `json:"updated_by,omitempty" db:"updated_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ToPayload 序列化为传输无关的 map（事件总线 / WebSocket）
func (r *VitalReading) ToPayload() map[string]interface{} {
	payload := map[string]interface{}{
		"reading_id":   r.ReadingID,
		"patient_id":   r.PatientID,
		"recorded_at":  r.RecordedAt.UTC().Format(time.RFC3339),
		"source":       r.Source,
		"recorded_by":  r.RecordedBy,
		"measurements": r.Measurements.ToMap(),
	}
	if r.EncounterID != nil {
		payload["encounter_id"] = *r.EncounterID
	}
	if r.UpdatedBy != nil {
		payload["updated_by"] = *r.UpdatedBy
	}
	return payload
}

// VitalReadingInput 录入请求（由 HTTP 层或设备消费者构造）
type VitalReadingInput struct {
	PatientID   string     `json:"patient_id"`
	EncounterID *string    `json:"encounter_id,omitempty"`
	RecordedAt  *time.Time `json:"recorded_at,omitempty"`
	Source      string     `json:"source,omitempty"`
	Measurements
}

// ValidSource 来源标签是否合法
func ValidSource(source string) bool {
	switch source {
	case SourceManual, SourceDevice, SourceImported:
		return true
	}
	return false
}
