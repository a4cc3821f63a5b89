package models

// 事件总线主题
const (
	TopicAlarmWarning      = "alarm.warning"
	TopicAlarmCritical     = "alarm.critical"
	TopicAlarmAcknowledged = "alarm.acknowledged"
	TopicAlarmResolved     = "alarm.resolved"
	TopicVitalRecorded     = "vital.recorded"
	TopicVitalUpdated      = "vital.updated"
)

// WebSocket 消息类型
const (
	LiveAlarmTriggered    = "alarm_triggered"
	LiveAlarmAcknowledged = "alarm_acknowledged"
	LiveAlarmResolved     = "alarm_resolved"
	LiveVitalRecorded     = "vital_recorded"
	LiveVitalUpdated      = "vital_updated"
)

// Event 下游事件（封闭集合：只有本包内的类型实现 event()）
type Event interface {
	Topic() string
	LiveType() string
	PatientID() string
	Subject() string
	Payload() map[string]interface{}
	event()
}

// AlarmTriggered 新报警
type AlarmTriggered struct{ Alarm *Alarm }

// AlarmAcknowledged 报警已确认
type AlarmAcknowledged struct{ Alarm *Alarm }

// AlarmResolved 报警已解除
type AlarmResolved struct{ Alarm *Alarm }

// VitalRecorded 新读数
type VitalRecorded struct{ Reading *VitalReading }

// VitalUpdated 读数更正
type VitalUpdated struct{ Reading *VitalReading }

func (e AlarmTriggered) Topic() string {
	if e.Alarm.Severity == SeverityCritical {
		return TopicAlarmCritical
	}
	return TopicAlarmWarning
}
func (e AlarmTriggered) LiveType() string                { return LiveAlarmTriggered }
func (e AlarmTriggered) PatientID() string               { return e.Alarm.PatientID }
func (e AlarmTriggered) Subject() string                 { return e.Alarm.AlarmID }
func (e AlarmTriggered) Payload() map[string]interface{} { return e.Alarm.ToPayload() }
func (AlarmTriggered) event()                            {}

func (e AlarmAcknowledged) Topic() string                   { return TopicAlarmAcknowledged }
func (e AlarmAcknowledged) LiveType() string                { return LiveAlarmAcknowledged }
func (e AlarmAcknowledged) PatientID() string               { return e.Alarm.PatientID }
func (e AlarmAcknowledged) Subject() string                 { return e.Alarm.AlarmID }
func (e AlarmAcknowledged) Payload() map[string]interface{} { return e.Alarm.ToPayload() }
func (AlarmAcknowledged) event()                            {}

func (e AlarmResolved) Topic() string                   { return TopicAlarmResolved }
func (e AlarmResolved) LiveType() string                { return LiveAlarmResolved }
func (e AlarmResolved) PatientID() string               { return e.Alarm.PatientID }
func (e AlarmResolved) Subject() string                 { return e.Alarm.AlarmID }
func (e AlarmResolved) Payload() map[string]interface{} { return e.Alarm.ToPayload() }
func (AlarmResolved) event()                            {}

func (e VitalRecorded) Topic() string                   { return TopicVitalRecorded }
func (e VitalRecorded) LiveType() string                { return LiveVitalRecorded }
func (e VitalRecorded) PatientID() string               { return e.Reading.PatientID }
func (e VitalRecorded) Subject() string                 { return e.Reading.ReadingID }
func (e VitalRecorded) Payload() map[string]interface{} { return e.Reading.ToPayload() }
func (VitalRecorded) event()                            {}

func (e VitalUpdated) Topic() string                   { return TopicVitalUpdated }
func (e VitalUpdated) LiveType() string                { return LiveVitalUpdated }
func (e VitalUpdated) PatientID() string               { return e.Reading.PatientID }
func (e VitalUpdated) Subject() string                 { return e.Reading.ReadingID }
func (e VitalUpdated) Payload() map[string]interface{} { return e.Reading.ToPayload() }
func (VitalUpdated) event()                            {}

// LiveMessage WebSocket 推送的消息体
type LiveMessage struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// NewLiveMessage 由事件构建 WebSocket 消息
func NewLiveMessage(e Event) LiveMessage {
	return LiveMessage{Type: e.LiveType(), Data: e.Payload()}
}
