package models

import (
	"time"
)

// 下游 sink 名称
const (
	SinkEventBus  = "event_bus"
	SinkWebSocket = "websocket"
	SinkCache     = "cache"
)

// SinkResult 单个 sink 的投递结果
type SinkResult struct {
	Sink     string        `json:"sink"`
	OK       bool          `json:"ok"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// DispatchOutcome 一次投递的结果（只用于日志和指标，不持久化）
type DispatchOutcome struct {
	Subject string       `json:"subject"` // alarm_id 或 reading_id
	Topic   string       `json:"topic"`
	Results []SinkResult `json:"results"`
}

// Failed 返回失败的 sink 名称
func (o DispatchOutcome) Failed() []string {
	var failed []string
	for _, r := range o.Results {
		if !r.OK {
			failed = append(failed, r.Sink)
		}
	}
	return failed
}

// Succeeded 所有 sink 是否都成功
func (o DispatchOutcome) Succeeded() bool {
	return len(o.Failed()) == 0
}

// Result 取指定 sink 的结果
func (o DispatchOutcome) Result(sink string) (SinkResult, bool) {
	for _, r := range o.Results {
		if r.Sink == sink {
			return r, true
		}
	}
	return SinkResult{}, false
}
