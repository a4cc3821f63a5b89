package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess 成功
	OutcomeSuccess = "success"
	// OutcomeError 失败
	OutcomeError = "error"
)

// 录入失败原因
const (
	FailureValidation  = "validation"
	FailurePersistence = "persistence"
)

var (
	readingsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisefido_vitals",
			Name:      "readings_ingested_total",
			Help:      "Total number of persisted vital readings, partitioned by source.",
		},
		[]string{"source"},
	)

	ingestFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisefido_vitals",
			Name:      "ingest_failures_total",
			Help:      "Total number of rejected or failed ingest calls, partitioned by reason.",
		},
		[]string{"reason"},
	)

	alarmsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisefido_vitals",
			Name:      "alarms_created_total",
			Help:      "Total number of alarms created, partitioned by parameter and severity.",
		},
		[]string{"parameter", "severity"},
	)

	alarmsSuppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisefido_vitals",
			Name:      "alarms_suppressed_total",
			Help:      "Alarms dropped at insert because an active alarm already existed for the parameter.",
		},
		[]string{"parameter"},
	)

	alarmTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisefido_vitals",
			Name:      "alarm_transitions_total",
			Help:      "Total number of alarm lifecycle transitions, partitioned by target status.",
		},
		[]string{"status"},
	)

	sinkDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisefido_vitals",
			Name:      "sink_deliveries_total",
			Help:      "Total number of sink deliveries, partitioned by sink and outcome.",
		},
		[]string{"sink", "outcome"},
	)

	sinkDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wisefido_vitals",
			Name:      "sink_delivery_seconds",
			Help:      "Sink delivery latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 3},
		},
		[]string{"sink"},
	)
)

// Register 注册到指定 registerer（重复注册忽略）
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		readingsIngestedTotal,
		ingestFailuresTotal,
		alarmsCreatedTotal,
		alarmsSuppressedTotal,
		alarmTransitionsTotal,
		sinkDeliveriesTotal,
		sinkDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveReading 记录一条已持久化的读数
func ObserveReading(source string) {
	readingsIngestedTotal.WithLabelValues(source).Inc()
}

// ObserveIngestFailure 记录录入失败
func ObserveIngestFailure(reason string) {
	ingestFailuresTotal.WithLabelValues(reason).Inc()
}

// ObserveAlarmCreated 记录新报警
func ObserveAlarmCreated(parameter, severity string) {
	alarmsCreatedTotal.WithLabelValues(parameter, severity).Inc()
}

// ObserveAlarmSuppressed 记录被唯一约束拦下的报警
func ObserveAlarmSuppressed(parameter string) {
	alarmsSuppressedTotal.WithLabelValues(parameter).Inc()
}

// ObserveAlarmTransition 记录报警状态变更
func ObserveAlarmTransition(status string) {
	alarmTransitionsTotal.WithLabelValues(status).Inc()
}

// ObserveSink 记录单个 sink 的投递结果和耗时
func ObserveSink(sink string, ok bool, duration time.Duration) {
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeError
	}
	sinkDeliveriesTotal.WithLabelValues(sink, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	sinkDurationSeconds.WithLabelValues(sink).Observe(duration.Seconds())
}
