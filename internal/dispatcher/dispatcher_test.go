package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ============================================
// 测试用 sink
// ============================================

type published struct {
	topic   string
	payload map[string]interface{}
}

type fakeBus struct {
	mu        sync.Mutex
	published []published
	err       error
	panicMsg  string
	delay     time.Duration
}

func (b *fakeBus) Publish(ctx context.Context, topic string, payload map[string]interface{}) error {
	if b.panicMsg != "" {
		panic(b.panicMsg)
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if b.err != nil {
		return b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{topic: topic, payload: payload})
	return nil
}

func (b *fakeBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, p := range b.published {
		out = append(out, p.topic)
	}
	return out
}

type fakeLive struct {
	mu       sync.Mutex
	messages map[string][]models.LiveMessage
	err      error
}

func (l *fakeLive) Broadcast(patientID string, msg interface{}, _ *websocket.Client) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.messages == nil {
		l.messages = map[string][]models.LiveMessage{}
	}
	l.messages[patientID] = append(l.messages[patientID], msg.(models.LiveMessage))
	return 1, nil
}

func (l *fakeLive) count(patientID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages[patientID])
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated []string
	failKey     string
}

func (c *fakeCache) Invalidate(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, key)
	if key == c.failKey {
		return 0, errors.New("redis: connection refused")
	}
	return 1, nil
}

func (c *fakeCache) KeysFor(e models.Event) []string {
	return []string{"alarms:*", "alarm_count:" + e.PatientID()}
}

func (c *fakeCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invalidated...)
}

func newTestAlarm(patientID, parameter string, severity models.Severity) *models.Alarm {
	return &models.Alarm{
		AlarmID:     patientID + "-" + parameter,
		PatientID:   patientID,
		Parameter:   parameter,
		Value:       1,
		Severity:    severity,
		Status:      models.AlarmStatusActive,
		TriggeredAt: time.Now(),
	}
}

// ============================================
// Dispatch
// ============================================

func TestDispatch_AllSinksSucceed(t *testing.T) {
	bus, live, cache := &fakeBus{}, &fakeLive{}, &fakeCache{}
	d := NewDispatcher(bus, live, cache, time.Second, zap.NewNop())

	alarm := newTestAlarm("patient-1", models.ParamSpO2, models.SeverityCritical)
	outcome := d.Dispatch(context.Background(), alarm)

	assert.True(t, outcome.Succeeded())
	assert.Equal(t, alarm.AlarmID, outcome.Subject)
	assert.Equal(t, models.TopicAlarmCritical, outcome.Topic)
	require.Len(t, outcome.Results, 3)

	assert.Equal(t, []string{models.TopicAlarmCritical}, bus.topics())
	assert.Equal(t, alarm.AlarmID, bus.published[0].payload["alarm_id"])
	assert.Equal(t, 1, live.count("patient-1"))
	assert.Equal(t, models.LiveAlarmTriggered, live.messages["patient-1"][0].Type)
	assert.ElementsMatch(t, []string{"alarms:*", "alarm_count:patient-1"}, cache.keys())
}

func TestDispatch_WarningTopic(t *testing.T) {
	bus := &fakeBus{}
	d := NewDispatcher(bus, nil, nil, time.Second, zap.NewNop())

	outcome := d.Dispatch(context.Background(), newTestAlarm("patient-1", models.ParamHeartRate, models.SeverityWarning))
	assert.Equal(t, models.TopicAlarmWarning, outcome.Topic)
	assert.Equal(t, []string{models.TopicAlarmWarning}, bus.topics())

	// 未配置的 sink 不出现在结果里
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, models.SinkEventBus, outcome.Results[0].Sink)
}

func TestDispatch_BusFailureIsolated(t *testing.T) {
	bus := &fakeBus{err: errors.New("broker unavailable")}
	live, cache := &fakeLive{}, &fakeCache{}
	d := NewDispatcher(bus, live, cache, time.Second, zap.NewNop())

	outcome := d.Dispatch(context.Background(), newTestAlarm("patient-1", models.ParamSpO2, models.SeverityCritical))

	assert.False(t, outcome.Succeeded())
	assert.Equal(t, []string{models.SinkEventBus}, outcome.Failed())

	r, ok := outcome.Result(models.SinkEventBus)
	require.True(t, ok)
	var sinkErr *SinkError
	require.ErrorAs(t, r.Err, &sinkErr)
	assert.Equal(t, models.SinkEventBus, sinkErr.Sink)
	assert.ErrorIs(t, r.Err, bus.err)

	// 其余 sink 照常执行
	assert.Equal(t, 1, live.count("patient-1"))
	assert.Len(t, cache.keys(), 2)
}

func TestDispatch_LogsOnlyFailedOutcomes(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	bus := &fakeBus{}
	d := NewDispatcher(bus, &fakeLive{}, nil, time.Second, zap.New(core))

	d.Dispatch(context.Background(), newTestAlarm("patient-1", models.ParamSpO2, models.SeverityCritical))
	assert.Zero(t, logs.Len())

	bus.err = errors.New("broker unavailable")
	d.Dispatch(context.Background(), newTestAlarm("patient-1", models.ParamSpO2, models.SeverityCritical))

	entries := logs.FilterMessage("Event dispatched with failures").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{models.SinkEventBus}, entries[0].ContextMap()["failed"])
	assert.Equal(t, 1, logs.FilterMessage("Sink delivery failed").Len())
}

func TestDispatch_PanicIsCaptured(t *testing.T) {
	bus := &fakeBus{panicMsg: "nil map write"}
	live, cache := &fakeLive{}, &fakeCache{}
	d := NewDispatcher(bus, live, cache, time.Second, zap.NewNop())

	var outcome models.DispatchOutcome
	require.NotPanics(t, func() {
		outcome = d.Dispatch(context.Background(), newTestAlarm("patient-1", models.ParamSpO2, models.SeverityCritical))
	})

	r, _ := outcome.Result(models.SinkEventBus)
	assert.False(t, r.OK)
	assert.Contains(t, r.Err.Error(), "nil map write")
	assert.Equal(t, 1, live.count("patient-1"))
}

func TestDispatch_SlowSinkTimesOut(t *testing.T) {
	bus := &fakeBus{delay: 2 * time.Second}
	live, cache := &fakeLive{}, &fakeCache{}
	d := NewDispatcher(bus, live, cache, 50*time.Millisecond, zap.NewNop())

	start := time.Now()
	outcome := d.Dispatch(context.Background(), newTestAlarm("patient-1", models.ParamSpO2, models.SeverityCritical))
	assert.Less(t, time.Since(start), time.Second)

	r, _ := outcome.Result(models.SinkEventBus)
	assert.False(t, r.OK)
	assert.ErrorIs(t, r.Err, context.DeadlineExceeded)

	r, _ = outcome.Result(models.SinkWebSocket)
	assert.True(t, r.OK)
}

func TestDispatch_CallerCancellationIgnored(t *testing.T) {
	bus, live, cache := &fakeBus{}, &fakeLive{}, &fakeCache{}
	d := NewDispatcher(bus, live, cache, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := d.Dispatch(ctx, newTestAlarm("patient-1", models.ParamSpO2, models.SeverityCritical))
	assert.True(t, outcome.Succeeded())
	assert.Len(t, bus.topics(), 1)
}

func TestDispatch_PartialCacheFailure(t *testing.T) {
	cache := &fakeCache{failKey: "alarms:*"}
	d := NewDispatcher(&fakeBus{}, &fakeLive{}, cache, time.Second, zap.NewNop())

	outcome := d.Dispatch(context.Background(), newTestAlarm("patient-1", models.ParamSpO2, models.SeverityCritical))
	assert.Equal(t, []string{models.SinkCache}, outcome.Failed())
	// 失败的键不影响后续键
	assert.Len(t, cache.keys(), 2)
}

func TestDispatchAll(t *testing.T) {
	bus, live, cache := &fakeBus{}, &fakeLive{}, &fakeCache{}
	d := NewDispatcher(bus, live, cache, time.Second, zap.NewNop())

	alarms := []*models.Alarm{
		newTestAlarm("patient-1", models.ParamHeartRate, models.SeverityCritical),
		newTestAlarm("patient-1", models.ParamSpO2, models.SeverityCritical),
		newTestAlarm("patient-2", models.ParamTemperature, models.SeverityWarning),
	}
	outcomes := d.DispatchAll(context.Background(), alarms)

	require.Len(t, outcomes, 3)
	for i, o := range outcomes {
		assert.Equal(t, alarms[i].AlarmID, o.Subject)
		assert.True(t, o.Succeeded())
	}
	assert.ElementsMatch(t,
		[]string{models.TopicAlarmCritical, models.TopicAlarmCritical, models.TopicAlarmWarning},
		bus.topics(),
	)
	assert.Equal(t, 2, live.count("patient-1"))
	assert.Equal(t, 1, live.count("patient-2"))

	assert.Empty(t, d.DispatchAll(context.Background(), nil))
}

func TestNotify_LifecycleAndVitalEvents(t *testing.T) {
	bus, live := &fakeBus{}, &fakeLive{}
	d := NewDispatcher(bus, live, nil, time.Second, zap.NewNop())

	alarm := newTestAlarm("patient-1", models.ParamSpO2, models.SeverityCritical)
	alarm.Status = models.AlarmStatusAcknowledged
	reading := &models.VitalReading{ReadingID: "r-1", PatientID: "patient-1"}

	outcomes := d.NotifyAll(context.Background(), []models.Event{
		models.AlarmAcknowledged{Alarm: alarm},
		models.VitalRecorded{Reading: reading},
	})
	require.Len(t, outcomes, 2)
	assert.Equal(t, models.TopicAlarmAcknowledged, outcomes[0].Topic)
	assert.Equal(t, models.TopicVitalRecorded, outcomes[1].Topic)
	assert.Equal(t, "r-1", outcomes[1].Subject)
	assert.ElementsMatch(t, []string{models.TopicAlarmAcknowledged, models.TopicVitalRecorded}, bus.topics())
}

func TestSinkError(t *testing.T) {
	cause := errors.New("boom")
	err := &SinkError{Sink: models.SinkCache, Err: cause}
	assert.Equal(t, "sink cache: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}
