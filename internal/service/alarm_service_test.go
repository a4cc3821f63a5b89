package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"wisefido-vitals/internal/consumer"
	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// seedAlarm 通过录入危急读数生成一条 active 报警
func seedAlarm(t *testing.T, store *repository.MemoryStore, patientID string) *models.Alarm {
	t.Helper()
	notifier := &fakeNotifier{}
	svc := newTestIngestService(store, notifier)
	_, err := svc.Ingest(context.Background(), input(patientID, models.Measurements{SpO2: ptr(85)}), "nurse-1")
	require.NoError(t, err)

	alarms := notifier.alarmEvents()
	require.Len(t, alarms, 1)
	return alarms[0].Alarm
}

func setupAlarmCache(t *testing.T) (*miniredis.Miniredis, *consumer.CacheManager) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	return mr, consumer.NewCacheManager(redisClient, "vitals:", 30*time.Second, zap.NewNop())
}

func alarmIDs(alarms []*models.Alarm) []string {
	ids := make([]string, 0, len(alarms))
	for _, a := range alarms {
		ids = append(ids, a.AlarmID)
	}
	return ids
}

func TestAlarmService_Acknowledge(t *testing.T) {
	store := repository.NewMemoryStore()
	alarm := seedAlarm(t, store, "patient-1")
	notifier := &fakeNotifier{}
	svc := NewAlarmService(store, nil, notifier, zap.NewNop())
	ctx := context.Background()

	acked, err := svc.Acknowledge(ctx, alarm.AlarmID, "nurse-2")
	require.NoError(t, err)
	assert.Equal(t, models.AlarmStatusAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedBy)
	assert.Equal(t, "nurse-2", *acked.AcknowledgedBy)
	assert.NotNil(t, acked.AcknowledgedAt)
	assert.Equal(t, []string{models.TopicAlarmAcknowledged}, notifier.topics())

	// 已确认不能再次确认
	_, err = svc.Acknowledge(ctx, alarm.AlarmID, "nurse-2")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, repository.ErrStatusConflict)
	assert.Len(t, notifier.topics(), 1)
}

func TestAlarmService_Resolve(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewAlarmService(store, nil, &fakeNotifier{}, zap.NewNop())
	ctx := context.Background()

	t.Run("from active", func(t *testing.T) {
		alarm := seedAlarm(t, store, "patient-1")
		resolved, err := svc.Resolve(ctx, alarm.AlarmID, "doctor-1")
		require.NoError(t, err)
		assert.Equal(t, models.AlarmStatusResolved, resolved.Status)
		assert.Equal(t, "doctor-1", *resolved.ResolvedBy)
		assert.Nil(t, resolved.AcknowledgedBy)
	})

	t.Run("from acknowledged", func(t *testing.T) {
		alarm := seedAlarm(t, store, "patient-2")
		_, err := svc.Acknowledge(ctx, alarm.AlarmID, "nurse-1")
		require.NoError(t, err)

		resolved, err := svc.Resolve(ctx, alarm.AlarmID, "doctor-1")
		require.NoError(t, err)
		assert.Equal(t, models.AlarmStatusResolved, resolved.Status)
		assert.Equal(t, "nurse-1", *resolved.AcknowledgedBy)

		// resolved 为终态
		_, err = svc.Resolve(ctx, alarm.AlarmID, "doctor-1")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = svc.Acknowledge(ctx, alarm.AlarmID, "doctor-1")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestAlarmService_TransitionErrors(t *testing.T) {
	store := repository.NewMemoryStore()
	alarm := seedAlarm(t, store, "patient-1")
	svc := NewAlarmService(store, nil, &fakeNotifier{}, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Acknowledge(ctx, "missing", "nurse-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.Acknowledge(ctx, alarm.AlarmID, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Resolve(ctx, "", "nurse-1")
	assert.ErrorIs(t, err, ErrInvalidInput)

	failing := NewAlarmService(failingAlarmStore{}, nil, &fakeNotifier{}, zap.NewNop())
	_, err = failing.Acknowledge(ctx, alarm.AlarmID, "nurse-1")
	var pErr *PersistenceError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "update_alarm_status", pErr.Op)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestAlarmService_NewAlarmAfterAcknowledge(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	notifier := &fakeNotifier{}
	ingest := newTestIngestService(store, notifier)
	alarms := NewAlarmService(store, nil, notifier, zap.NewNop())

	_, err := ingest.Ingest(ctx, input("patient-1", models.Measurements{SpO2: ptr(85)}), "nurse-1")
	require.NoError(t, err)
	first := notifier.alarmEvents()[0].Alarm

	_, err = alarms.Acknowledge(ctx, first.AlarmID, "nurse-1")
	require.NoError(t, err)

	_, err = ingest.Ingest(ctx, input("patient-1", models.Measurements{SpO2: ptr(84)}), "nurse-1")
	require.NoError(t, err)

	triggered := notifier.alarmEvents()
	require.Len(t, triggered, 2)
	assert.NotEqual(t, first.AlarmID, triggered[1].Alarm.AlarmID)
	assert.Equal(t, models.AlarmStatusActive, triggered[1].Alarm.Status)

	all, err := alarms.ListAlarms(ctx, "patient-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	count, err := alarms.CountActiveAlarms(ctx, "patient-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAlarmService_ListAlarmsCached(t *testing.T) {
	store := repository.NewMemoryStore()
	first := seedAlarm(t, store, "patient-1")
	mr, cache := setupAlarmCache(t)
	svc := NewAlarmService(store, cache, &fakeNotifier{}, zap.NewNop())
	ctx := context.Background()

	alarms, err := svc.ListAlarms(ctx, "patient-1", models.AlarmStatusActive)
	require.NoError(t, err)
	assert.Equal(t, []string{first.AlarmID}, alarmIDs(alarms))
	assert.True(t, mr.Exists("vitals:alarms:patient-1:active"))

	// 存储变化但缓存未失效，仍然返回缓存内容
	_, err = store.UpdateAlarmStatus(ctx, first.AlarmID, models.AlarmStatusResolved, "doctor-1", time.Now())
	require.NoError(t, err)
	seedAlarm(t, store, "patient-1")

	cached, err := svc.ListAlarms(ctx, "patient-1", models.AlarmStatusActive)
	require.NoError(t, err)
	assert.Equal(t, []string{first.AlarmID}, alarmIDs(cached))

	// 失效后重新查库
	_, err = cache.Invalidate(ctx, cache.AllAlarmsPattern())
	require.NoError(t, err)
	fresh, err := svc.ListAlarms(ctx, "patient-1", models.AlarmStatusActive)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.NotEqual(t, first.AlarmID, fresh[0].AlarmID)
}

func TestAlarmService_CountCached(t *testing.T) {
	store := repository.NewMemoryStore()
	seedAlarm(t, store, "patient-1")
	mr, cache := setupAlarmCache(t)
	svc := NewAlarmService(store, cache, &fakeNotifier{}, zap.NewNop())
	ctx := context.Background()

	count, err := svc.CountActiveAlarms(ctx, "patient-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	value, err := mr.Get("vitals:alarm_count:patient-1")
	require.NoError(t, err)
	assert.Equal(t, "1", value)
}

func TestAlarmService_CacheDownFallsBack(t *testing.T) {
	store := repository.NewMemoryStore()
	alarm := seedAlarm(t, store, "patient-1")
	mr, cache := setupAlarmCache(t)
	mr.Close()
	svc := NewAlarmService(store, cache, &fakeNotifier{}, zap.NewNop())

	alarms, err := svc.ListAlarms(context.Background(), "patient-1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{alarm.AlarmID}, alarmIDs(alarms))

	count, err := svc.CountActiveAlarms(context.Background(), "patient-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAlarmService_QueryErrors(t *testing.T) {
	svc := NewAlarmService(failingAlarmStore{}, nil, &fakeNotifier{}, zap.NewNop())
	ctx := context.Background()

	_, err := svc.ListAlarms(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ListAlarms(ctx, "patient-1", "snoozed")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ListAlarms(ctx, "patient-1", "")
	var pErr *PersistenceError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "list_alarms", pErr.Op)

	_, err = svc.CountActiveAlarms(ctx, "patient-1")
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "count_active_alarms", pErr.Op)
}
