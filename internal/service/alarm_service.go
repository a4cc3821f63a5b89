package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wisefido-vitals/internal/metrics"
	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/repository"

	"go.uber.org/zap"
)

// AlarmStore 报警存储
type AlarmStore interface {
	GetAlarm(ctx context.Context, alarmID string) (*models.Alarm, error)
	UpdateAlarmStatus(ctx context.Context, alarmID, status, actor string, at time.Time) (*models.Alarm, error)
	ListAlarms(ctx context.Context, patientID, status string) ([]*models.Alarm, error)
	CountActiveAlarms(ctx context.Context, patientID string) (int, error)
}

// AlarmCache 报警查询缓存（*consumer.CacheManager 实现）
type AlarmCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
	PatientAlarmsKey(patientID, status string) string
	PatientAlarmCountKey(patientID string) string
}

// AlarmService 报警生命周期（确认 / 解除）和查询
type AlarmService struct {
	*detachedNotifier

	store  AlarmStore
	cache  AlarmCache // 可为 nil
	now    func() time.Time
	logger *zap.Logger
}

// NewAlarmService 创建报警服务（cache 为 nil 时直接查库）
func NewAlarmService(store AlarmStore, cache AlarmCache, notifier Notifier, logger *zap.Logger) *AlarmService {
	return &AlarmService{
		detachedNotifier: &detachedNotifier{notifier: notifier, logger: logger},
		store:            store,
		cache:            cache,
		now:              time.Now,
		logger:           logger,
	}
}

// ============================================
// 生命周期
// ============================================

// Acknowledge 确认报警（只允许 active → acknowledged），发布 alarm.acknowledged
func (s *AlarmService) Acknowledge(ctx context.Context, alarmID, actor string) (*models.Alarm, error) {
	alarm, err := s.transition(ctx, alarmID, models.AlarmStatusAcknowledged, actor)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, []models.Event{models.AlarmAcknowledged{Alarm: alarm}})
	return alarm, nil
}

// Resolve 解除报警（active / acknowledged → resolved），发布 alarm.resolved
func (s *AlarmService) Resolve(ctx context.Context, alarmID, actor string) (*models.Alarm, error) {
	alarm, err := s.transition(ctx, alarmID, models.AlarmStatusResolved, actor)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, []models.Event{models.AlarmResolved{Alarm: alarm}})
	return alarm, nil
}

func (s *AlarmService) transition(ctx context.Context, alarmID, status, actor string) (*models.Alarm, error) {
	if alarmID == "" {
		return nil, invalidInput("alarm_id is required")
	}
	if actor == "" {
		return nil, invalidInput("actor is required")
	}

	alarm, err := s.store.UpdateAlarmStatus(ctx, alarmID, status, actor, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, err
		case errors.Is(err, repository.ErrStatusConflict):
			return nil, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		default:
			return nil, &PersistenceError{Op: "update_alarm_status", Err: err}
		}
	}

	metrics.ObserveAlarmTransition(status)
	s.logger.Info("Alarm status changed",
		zap.String("alarm_id", alarm.AlarmID),
		zap.String("patient_id", alarm.PatientID),
		zap.String("parameter", alarm.Parameter),
		zap.String("status", status),
		zap.String("actor", actor),
	)
	return alarm, nil
}

// ============================================
// 查询（经过缓存）
// ============================================

// ListAlarms 查询患者报警（status 为空表示全部）
func (s *AlarmService) ListAlarms(ctx context.Context, patientID, status string) ([]*models.Alarm, error) {
	if patientID == "" {
		return nil, invalidInput("patient_id is required")
	}
	switch status {
	case "", models.AlarmStatusActive, models.AlarmStatusAcknowledged, models.AlarmStatusResolved:
	default:
		return nil, invalidInput("unknown status %q", status)
	}

	var key string
	if s.cache != nil {
		key = s.cache.PatientAlarmsKey(patientID, status)
		var cached []*models.Alarm
		if hit := s.readCache(ctx, key, &cached); hit {
			return cached, nil
		}
	}

	alarms, err := s.store.ListAlarms(ctx, patientID, status)
	if err != nil {
		return nil, &PersistenceError{Op: "list_alarms", Err: err}
	}

	if s.cache != nil {
		s.writeCache(ctx, key, alarms)
	}
	return alarms, nil
}

// CountActiveAlarms 统计患者 active 报警数量
func (s *AlarmService) CountActiveAlarms(ctx context.Context, patientID string) (int, error) {
	if patientID == "" {
		return 0, invalidInput("patient_id is required")
	}

	var key string
	if s.cache != nil {
		key = s.cache.PatientAlarmCountKey(patientID)
		var cached int
		if hit := s.readCache(ctx, key, &cached); hit {
			return cached, nil
		}
	}

	count, err := s.store.CountActiveAlarms(ctx, patientID)
	if err != nil {
		return 0, &PersistenceError{Op: "count_active_alarms", Err: err}
	}

	if s.cache != nil {
		s.writeCache(ctx, key, count)
	}
	return count, nil
}

// readCache 缓存故障只记录日志，回退到数据库
func (s *AlarmService) readCache(ctx context.Context, key string, dest interface{}) bool {
	hit, err := s.cache.GetJSON(ctx, key, dest)
	if err != nil {
		s.logger.Warn("Failed to read alarm cache", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *AlarmService) writeCache(ctx context.Context, key string, value interface{}) {
	if err := s.cache.SetJSON(ctx, key, value); err != nil {
		s.logger.Warn("Failed to write alarm cache", zap.String("key", key), zap.Error(err))
	}
}
