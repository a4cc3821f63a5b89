package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"wisefido-vitals/internal/models"
)

// MemoryStore 内存存储：用于 DB 未就绪时的联测和单实例部署
// active 报警去重通过按 (patient_id, parameter) 加锁实现，只在单进程内有效
type MemoryStore struct {
	mu     sync.RWMutex
	vitals map[string]*models.VitalReading // reading_id -> reading
	alarms map[string]*models.Alarm        // alarm_id -> alarm

	keys *keyedMutex
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vitals: map[string]*models.VitalReading{},
		alarms: map[string]*models.Alarm{},
		keys:   newKeyedMutex(),
	}
}

// RunInTx 执行 fn；fn 内的写入在成功返回后才对外可见
// 事务期间持有涉及到的 (patient_id, parameter) 锁，直到提交或丢弃
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memoryTx{store: s, held: map[string]func(){}}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range tx.vitals {
		s.vitals[v.ReadingID] = v
	}
	for _, a := range tx.alarms {
		s.alarms[a.AlarmID] = a
	}
	return nil
}

// UpdateVital 更正读数
func (s *MemoryStore) UpdateVital(_ context.Context, reading *models.VitalReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.vitals[reading.ReadingID]
	if !ok {
		return fmt.Errorf("vital reading %s: %w", reading.ReadingID, ErrNotFound)
	}
	updated := copyVital(reading)
	updated.PatientID = current.PatientID
	updated.RecordedBy = current.RecordedBy
	updated.CreatedAt = current.CreatedAt
	s.vitals[reading.ReadingID] = updated
	return nil
}

// GetVital 获取读数
func (s *MemoryStore) GetVital(_ context.Context, readingID string) (*models.VitalReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vitals[readingID]
	if !ok {
		return nil, fmt.Errorf("vital reading %s: %w", readingID, ErrNotFound)
	}
	return copyVital(v), nil
}

// FindActiveAlarm 查询 active 报警（事务外）
func (s *MemoryStore) FindActiveAlarm(_ context.Context, patientID, parameter string) (*models.Alarm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findActiveLocked(patientID, parameter), nil
}

// GetAlarm 获取报警
func (s *MemoryStore) GetAlarm(_ context.Context, alarmID string) (*models.Alarm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alarms[alarmID]
	if !ok {
		return nil, fmt.Errorf("alarm %s: %w", alarmID, ErrNotFound)
	}
	return copyAlarm(a), nil
}

// UpdateAlarmStatus 更新报警状态
func (s *MemoryStore) UpdateAlarmStatus(_ context.Context, alarmID, status, actor string, at time.Time) (*models.Alarm, error) {
	if transitionSources(status) == nil {
		return nil, fmt.Errorf("unsupported alarm status: %s", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alarms[alarmID]
	if !ok {
		return nil, fmt.Errorf("alarm %s: %w", alarmID, ErrNotFound)
	}
	if !canTransition(a.Status, status) {
		return nil, fmt.Errorf("alarm %s is %s, cannot become %s: %w", alarmID, a.Status, status, ErrStatusConflict)
	}

	updated := copyAlarm(a)
	updated.Status = status
	updated.UpdatedAt = at
	switch status {
	case models.AlarmStatusAcknowledged:
		updated.AcknowledgedBy = &actor
		updated.AcknowledgedAt = &at
	case models.AlarmStatusResolved:
		updated.ResolvedBy = &actor
		updated.ResolvedAt = &at
	}
	s.alarms[alarmID] = updated
	return copyAlarm(updated), nil
}

// ListAlarms 查询患者报警（status 为空时不过滤），按触发时间倒序
func (s *MemoryStore) ListAlarms(_ context.Context, patientID, status string) ([]*models.Alarm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alarms := []*models.Alarm{}
	for _, a := range s.alarms {
		if a.PatientID != patientID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		alarms = append(alarms, copyAlarm(a))
	}
	sort.Slice(alarms, func(i, j int) bool {
		if alarms[i].TriggeredAt.Equal(alarms[j].TriggeredAt) {
			return alarms[i].CreatedAt.After(alarms[j].CreatedAt)
		}
		return alarms[i].TriggeredAt.After(alarms[j].TriggeredAt)
	})
	return alarms, nil
}

// CountActiveAlarms 统计患者 active 报警数量
func (s *MemoryStore) CountActiveAlarms(_ context.Context, patientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, a := range s.alarms {
		if a.PatientID == patientID && a.Status == models.AlarmStatusActive {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) findActiveLocked(patientID, parameter string) *models.Alarm {
	for _, a := range s.alarms {
		if a.PatientID == patientID && a.Parameter == parameter && a.Status == models.AlarmStatusActive {
			return copyAlarm(a)
		}
	}
	return nil
}

// ============================================
// 事务
// ============================================

type memoryTx struct {
	store  *MemoryStore
	held   map[string]func() // 已持有的 (patient, parameter) 锁
	vitals []*models.VitalReading
	alarms []*models.Alarm
}

func (tx *memoryTx) SaveVital(_ context.Context, reading *models.VitalReading) error {
	tx.store.mu.RLock()
	_, exists := tx.store.vitals[reading.ReadingID]
	tx.store.mu.RUnlock()
	if exists {
		return fmt.Errorf("failed to insert vital reading: duplicate reading_id %s", reading.ReadingID)
	}
	tx.vitals = append(tx.vitals, copyVital(reading))
	return nil
}

func (tx *memoryTx) FindActiveAlarm(ctx context.Context, patientID, parameter string) (*models.Alarm, error) {
	tx.lock(patientID, parameter)
	if a := tx.pendingActive(patientID, parameter); a != nil {
		return copyAlarm(a), nil
	}
	return tx.store.FindActiveAlarm(ctx, patientID, parameter)
}

func (tx *memoryTx) SaveAlarm(ctx context.Context, alarm *models.Alarm) (bool, error) {
	tx.lock(alarm.PatientID, alarm.Parameter)
	if alarm.Status == models.AlarmStatusActive {
		if tx.pendingActive(alarm.PatientID, alarm.Parameter) != nil {
			return false, nil
		}
		existing, err := tx.store.FindActiveAlarm(ctx, alarm.PatientID, alarm.Parameter)
		if err != nil {
			return false, err
		}
		if existing != nil {
			return false, nil
		}
	}
	tx.alarms = append(tx.alarms, copyAlarm(alarm))
	return true, nil
}

func (tx *memoryTx) pendingActive(patientID, parameter string) *models.Alarm {
	for _, a := range tx.alarms {
		if a.PatientID == patientID && a.Parameter == parameter && a.Status == models.AlarmStatusActive {
			return a
		}
	}
	return nil
}

func (tx *memoryTx) lock(patientID, parameter string) {
	key := patientID + "|" + parameter
	if _, ok := tx.held[key]; ok {
		return
	}
	tx.held[key] = tx.store.keys.Lock(key)
}

func (tx *memoryTx) release() {
	for key, unlock := range tx.held {
		unlock()
		delete(tx.held, key)
	}
}

// keyedMutex 按 key 加锁，不再使用的 key 会被回收
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refMutex{}}
}

// Lock 加锁并返回解锁函数
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func copyVital(v *models.VitalReading) *models.VitalReading {
	c := *v
	return &c
}

func copyAlarm(a *models.Alarm) *models.Alarm {
	c := *a
	return &c
}
