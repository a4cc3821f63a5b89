package service

import (
	"context"
	"errors"
	"time"

	"wisefido-vitals/internal/evaluator"
	"wisefido-vitals/internal/metrics"
	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestStore 读数存储（*repository.PostgresStore / *repository.MemoryStore 实现）
type IngestStore interface {
	RunInTx(ctx context.Context, fn func(tx repository.Tx) error) error
	UpdateVital(ctx context.Context, reading *models.VitalReading) error
	GetVital(ctx context.Context, readingID string) (*models.VitalReading, error)
}

// VitalIngestService 生命体征录入
// 读数写入、阈值评估、去重和报警写入在同一个事务中完成；提交后再并发投递
type VitalIngestService struct {
	*detachedNotifier

	store  IngestStore
	table  *evaluator.ThresholdTable
	now    func() time.Time
	logger *zap.Logger
}

// NewVitalIngestService 创建录入服务
func NewVitalIngestService(
	store IngestStore,
	table *evaluator.ThresholdTable,
	notifier Notifier,
	logger *zap.Logger,
) *VitalIngestService {
	return &VitalIngestService{
		detachedNotifier: &detachedNotifier{notifier: notifier, logger: logger},
		store:            store,
		table:            table,
		now:              time.Now,
		logger:           logger,
	}
}

// Ingest 录入一条读数，返回持久化后的读数
// 只有参数校验（ErrInvalidInput）和存储失败（*PersistenceError）会返回错误，投递失败不影响结果
func (s *VitalIngestService) Ingest(ctx context.Context, input models.VitalReadingInput, recordedBy string) (*models.VitalReading, error) {
	// 1. Received：校验并构建读数
	reading, err := s.buildReading(input, recordedBy)
	if err != nil {
		metrics.ObserveIngestFailure(metrics.FailureValidation)
		return nil, err
	}

	// 2. Persisted + Evaluated：同一事务
	var created []*models.Alarm
	err = s.store.RunInTx(ctx, func(tx repository.Tx) error {
		if err := tx.SaveVital(ctx, reading); err != nil {
			return &PersistenceError{Op: "save_vital", Err: err}
		}

		factory := evaluator.NewAlarmFactory(s.table, evaluator.NewDeduplicator(tx), s.logger)
		alarms, err := factory.EvaluateAll(ctx, reading)
		if err != nil {
			return &PersistenceError{Op: "evaluate", Err: err}
		}

		created = created[:0]
		for _, alarm := range alarms {
			ok, err := tx.SaveAlarm(ctx, alarm)
			if err != nil {
				return &PersistenceError{Op: "save_alarm", Err: err}
			}
			if !ok {
				// 并发录入已先写入 active 报警
				metrics.ObserveAlarmSuppressed(alarm.Parameter)
				continue
			}
			created = append(created, alarm)
		}
		return nil
	})
	if err != nil {
		var pErr *PersistenceError
		if !errors.As(err, &pErr) {
			err = &PersistenceError{Op: "commit", Err: err}
		}
		metrics.ObserveIngestFailure(metrics.FailurePersistence)
		s.logger.Error("Failed to persist vital reading",
			zap.String("patient_id", reading.PatientID),
			zap.String("reading_id", reading.ReadingID),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.ObserveReading(reading.Source)
	for _, alarm := range created {
		metrics.ObserveAlarmCreated(alarm.Parameter, string(alarm.Severity))
		s.logger.Info("Vital alarm created",
			zap.String("alarm_id", alarm.AlarmID),
			zap.String("patient_id", alarm.PatientID),
			zap.String("reading_id", alarm.ReadingID),
			zap.String("parameter", alarm.Parameter),
			zap.String("severity", string(alarm.Severity)),
			zap.Float64("value", alarm.Value),
		)
	}

	// 3. Dispatched：读数事件 + 新报警并发投递
	events := make([]models.Event, 0, len(created)+1)
	events = append(events, models.VitalRecorded{Reading: reading})
	for _, alarm := range created {
		events = append(events, models.AlarmTriggered{Alarm: alarm})
	}
	s.notify(ctx, events)

	// 4. Done
	return reading, nil
}

// CorrectVital 更正读数：覆盖测量值并发布 vital.updated（不重新评估阈值）
func (s *VitalIngestService) CorrectVital(ctx context.Context, readingID string, input models.VitalReadingInput, updatedBy string) (*models.VitalReading, error) {
	if updatedBy == "" {
		return nil, invalidInput("updated_by is required")
	}
	if input.IsEmpty() {
		return nil, invalidInput("at least one measurement is required")
	}
	if input.Source != "" && !models.ValidSource(input.Source) {
		return nil, invalidInput("unknown source %q", input.Source)
	}

	current, err := s.store.GetVital(ctx, readingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "get_vital", Err: err}
	}
	if input.PatientID != "" && input.PatientID != current.PatientID {
		return nil, invalidInput("patient_id cannot be changed")
	}

	now := s.now()
	updated := *current
	updated.Measurements = input.Measurements
	updated.UpdatedBy = &updatedBy
	updated.UpdatedAt = now
	if input.EncounterID != nil {
		updated.EncounterID = input.EncounterID
	}
	if input.RecordedAt != nil {
		updated.RecordedAt = *input.RecordedAt
	}
	if input.Source != "" {
		updated.Source = input.Source
	}

	if err := s.store.UpdateVital(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "update_vital", Err: err}
	}

	s.logger.Info("Vital reading corrected",
		zap.String("reading_id", updated.ReadingID),
		zap.String("patient_id", updated.PatientID),
		zap.String("updated_by", updatedBy),
	)

	s.notify(ctx, []models.Event{models.VitalUpdated{Reading: &updated}})
	return &updated, nil
}

// buildReading 校验录入参数并构建读数
func (s *VitalIngestService) buildReading(input models.VitalReadingInput, recordedBy string) (*models.VitalReading, error) {
	if input.PatientID == "" {
		return nil, invalidInput("patient_id is required")
	}
	if recordedBy == "" {
		return nil, invalidInput("recorded_by is required")
	}
	if input.IsEmpty() {
		return nil, invalidInput("at least one measurement is required")
	}

	source := input.Source
	if source == "" {
		source = models.SourceManual
	}
	if !models.ValidSource(source) {
		return nil, invalidInput("unknown source %q", source)
	}

	now := s.now()
	recordedAt := now
	if input.RecordedAt != nil {
		recordedAt = *input.RecordedAt
	}

	return &models.VitalReading{
		ReadingID:    uuid.New().String(),
		PatientID:    input.PatientID,
		EncounterID:  input.EncounterID,
		RecordedAt:   recordedAt,
		Source:       source,
		RecordedBy:   recordedBy,
		Measurements: input.Measurements,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
