package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-vitals/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// activeAlarmIndex 部分唯一索引名：同一 (patient_id, parameter) 最多一条 active 报警
const activeAlarmIndex = "uq_vital_alarms_active"

// VitalAlarmsRepository 生命体征报警仓库（vital_alarms 表）
type VitalAlarmsRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewVitalAlarmsRepository 创建报警仓库（db 可以是 *sql.DB 或 *sql.Tx）
func NewVitalAlarmsRepository(db DBTX, logger *zap.Logger) *VitalAlarmsRepository {
	return &VitalAlarmsRepository{
		db:     db,
		logger: logger,
	}
}

const alarmColumns = `
	alarm_id,
	patient_id,
	reading_id,
	parameter,
	value,
	threshold_min,
	threshold_max,
	severity,
	status,
	triggered_at,
	acknowledged_by,
	acknowledged_at,
	resolved_by,
	resolved_at,
	created_at,
	updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ============================================
// 写入
// ============================================

// SaveAlarm 写入报警
// 命中 active 唯一索引时不写入，返回 created=false
func (r *VitalAlarmsRepository) SaveAlarm(ctx context.Context, alarm *models.Alarm) (bool, error) {
	query := `
		INSERT INTO vital_alarms (` + alarmColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (patient_id, parameter) WHERE status = 'active' DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		alarm.AlarmID,
		alarm.PatientID,
		alarm.ReadingID,
		alarm.Parameter,
		alarm.Value,
		alarm.ThresholdMin,
		alarm.ThresholdMax,
		string(alarm.Severity),
		alarm.Status,
		alarm.TriggeredAt,
		alarm.AcknowledgedBy,
		alarm.AcknowledgedAt,
		alarm.ResolvedBy,
		alarm.ResolvedAt,
		alarm.CreatedAt,
		alarm.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert vital alarm: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		r.logger.Debug("Active alarm already exists, insert skipped",
			zap.String("patient_id", alarm.PatientID),
			zap.String("parameter", alarm.Parameter),
		)
		return false, nil
	}
	return true, nil
}

// UpdateAlarmStatus 更新报警状态（acknowledged / resolved），返回更新后的报警
// 当前状态不允许该转换时返回 ErrStatusConflict
func (r *VitalAlarmsRepository) UpdateAlarmStatus(ctx context.Context, alarmID, status, actor string, at time.Time) (*models.Alarm, error) {
	var set string
	switch status {
	case models.AlarmStatusAcknowledged:
		set = "acknowledged_by = $3, acknowledged_at = $4"
	case models.AlarmStatusResolved:
		set = "resolved_by = $3, resolved_at = $4"
	default:
		return nil, fmt.Errorf("unsupported alarm status: %s", status)
	}

	query := `
		UPDATE vital_alarms
		SET status = $2, ` + set + `, updated_at = $4
		WHERE alarm_id = $1
		  AND status = ANY($5)
		RETURNING ` + alarmColumns

	alarm, err := scanAlarm(r.db.QueryRowContext(ctx, query,
		alarmID, status, actor, at, pq.Array(transitionSources(status)),
	))
	if err == nil {
		return alarm, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to update alarm status: %w", err)
	}

	// 没有更新到行：区分不存在和状态不允许
	current, err := r.GetAlarm(ctx, alarmID)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("alarm %s is %s, cannot become %s: %w", alarmID, current.Status, status, ErrStatusConflict)
}

// ============================================
// 查询
// ============================================

// FindActiveAlarm 查询该患者该参数的 active 报警，没有时返回 nil, nil
func (r *VitalAlarmsRepository) FindActiveAlarm(ctx context.Context, patientID, parameter string) (*models.Alarm, error) {
	query := `
		SELECT ` + alarmColumns + `
		FROM vital_alarms
		WHERE patient_id = $1
		  AND parameter = $2
		  AND status = 'active'
		LIMIT 1
	`

	alarm, err := scanAlarm(r.db.QueryRowContext(ctx, query, patientID, parameter))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active alarm: %w", err)
	}
	return alarm, nil
}

// GetAlarm 根据 alarm_id 获取报警
func (r *VitalAlarmsRepository) GetAlarm(ctx context.Context, alarmID string) (*models.Alarm, error) {
	query := `SELECT ` + alarmColumns + ` FROM vital_alarms WHERE alarm_id = $1`

	alarm, err := scanAlarm(r.db.QueryRowContext(ctx, query, alarmID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alarm %s: %w", alarmID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alarm: %w", err)
	}
	return alarm, nil
}

// ListAlarms 查询患者报警（status 为空时不过滤），按触发时间倒序
func (r *VitalAlarmsRepository) ListAlarms(ctx context.Context, patientID, status string) ([]*models.Alarm, error) {
	query := `
		SELECT ` + alarmColumns + `
		FROM vital_alarms
		WHERE patient_id = $1
		  AND ($2::text = '' OR status = $2::text)
		ORDER BY triggered_at DESC, created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, patientID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarms: %w", err)
	}
	defer rows.Close()

	alarms := []*models.Alarm{}
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alarm: %w", err)
		}
		alarms = append(alarms, alarm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alarms: %w", err)
	}
	return alarms, nil
}

// CountActiveAlarms 统计患者 active 报警数量
func (r *VitalAlarmsRepository) CountActiveAlarms(ctx context.Context, patientID string) (int, error) {
	query := `SELECT COUNT(*) FROM vital_alarms WHERE patient_id = $1 AND status = 'active'`

	var count int
	if err := r.db.QueryRowContext(ctx, query, patientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active alarms: %w", err)
	}
	return count, nil
}

func scanAlarm(row rowScanner) (*models.Alarm, error) {
	var alarm models.Alarm
	var severity string
	var thresholdMin, thresholdMax sql.NullFloat64
	var acknowledgedBy, resolvedBy sql.NullString
	var acknowledgedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&alarm.AlarmID,
		&alarm.PatientID,
		&alarm.ReadingID,
		&alarm.Parameter,
		&alarm.Value,
		&thresholdMin,
		&thresholdMax,
		&severity,
		&alarm.Status,
		&alarm.TriggeredAt,
		&acknowledgedBy,
		&acknowledgedAt,
		&resolvedBy,
		&resolvedAt,
		&alarm.CreatedAt,
		&alarm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	alarm.Severity = models.Severity(severity)
	alarm.ThresholdMin = nullFloatPtr(thresholdMin)
	alarm.ThresholdMax = nullFloatPtr(thresholdMax)
	alarm.AcknowledgedBy = nullStringPtr(acknowledgedBy)
	alarm.AcknowledgedAt = nullTimePtr(acknowledgedAt)
	alarm.ResolvedBy = nullStringPtr(resolvedBy)
	alarm.ResolvedAt = nullTimePtr(resolvedAt)

	return &alarm, nil
}
