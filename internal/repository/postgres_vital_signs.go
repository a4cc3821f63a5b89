package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-vitals/internal/models"

	"go.uber.org/zap"
)

// VitalSignsRepository 生命体征读数仓库（vital_signs 表）
type VitalSignsRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewVitalSignsRepository 创建读数仓库（db 可以是 *sql.DB 或 *sql.Tx）
func NewVitalSignsRepository(db DBTX, logger *zap.Logger) *VitalSignsRepository {
	return &VitalSignsRepository{
		db:     db,
		logger: logger,
	}
}

const vitalColumns = `
	reading_id,
	patient_id,
	encounter_id,
	recorded_at,
	source,
	recorded_by,
	heart_rate,
	systolic_bp,
	diastolic_bp,
	spo2,
	temperature,
	respiratory_rate,
	gcs,
	pain_score,
	updated_by,
	created_at,
	updated_at`

// SaveVital 写入读数
func (r *VitalSignsRepository) SaveVital(ctx context.Context, reading *models.VitalReading) error {
	query := `
		INSERT INTO vital_signs (` + vitalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.ExecContext(ctx, query,
		reading.ReadingID,
		reading.PatientID,
		reading.EncounterID,
		reading.RecordedAt,
		reading.Source,
		reading.RecordedBy,
		reading.HeartRate,
		reading.SystolicBP,
		reading.DiastolicBP,
		reading.SpO2,
		reading.Temperature,
		reading.RespiratoryRate,
		reading.GCS,
		reading.PainScore,
		reading.UpdatedBy,
		reading.CreatedAt,
		reading.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vital reading: %w", err)
	}

	r.logger.Debug("Saved vital reading",
		zap.String("reading_id", reading.ReadingID),
		zap.String("patient_id", reading.PatientID),
	)
	return nil
}

// UpdateVital 更正读数（覆盖测量值，reading_id / patient_id / recorded_by / created_at 不变）
func (r *VitalSignsRepository) UpdateVital(ctx context.Context, reading *models.VitalReading) error {
	query := `
		UPDATE vital_signs
		SET encounter_id = $2,
			recorded_at = $3,
			source = $4,
			heart_rate = $5,
			systolic_bp = $6,
			diastolic_bp = $7,
			spo2 = $8,
			temperature = $9,
			respiratory_rate = $10,
			gcs = $11,
			pain_score = $12,
			updated_by = $13,
			updated_at = $14
		WHERE reading_id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		reading.ReadingID,
		reading.EncounterID,
		reading.RecordedAt,
		reading.Source,
		reading.HeartRate,
		reading.SystolicBP,
		reading.DiastolicBP,
		reading.SpO2,
		reading.Temperature,
		reading.RespiratoryRate,
		reading.GCS,
		reading.PainScore,
		reading.UpdatedBy,
		reading.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update vital reading: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("vital reading %s: %w", reading.ReadingID, ErrNotFound)
	}
	return nil
}

// GetVital 根据 reading_id 获取读数
func (r *VitalSignsRepository) GetVital(ctx context.Context, readingID string) (*models.VitalReading, error) {
	query := `SELECT ` + vitalColumns + ` FROM vital_signs WHERE reading_id = $1`

	reading, err := scanVital(r.db.QueryRowContext(ctx, query, readingID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("vital reading %s: %w", readingID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get vital reading: %w", err)
	}
	return reading, nil
}

func scanVital(row rowScanner) (*models.VitalReading, error) {
	var reading models.VitalReading
	var encounterID, updatedBy sql.NullString
	var hr, sbp, dbp, spo2, temp, rr, gcs, pain sql.NullFloat64

	err := row.Scan(
		&reading.ReadingID,
		&reading.PatientID,
		&encounterID,
		&reading.RecordedAt,
		&reading.Source,
		&reading.RecordedBy,
		&hr,
		&sbp,
		&dbp,
		&spo2,
		&temp,
		&rr,
		&gcs,
		&pain,
		&updatedBy,
		&reading.CreatedAt,
		&reading.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// 处理可空字段
	reading.EncounterID = nullStringPtr(encounterID)
	reading.UpdatedBy = nullStringPtr(updatedBy)
	reading.HeartRate = nullFloatPtr(hr)
	reading.SystolicBP = nullFloatPtr(sbp)
	reading.DiastolicBP = nullFloatPtr(dbp)
	reading.SpO2 = nullFloatPtr(spo2)
	reading.Temperature = nullFloatPtr(temp)
	reading.RespiratoryRate = nullFloatPtr(rr)
	reading.GCS = nullFloatPtr(gcs)
	reading.PainScore = nullFloatPtr(pain)

	return &reading, nil
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
