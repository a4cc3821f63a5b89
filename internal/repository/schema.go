package repository

import (
	"context"
	"fmt"
)

// schemaStatements 建表语句（幂等）
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS vital_signs (
		reading_id       UUID PRIMARY KEY,
		patient_id       VARCHAR(64) NOT NULL,
		encounter_id     VARCHAR(64),
		recorded_at      TIMESTAMPTZ NOT NULL,
		source           VARCHAR(16) NOT NULL DEFAULT 'manual',
		recorded_by      VARCHAR(128) NOT NULL,
		heart_rate       DOUBLE PRECISION,
		systolic_bp      DOUBLE PRECISION,
		diastolic_bp     DOUBLE PRECISION,
		spo2             DOUBLE PRECISION,
		temperature      DOUBLE PRECISION,
		respiratory_rate DOUBLE PRECISION,
		gcs              DOUBLE PRECISION,
		pain_score       DOUBLE PRECISION,
		updated_by       VARCHAR(128),
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vital_signs_patient_recorded
		ON vital_signs (patient_id, recorded_at DESC)`,
	`CREATE TABLE IF NOT EXISTS vital_alarms (
		alarm_id        UUID PRIMARY KEY,
		patient_id      VARCHAR(64) NOT NULL,
		reading_id      UUID NOT NULL REFERENCES vital_signs (reading_id),
		parameter       VARCHAR(32) NOT NULL,
		value           DOUBLE PRECISION NOT NULL,
		threshold_min   DOUBLE PRECISION,
		threshold_max   DOUBLE PRECISION,
		severity        VARCHAR(16) NOT NULL,
		status          VARCHAR(16) NOT NULL DEFAULT 'active',
		triggered_at    TIMESTAMPTZ NOT NULL,
		acknowledged_by VARCHAR(128),
		acknowledged_at TIMESTAMPTZ,
		resolved_by     VARCHAR(128),
		resolved_at     TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vital_alarms_patient_status
		ON vital_alarms (patient_id, status, triggered_at DESC)`,
	// 同一 (patient, parameter) 最多一条 active 报警
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + activeAlarmIndex + `
		ON vital_alarms (patient_id, parameter) WHERE status = 'active'`,
}

// EnsureSchema 创建表和索引
func EnsureSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
