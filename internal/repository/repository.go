package repository

import (
	"context"
	"database/sql"
	"errors"

	"wisefido-vitals/internal/models"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict 报警当前状态不允许目标状态（含并发修改）
	ErrStatusConflict = errors.New("alarm status conflict")
)

// DBTX *sql.DB 与 *sql.Tx 的公共方法
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx 录入事务内可用的操作（读数写入 + 去重查询 + 报警写入共用一个事务）
type Tx interface {
	SaveVital(ctx context.Context, reading *models.VitalReading) error
	FindActiveAlarm(ctx context.Context, patientID, parameter string) (*models.Alarm, error)
	// SaveAlarm 返回 created=false 表示同一 (patient, parameter) 已有 active 报警，本条被丢弃
	SaveAlarm(ctx context.Context, alarm *models.Alarm) (bool, error)
}

// transitionSources 目标状态允许的源状态
func transitionSources(status string) []string {
	switch status {
	case models.AlarmStatusAcknowledged:
		return []string{models.AlarmStatusActive}
	case models.AlarmStatusResolved:
		return []string{models.AlarmStatusActive, models.AlarmStatusAcknowledged}
	}
	return nil
}

func canTransition(from, to string) bool {
	for _, s := range transitionSources(to) {
		if s == from {
			return true
		}
	}
	return false
}
