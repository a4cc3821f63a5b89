package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// PostgresStore 基于 PostgreSQL 的存储
// active 报警去重依赖部分唯一索引 uq_vital_alarms_active，可多实例部署
type PostgresStore struct {
	*VitalSignsRepository
	*VitalAlarmsRepository

	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore 创建存储
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		VitalSignsRepository:  NewVitalSignsRepository(db, logger),
		VitalAlarmsRepository: NewVitalAlarmsRepository(db, logger),
		db:                    db,
		logger:                logger,
	}
}

// pgTx 事务内的读数 + 报警仓库
type pgTx struct {
	*VitalSignsRepository
	*VitalAlarmsRepository
}

// RunInTx 在一个事务中执行 fn；fn 返回错误时回滚
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{
		VitalSignsRepository:  NewVitalSignsRepository(tx, s.logger),
		VitalAlarmsRepository: NewVitalAlarmsRepository(tx, s.logger),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
