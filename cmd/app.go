package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"DropFM/db"
	"DropFM/logger"
	"DropFM/repository"

	"gorm.io/gorm"
)

// interruptedReason is recorded on attempts a previous process left running.
const interruptedReason = "interrupted by restart"

// stores holds the database handles every command that touches the upload
// log needs.
type stores struct {
	sqlDB    *sql.DB
	gormDB   *gorm.DB
	users    repository.UserRepository
	logs     repository.UploadLogRepository
	settings repository.SettingRepository
}

func openStores(ctx context.Context) (*stores, error) {
	sqlDB, err := db.ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.InitDB(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.AutoMigrateModels(gdb); err != nil {
		sqlDB.Close()
		db.CloseGormDB()
		return nil, err
	}
	return &stores{
		sqlDB:    sqlDB,
		gormDB:   gdb,
		users:    repository.NewMySQLUserRepository(sqlDB),
		logs:     repository.NewGormUploadLogRepository(gdb),
		settings: repository.NewGormSettingRepository(gdb),
	}, nil
}

func (s *stores) Close() {
	if err := s.sqlDB.Close(); err != nil {
		logger.Warn("Failed to close database", logger.ErrorField(err))
	}
	if err := db.CloseGormDB(); err != nil {
		logger.Warn("Failed to close GORM database", logger.ErrorField(err))
	}
}

// recoverInterrupted fails rows a crashed process left in pending or
// processing.
func recoverInterrupted(ctx context.Context, logs repository.UploadLogRepository) error {
	n, err := logs.FailInterrupted(ctx, interruptedReason)
	if err != nil {
		return fmt.Errorf("recover interrupted attempts: %w", err)
	}
	if n > 0 {
		logger.Warn("Marked interrupted upload attempts as failed", logger.Int64("count", n))
	}
	return nil
}
