package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"DropFM/config"
	"DropFM/core/auth"
	"DropFM/logger"
	"DropFM/model"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "admin"
)

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) (*sql.DB, error) {
	conn, err := sql.Open("mysql", cfg.MySQLDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	DB = conn
	logger.Info("Connected to the database", logger.String("host", cfg.DBHost))
	return conn, nil
}

// InitDB initializes the users schema. Upload logs and settings are
// migrated by GORM.
func InitDB(ctx context.Context, conn *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		library_path VARCHAR(1024) NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	logger.Info("Users table initialized (or already exists)")
	return nil
}

// AdminStore is the subset of the user repository the bootstrap needs.
type AdminStore interface {
	CountUsers(ctx context.Context) (int64, error)
	CreateUser(ctx context.Context, user *model.User) (int64, error)
}

// EnsureDefaultAdmin creates admin/admin when no user exists yet.
// It returns true when the account was created. Running it again is a no-op.
func EnsureDefaultAdmin(ctx context.Context, store AdminStore) (bool, error) {
	n, err := store.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	hash, err := auth.HashPassword(defaultAdminPassword)
	if err != nil {
		return false, fmt.Errorf("failed to hash default admin password: %w", err)
	}
	id, err := store.CreateUser(ctx, &model.User{
		Username:     defaultAdminUsername,
		PasswordHash: hash,
		IsAdmin:      true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to create default admin: %w", err)
	}

	logger.Warn("Created default admin account with an insecure password",
		logger.Int64("userId", id),
		logger.String("username", defaultAdminUsername),
		logger.String("password", defaultAdminPassword))
	logger.Warn("CHANGE THE DEFAULT ADMIN PASSWORD IMMEDIATELY")
	return true, nil
}
