package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"Tunevault/config"
	"Tunevault/logger"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// DSN builds the MySQL data source name shared by database/sql and GORM.
func DSN(cfg *config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	var err error
	DB, err = sql.Open("mysql", DSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(50)
	DB.SetMaxIdleConns(10)
	DB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = DB.PingContext(ctx); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to the database",
		logger.String("host", cfg.DBHost),
		logger.String("database", cfg.DBName))
	return nil
}

// CloseDB 关闭数据库连接
func CloseDB() error {
	if DB == nil {
		return nil
	}
	return DB.Close()
}

// InitDB initializes the database schema, creating tables if they don't exist.
// playlists 表由 GORM AutoMigrate 负责。
func InitDB() error {
	steps := []struct {
		name  string
		query string
	}{
		{"users", createUsersTable},
		{"linked_accounts", createLinkedAccountsTable},
		{"music_files", createMusicFilesTable},
		{"music_index", createMusicIndexTable},
	}

	for _, step := range steps {
		if _, err := DB.Exec(step.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", step.name, err)
		}
		logger.Debug("Table initialized", logger.String("table", step.name))
	}

	logger.Info("Database initialization completed")
	return nil
}

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id CHAR(36) PRIMARY KEY,
	email VARCHAR(255) NOT NULL UNIQUE,
	display_name VARCHAR(255) NOT NULL DEFAULT '',
	password_hash VARCHAR(255) NOT NULL DEFAULT '',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

const createLinkedAccountsTable = `
CREATE TABLE IF NOT EXISTS linked_accounts (
	user_id CHAR(36) NOT NULL,
	provider VARCHAR(32) NOT NULL,
	provider_user_id VARCHAR(255) NOT NULL,
	email VARCHAR(255) NOT NULL DEFAULT '',
	linked_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, provider),
	CONSTRAINT uq_provider_account UNIQUE (provider, provider_user_id),
	CONSTRAINT fk_linked_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

const createMusicFilesTable = `
CREATE TABLE IF NOT EXISTS music_files (
	id CHAR(36) PRIMARY KEY,
	user_id CHAR(36) NOT NULL,
	url VARCHAR(1024) NOT NULL,
	title VARCHAR(255) NOT NULL,
	artist VARCHAR(255) NOT NULL,
	album VARCHAR(255) NOT NULL DEFAULT '',
	genre VARCHAR(255) NOT NULL DEFAULT '',
	year INT NOT NULL DEFAULT 0,
	duration DOUBLE NOT NULL DEFAULT 0,
	cover_art VARCHAR(1024) NOT NULL DEFAULT '',
	file_size BIGINT NOT NULL DEFAULT 0,
	file_type VARCHAR(100) NOT NULL DEFAULT '',
	uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	storage_location VARCHAR(767) NOT NULL,
	INDEX idx_music_user (user_id, uploaded_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

// music_index 不设主键约束之外的唯一键，和原始文档集合一样允许重复条目
const createMusicIndexTable = `
CREATE TABLE IF NOT EXISTS music_index (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	user_id CHAR(36) NOT NULL,
	music_id CHAR(36) NOT NULL,
	field VARCHAR(32) NOT NULL,
	value VARCHAR(255) NOT NULL,
	timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	INDEX idx_index_value (user_id, value),
	INDEX idx_index_field (user_id, field, value),
	INDEX idx_index_music (user_id, music_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin;
`
