package database

import (
	"database/sql"
	"fmt"

	"wisefido-power/internal/common/config"

	_ "github.com/lib/pq"
)

// NewPostgresDB opens and pings a PostgreSQL pool
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close closes the pool if it was opened
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
