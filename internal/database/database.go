// Package database handles database connections and migrations.
package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/seatsync/seatsync-api/internal/database/migrations"
)

// New creates a new database connection using libsql.
// Supports local files ("file:path/to/db.sqlite") and a local libsql
// server URL ("http://127.0.0.1:8080").
func New(dsn string) (*sql.DB, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate runs database migrations with the given logger.
func Migrate(db *sql.DB, logger *slog.Logger) error {
	return migrations.Run(db, logger)
}

// GetLatestSchemaVersion returns the most recently applied migration version.
func GetLatestSchemaVersion(db *sql.DB) (string, error) {
	return migrations.GetLatestVersion(db)
}

// GetMigrationCount returns the number of applied migrations.
func GetMigrationCount(db *sql.DB) (int, error) {
	return migrations.GetMigrationCount(db)
}
