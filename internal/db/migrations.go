package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
)

// Migration represents a single database migration
// Each migration should have a unique ID and an Up function
// that applies the migration.
type Migration struct {
	ID int
	Up func(db *sql.DB) error
}

// migrations is a slice of all migrations to be applied in order.
// Tables created by createTables are the baseline; schema changes after
// that go here and are applied once.
var migrations = []Migration{
	{
		ID: 1,
		Up: func(db *sql.DB) error {
			_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_outcomes_external_id ON outcomes(external_id)`)
			return err
		},
	},
}

// ApplyMigrations applies all pending migrations to the database.
func ApplyMigrations(ctx context.Context, db *sql.DB, logger *log.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}
		logger.Info("Applying migration", "id", m.ID)
		if err := m.Up(db); err != nil {
			return fmt.Errorf("migration %d: %w", m.ID, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO migrations (id) VALUES (?)`, m.ID); err != nil {
			return err
		}
		logger.Debug("Migration applied", "id", m.ID)
	}

	return nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		applied[id] = true
	}
	return applied, rows.Err()
}
