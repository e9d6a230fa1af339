package db

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
)

// ApplyMigrationFile executes the schema file at path. The schema only uses
// IF NOT EXISTS statements, so it is safe to run on every start.
func ApplyMigrationFile(db *sqlx.DB, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.Exec(string(b)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}
