package migration

import "database/sql"

// MigrationInterface is implemented by every schema migration step.
// Steps are idempotent and record completion in migrations.migrations.
type MigrationInterface interface {
	UpMigration(*sql.DB) error
}
