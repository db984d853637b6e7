package dbconnect

import "database/sql"

// DbConnector hands out a lazily established database handle.
type DbConnector interface {
	Connect() (*sql.DB, error)
}

// Database is a connector that can also report liveness.
type Database interface {
	Connect() (*sql.DB, error)
	Ping() error
}
