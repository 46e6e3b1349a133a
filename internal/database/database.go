package database

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Driver names registered by the imported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Connect opens the database for the given driver and DSN.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	switch driver {
	case DriverSQLite:
		// one writer; also keeps a ":memory:" database alive across calls
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	default:
		db.SetMaxOpenConns(10)
	}
	return db, nil
}
