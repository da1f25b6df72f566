// Package dialect provides SQL fragment helpers for SQLite/PostgreSQL portability.
package dialect

const (
	SQLite3 = "sqlite3"
	PGX     = "pgx"
)

// IsPostgres returns true if the driver is PostgreSQL (pgx).
func IsPostgres(driver string) bool {
	return driver == PGX
}

// Supported reports whether driver is one of the drivers above.
func Supported(driver string) bool {
	return driver == SQLite3 || driver == PGX
}

// BoolToInt converts a boolean to an integer for SQL storage.
func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// TimestampType is the column type used for instants.
//
//	SQLite:   TIMESTAMP (mattn/go-sqlite3 parses it back into time.Time)
//	Postgres: TIMESTAMPTZ
func TimestampType(driver string) string {
	if IsPostgres(driver) {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}
