// Package db opens the SQL databases backing the command history store.
package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kandev/squad-bridge/internal/db/dialect"
)

// Pool provides separate read and write database connections.
//
// For SQLite with WAL mode the writer is a single connection and the reader
// allows concurrent SELECTs. For PostgreSQL both return the same *sqlx.DB.
type Pool struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

// NewPool creates a Pool from separate writer and reader connections.
func NewPool(writer, reader *sqlx.DB) *Pool {
	return &Pool{writer: writer, reader: reader}
}

// Open connects to dsn with driver (sqlite3 or pgx). For sqlite3 the DSN is
// a file path, ~ allowed.
func Open(driver, dsn string) (*Pool, error) {
	switch driver {
	case dialect.SQLite3:
		w, r, err := openSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return NewPool(sqlx.NewDb(w, driver), sqlx.NewDb(r, driver)), nil
	case dialect.PGX:
		conn, err := OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
		x := sqlx.NewDb(conn, driver)
		return NewPool(x, x), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Writer returns the connection pool used for INSERT, UPDATE and DELETE.
func (p *Pool) Writer() *sqlx.DB { return p.writer }

// Reader returns the connection pool used for SELECT queries.
func (p *Pool) Reader() *sqlx.DB { return p.reader }

// Driver returns the driver name shared by both pools.
func (p *Pool) Driver() string { return p.writer.DriverName() }

// Close closes both the writer and reader pools.
func (p *Pool) Close() error {
	wErr := p.writer.Close()
	// Avoid double-close when both pools share the same *sqlx.DB (Postgres).
	if p.reader != p.writer {
		if rErr := p.reader.Close(); rErr != nil && wErr == nil {
			return rErr
		}
	}
	return wErr
}
