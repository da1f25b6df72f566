package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kandev/squad-bridge/internal/common/config"
)

const (
	journalBusyTimeout = 5 * time.Second

	// History reads (run listings, session snapshots) are short; a few
	// readers are enough next to the single WAL writer.
	journalReaderConns = 2
)

// openSQLite opens the journal file at path as a single-connection writer and
// a read-only reader pool. A leading ~ is expanded and missing parent
// directories are created.
func openSQLite(path string) (writer, reader *sql.DB, err error) {
	path, err = journalPath(path)
	if err != nil {
		return nil, nil, err
	}

	writer, err = sql.Open("sqlite3", sqliteDSN(path, "rwc", url.Values{
		"_journal_mode": {"WAL"},
		"_synchronous":  {"NORMAL"},
		"_txlock":       {"immediate"},
	}))
	if err != nil {
		return nil, nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// Upserts from concurrent list and exec calls serialize on this one connection.
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	if err := writer.Ping(); err != nil {
		_ = writer.Close()
		return nil, nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	reader, err = sql.Open("sqlite3", sqliteDSN(path, "ro", nil))
	if err != nil {
		_ = writer.Close()
		return nil, nil, fmt.Errorf("open journal reader %s: %w", path, err)
	}
	reader.SetMaxOpenConns(journalReaderConns)
	reader.SetMaxIdleConns(journalReaderConns)
	return writer, reader, nil
}

// journalPath resolves path to an absolute file location and prepares its
// directory. It rejects an empty path and an existing directory.
func journalPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite journal path is empty")
	}
	abs, err := filepath.Abs(config.ExpandHome(path))
	if err != nil {
		return "", fmt.Errorf("resolve journal path %s: %w", path, err)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return "", fmt.Errorf("journal path %s is a directory", abs)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create journal directory: %w", err)
	}
	return abs, nil
}

func sqliteDSN(path, mode string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("_mode", mode)
	params.Set("_busy_timeout", strconv.Itoa(int(journalBusyTimeout/time.Millisecond)))
	return "file:" + path + "?" + params.Encode()
}
