package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// DriverName is the plain mattn/go-sqlite3 driver.
const DriverName = "sqlite3"

// SQLiteOptions configures OpenSQLite.
type SQLiteOptions struct {
	// ReadOnly opens an existing file with query_only set and skips pragmas
	// that write. The file itself is opened read-write so WAL databases
	// remain readable.
	ReadOnly bool

	// Driver overrides DriverName, e.g. a driver registered by CRSQLiteDriver.
	Driver string
}

// DatabasePath returns the file path for a named database inside dir.
func DatabasePath(dir, name string) string {
	return filepath.Join(dir, name+".db")
}

// DatabaseExists reports whether the database file exists.
func DatabaseExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// RemoveDatabaseFiles deletes a database file and its WAL/SHM/journal siblings.
// Missing files are not an error.
func RemoveDatabaseFiles(path string) error {
	var errs []error
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenSQLite opens a SQLite database at path.
//
// Writable databases are configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// The pool is limited to one connection: SQLite supports a single writer, and
// every mutating call in this module is serialized per database anyway.
func OpenSQLite(path string, opts SQLiteOptions) (*sql.DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverName
	}

	dsn := path
	if opts.ReadOnly {
		if !DatabaseExists(path) {
			return nil, NewError(ErrCodeBackendUnavailable, os.ErrNotExist, "open %s", path)
		}
		dsn = "file:" + path + "?_query_only=1"
	} else if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, NewError(ErrCodeBackendUnavailable, err, "create directory %s", dir)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, NewError(ErrCodeBackendUnavailable, err, "open %s", path)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewError(ErrCodeBackendUnavailable, err, "connect %s", path)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := ApplyPragmas(db, opts.ReadOnly); err != nil {
		db.Close()
		return nil, NewError(ErrCodeBackendUnavailable, err, "configure %s", path)
	}

	return db, nil
}

// ApplyPragmas sets the connection configuration shared by every backend.
func ApplyPragmas(db *sql.DB, readOnly bool) error {
	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if !readOnly {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Migration is one incremental schema step keyed by PRAGMA user_version.
type Migration struct {
	Version int
	SQL     string
}

// ApplySchema creates tables if they don't exist and runs migrations newer
// than the stored user_version. It is idempotent.
func ApplySchema(db *sql.DB, schema string, migrations []Migration) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= version {
			continue
		}
		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.Version, err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		version = m.Version
	}
	return nil
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

var (
	crsqliteMu      sync.Mutex
	crsqliteDrivers = map[string]string{}
)

// CRSQLiteDriver returns the name of a database/sql driver that loads the
// cr-sqlite extension at extensionPath on every connection. Drivers are
// registered once per extension path.
func CRSQLiteDriver(extensionPath string) string {
	crsqliteMu.Lock()
	defer crsqliteMu.Unlock()

	if name, ok := crsqliteDrivers[extensionPath]; ok {
		return name
	}
	name := fmt.Sprintf("sqlite3_crsqlite_%d", len(crsqliteDrivers))
	sql.Register(name, &sqlite3.SQLiteDriver{
		Extensions: []string{extensionPath},
	})
	crsqliteDrivers[extensionPath] = name
	return name
}
