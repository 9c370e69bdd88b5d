package storage

import (
	"database/sql"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenGorm opens a writable SQLite database through GORM on top of
// OpenSQLite, so modern backends share the pragmas and single-connection
// pool of the legacy ones.
//
// With a non-empty crsqliteExtension the connection loads cr-sqlite and crr
// is true; the caller should then EnableCRR its tables and FinalizeCRR
// before closing.
func OpenGorm(path, crsqliteExtension string) (gdb *gorm.DB, raw *sql.DB, crr bool, err error) {
	opts := SQLiteOptions{}
	if crsqliteExtension != "" {
		opts.Driver = CRSQLiteDriver(crsqliteExtension)
		crr = true
	}

	raw, err = OpenSQLite(path, opts)
	if err != nil {
		return nil, nil, false, err
	}

	gdb, err = gorm.Open(sqlite.New(sqlite.Config{Conn: raw}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		raw.Close()
		return nil, nil, false, NewError(ErrCodeBackendUnavailable, err, "gorm open %s", path)
	}
	return gdb, raw, crr, nil
}

// EnableCRR upgrades table to a cr-sqlite conflict-free replicated relation.
// It is idempotent.
func EnableCRR(db *gorm.DB, table string) error {
	if err := db.Exec("SELECT crsql_as_crr(?)", table).Error; err != nil {
		return NewError(ErrCodeBackendUnavailable, err, "enable crr on %s", table)
	}
	return nil
}

// FinalizeCRR must run on a cr-sqlite connection before it is closed.
func FinalizeCRR(db *gorm.DB) error {
	if err := db.Exec("SELECT crsql_finalize()").Error; err != nil {
		return fmt.Errorf("finalize crsqlite: %w", err)
	}
	return nil
}
