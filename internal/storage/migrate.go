package storage

import (
	"context"
	"fmt"
)

// Source is the legacy side of a migration.
type Source[T any] interface {
	// CountRows counts rows directly in the database, without decoding them.
	CountRows(ctx context.Context) (int, error)

	// ReadAll decodes every row it can. Rows that fail to decode may be
	// skipped, which is what the CountRows comparison detects.
	ReadAll(ctx context.Context) ([]T, error)

	Close() error
}

// Target is the modern side of a migration.
type Target[T any] interface {
	Count(ctx context.Context) (int, error)

	// InsertAll writes every record in a single transaction.
	InsertAll(ctx context.Context, records []T) error
}

// MigrationReport describes what Migrate did.
type MigrationReport struct {
	// AlreadyMigrated is true when the target already held data.
	AlreadyMigrated bool

	// TargetEmpty is true once the target was confirmed empty before any
	// write. Only then may a failed migration discard the target.
	TargetEmpty bool

	SourceRows int
	Copied     int
}

// Migrate copies every row of src into dst, verifying both ends.
//
// A target that already holds data is treated as migrated and left alone, so
// running Migrate twice yields the same target contents as running it once.
// On error the target may hold a partial copy; the caller must discard it.
func Migrate[T any](ctx context.Context, src Source[T], dst Target[T]) (MigrationReport, error) {
	var report MigrationReport

	existing, err := dst.Count(ctx)
	if err != nil {
		return report, NewError(ErrCodeBackendUnavailable, err, "count migration target")
	}
	if existing > 0 {
		report.AlreadyMigrated = true
		return report, nil
	}
	report.TargetEmpty = true

	expected, err := src.CountRows(ctx)
	if err != nil {
		return report, NewError(ErrCodeBackendUnavailable, err, "count migration source")
	}
	report.SourceRows = expected
	if expected == 0 {
		return report, nil
	}

	rows, err := src.ReadAll(ctx)
	if err != nil {
		return report, NewError(ErrCodePartialRead, err, "read migration source")
	}
	if len(rows) != expected {
		return report, NewError(ErrCodePartialRead, nil,
			"read %d of %d source rows", len(rows), expected)
	}

	if err := dst.InsertAll(ctx, rows); err != nil {
		return report, fmt.Errorf("insert migrated rows: %w", err)
	}

	copied, err := dst.Count(ctx)
	if err != nil {
		return report, NewError(ErrCodeBackendUnavailable, err, "recount migration target")
	}
	report.Copied = copied
	if copied != expected {
		return report, NewError(ErrCodeRowCountMismatch, nil,
			"target holds %d rows, source had %d", copied, expected)
	}
	return report, nil
}
