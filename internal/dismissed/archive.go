// Package dismissed keeps the history of dismissed alerts.
//
// The archive is an independent dataset with its own legacy and modern
// databases. Open runs the same migrate-or-fallback selection as the live
// alert store, under its own activation-state namespace.
package dismissed

import (
	"context"

	"github.com/roach88/calnotify/internal/alert"
)

// Archive is the contract both backends implement. Entries are keyed by the
// dismissed record's (EventID, InstanceStartTime); adding an entry for an
// existing key replaces it.
type Archive interface {
	Add(ctx context.Context, dismissType alert.DismissType, dismissTime int64, rec alert.Record) error

	// AddBatch archives every record with one shared dismiss time, in one
	// transaction.
	AddBatch(ctx context.Context, dismissType alert.DismissType, dismissTime int64, recs []alert.Record) error

	Get(ctx context.Context, key alert.Key) (alert.DismissedRecord, bool, error)
	Delete(ctx context.Context, key alert.Key) (bool, error)
	ClearHistory(ctx context.Context) error

	// PurgeOld removes entries dismissed before now-maxAge and returns how
	// many were removed.
	PurgeOld(ctx context.Context, now, maxAge int64) (int, error)

	All(ctx context.Context) ([]alert.DismissedRecord, error)

	// ForDisplay returns every entry, most recently dismissed first.
	ForDisplay(ctx context.Context) ([]alert.DismissedRecord, error)

	Count(ctx context.Context) (int, error)
	Close() error
}

func entriesFor(dismissType alert.DismissType, dismissTime int64, recs []alert.Record) []alert.DismissedRecord {
	out := make([]alert.DismissedRecord, len(recs))
	for i, r := range recs {
		out[i] = alert.DismissedRecord{Event: r, DismissTime: dismissTime, DismissType: dismissType}
	}
	return out
}
