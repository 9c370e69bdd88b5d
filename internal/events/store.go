// Package events stores live alert records.
//
// Two backends implement Store: LegacyStore keeps the historical eventsV9
// table layout through database/sql, ModernStore maps records with GORM and
// can load the cr-sqlite extension to make the table replicable. Open picks
// one of them at startup via storage.Selector and migrates legacy rows into
// the modern database when needed. Callers only ever see Store.
//
// Every mutating call is serialized per store; reads may run concurrently
// with each other but never with an in-flight write.
package events

import (
	"context"

	"github.com/roach88/calnotify/internal/alert"
)

// Store is the contract both backends implement.
type Store interface {
	// Add inserts a record. It fails with a DUPLICATE_KEY StoreError if the
	// key exists. A zero (or already used) NotificationID is replaced with
	// the next free id inside the same transaction.
	Add(ctx context.Context, rec alert.Record) error

	// AddBatch inserts all records in one transaction: either every record
	// is stored or none is.
	AddBatch(ctx context.Context, recs []alert.Record) error

	Get(ctx context.Context, key alert.Key) (alert.Record, bool, error)

	// Instances returns every stored instance of eventID ordered by
	// instance start.
	Instances(ctx context.Context, eventID int64) ([]alert.Record, error)

	// Update applies patch to the record at key and returns the merged
	// record. It fails with NOT_FOUND if the record does not exist.
	Update(ctx context.Context, key alert.Key, patch Patch) (alert.Record, error)

	// UpdateInstanceTimes moves a record to a new instance start/end. It
	// returns false when the original record does not exist.
	UpdateInstanceTimes(ctx context.Context, key alert.Key, newStart, newEnd int64) (bool, error)

	// Delete reports whether a row was actually removed.
	Delete(ctx context.Context, key alert.Key) (bool, error)

	// DeleteBatch returns the number of rows actually removed.
	DeleteBatch(ctx context.Context, keys []alert.Key) (int, error)

	DeleteAll(ctx context.Context) error

	// All returns every record ordered by (EventID, InstanceStartTime).
	All(ctx context.Context) ([]alert.Record, error)

	Count(ctx context.Context) (int, error)

	// NextNotificationID returns max(existing ids, NotificationIDFloor) + 1.
	NextNotificationID(ctx context.Context) (int32, error)

	Close() error
}

// KeysOf returns the identities of recs in order.
func KeysOf(recs []alert.Record) []alert.Key {
	keys := make([]alert.Key, len(recs))
	for i, r := range recs {
		keys[i] = r.Key()
	}
	return keys
}

// nextID applies the floor rule to the current maximum.
func nextID(max int64, valid bool) int32 {
	next := alert.NotificationIDFloor
	if valid && max > int64(next) {
		next = int32(max)
	}
	return next + 1
}
