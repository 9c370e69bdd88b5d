package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/storage"
)

// Database names and the activation-state namespace shared with other
// processes that read the alert database.
const (
	ModernDatabaseName = "ModernEvents"
	LegacyDatabaseName = "Events"
	StateNamespace     = "events_storage_state"
)

// Options configures Open.
type Options struct {
	Dir               string
	CRSQLiteExtension string
	State             *storage.StateStore
	Logger            zerolog.Logger
	Observer          storage.Observer
}

// Facade is the Store chosen at startup. It embeds the active backend so
// callers never branch on which one it is.
type Facade struct {
	Store

	selection storage.Selection[Store]
}

// Open selects the authoritative alert database, migrating legacy rows into
// the modern backend when needed. Migration failures are logged and resolved
// by activating the legacy backend; Open only fails when neither backend can
// be opened.
func Open(ctx context.Context, opts Options) (*Facade, error) {
	logger := opts.Logger.With().Str("component", "events").Logger()

	sel := &storage.Selector[Store, alert.Record]{
		Namespace:  StateNamespace,
		Dir:        opts.Dir,
		ModernName: ModernDatabaseName,
		LegacyName: LegacyDatabaseName,
		OpenModern: func(_ context.Context, path string) (Store, storage.Target[alert.Record], error) {
			m, err := OpenModern(path, ModernOptions{CRSQLiteExtension: opts.CRSQLiteExtension})
			if err != nil {
				return nil, nil, err
			}
			return m, m, nil
		},
		OpenLegacy: func(_ context.Context, path string) (Store, error) {
			return OpenLegacy(path, logger)
		},
		OpenSource: func(_ context.Context, path string) (storage.Source[alert.Record], error) {
			return OpenLegacyReadOnly(path, logger)
		},
		State:    opts.State,
		Logger:   logger.With().Str("component", "migration").Logger(),
		Observer: opts.Observer,
	}

	selection, err := sel.Select(ctx)
	if err != nil {
		return nil, err
	}
	return &Facade{Store: selection.Store, selection: selection}, nil
}

// Backend reports which backend is active.
func (f *Facade) Backend() storage.Backend {
	return f.selection.Backend
}

// DatabaseName is the active database name, as published in the activation state.
func (f *Facade) DatabaseName() string {
	return f.selection.DatabaseName
}

// Outcome reports how the backend was chosen.
func (f *Facade) Outcome() storage.Outcome {
	return f.selection.Outcome
}

// MigrationErr is the logged migration failure, if any.
func (f *Facade) MigrationErr() error {
	return f.selection.MigrationErr
}
