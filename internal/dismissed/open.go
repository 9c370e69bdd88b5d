package dismissed

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/storage"
)

// Database names and activation-state namespace of the archive.
const (
	ModernDatabaseName = "ModernDismissedEvents"
	LegacyDatabaseName = "DismissedEvents"
	StateNamespace     = "dismissed_events_storage_state"
)

// Options configures Open.
type Options struct {
	Dir               string
	CRSQLiteExtension string
	State             *storage.StateStore
	Logger            zerolog.Logger
	Observer          storage.Observer
}

// Facade is the Archive chosen at startup.
type Facade struct {
	Archive

	selection storage.Selection[Archive]
}

// Open selects the authoritative archive database, migrating legacy entries
// when needed.
func Open(ctx context.Context, opts Options) (*Facade, error) {
	logger := opts.Logger.With().Str("component", "dismissed").Logger()

	sel := &storage.Selector[Archive, alert.DismissedRecord]{
		Namespace:  StateNamespace,
		Dir:        opts.Dir,
		ModernName: ModernDatabaseName,
		LegacyName: LegacyDatabaseName,
		OpenModern: func(_ context.Context, path string) (Archive, storage.Target[alert.DismissedRecord], error) {
			m, err := OpenModern(path, opts.CRSQLiteExtension)
			if err != nil {
				return nil, nil, err
			}
			return m, m, nil
		},
		OpenLegacy: func(_ context.Context, path string) (Archive, error) {
			return OpenLegacy(path, logger)
		},
		OpenSource: func(_ context.Context, path string) (storage.Source[alert.DismissedRecord], error) {
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
	return &Facade{Archive: selection.Store, selection: selection}, nil
}

// Backend reports which backend is active.
func (f *Facade) Backend() storage.Backend {
	return f.selection.Backend
}

// DatabaseName is the active database name.
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
