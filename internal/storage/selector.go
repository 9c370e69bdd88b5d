package storage

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Outcome describes how a Selector arrived at its backend.
type Outcome string

const (
	// OutcomeFresh means no legacy database existed.
	OutcomeFresh Outcome = "fresh"

	// OutcomeEmptySource means the legacy database held no rows.
	OutcomeEmptySource Outcome = "empty_source"

	// OutcomeMigrated means legacy rows were copied and verified.
	OutcomeMigrated Outcome = "migrated"

	// OutcomeAlreadyMigrated means the modern database already held data.
	OutcomeAlreadyMigrated Outcome = "already_migrated"

	// OutcomeFallback means migration failed and legacy was activated.
	OutcomeFallback Outcome = "fallback"

	// OutcomeModernUnavailable means the modern database could not be opened.
	OutcomeModernUnavailable Outcome = "modern_unavailable"
)

// Observer receives the final decision of every Select call.
type Observer interface {
	ObserveSelection(namespace string, backend Backend, outcome Outcome)
}

// Selection is the result of Select.
type Selection[S any] struct {
	Store        S
	Backend      Backend
	DatabaseName string
	Path         string
	Outcome      Outcome
	Report       MigrationReport

	// MigrationErr holds the logged failure behind OutcomeFallback or
	// OutcomeModernUnavailable.
	MigrationErr error
}

// Selector picks the authoritative backend for one dataset, migrating legacy
// data into the modern backend on the way.
//
// The algorithm:
//  1. Open the modern database. If that fails, activate legacy.
//  2. Without a legacy file there is nothing to migrate: activate modern.
//  3. If the saved ActivationState already points at an existing modern
//     database, activate it without touching legacy again. Otherwise run
//     Migrate. It is a no-op when modern already holds data.
//  4. On migration failure close modern, delete its files if they were empty
//     before the attempt, and activate legacy. The next process retries
//     from scratch.
//  5. Persist the ActivationState only once the choice is final.
//
// Migration errors never reach the caller; they are logged and reported in
// Selection.MigrationErr. Select only fails when no backend can be opened.
type Selector[S io.Closer, T any] struct {
	Namespace  string
	Dir        string
	ModernName string
	LegacyName string

	// OpenModern returns the modern store together with its migration target
	// view (usually the same value).
	OpenModern func(ctx context.Context, path string) (S, Target[T], error)
	OpenLegacy func(ctx context.Context, path string) (S, error)

	// OpenSource opens the legacy database for reading rows to migrate.
	OpenSource func(ctx context.Context, path string) (Source[T], error)

	State    *StateStore
	Logger   zerolog.Logger
	Observer Observer
}

// selectMu keeps two selectors from migrating the same files at once.
var selectMu sync.Mutex

// Select runs the algorithm. It must be called once per process per dataset.
func (s *Selector[S, T]) Select(ctx context.Context) (Selection[S], error) {
	selectMu.Lock()
	defer selectMu.Unlock()

	modernPath := DatabasePath(s.Dir, s.ModernName)
	legacyPath := DatabasePath(s.Dir, s.LegacyName)

	modernExisted := DatabaseExists(modernPath)
	modern, target, err := s.OpenModern(ctx, modernPath)
	if err != nil {
		s.Logger.Error().Err(err).
			Str("namespace", s.Namespace).
			Str("path", modernPath).
			Msg("modern backend unavailable, using legacy")
		return s.activateLegacy(ctx, legacyPath, OutcomeModernUnavailable, MigrationReport{}, err)
	}

	if !DatabaseExists(legacyPath) {
		return s.activateModern(modern, modernPath, OutcomeFresh, MigrationReport{})
	}

	if modernExisted && s.modernActive() {
		return s.activateModern(modern, modernPath, OutcomeAlreadyMigrated, MigrationReport{AlreadyMigrated: true})
	}

	report, err := s.migrate(ctx, legacyPath, target)
	if err != nil {
		s.Logger.Error().Err(err).
			Str("namespace", s.Namespace).
			Str("code", string(CodeOf(err))).
			Int("source_rows", report.SourceRows).
			Int("copied", report.Copied).
			Msg("migration failed, falling back to legacy")

		if cerr := modern.Close(); cerr != nil {
			s.Logger.Warn().Err(cerr).Str("namespace", s.Namespace).Msg("close modern backend")
		}
		if report.TargetEmpty {
			if rerr := RemoveDatabaseFiles(modernPath); rerr != nil {
				s.Logger.Error().Err(rerr).Str("path", modernPath).Msg("discard partial modern database")
			}
		}
		return s.activateLegacy(ctx, legacyPath, OutcomeFallback, report, err)
	}

	outcome := OutcomeMigrated
	switch {
	case report.AlreadyMigrated:
		outcome = OutcomeAlreadyMigrated
	case report.SourceRows == 0:
		outcome = OutcomeEmptySource
	default:
		s.Logger.Info().
			Str("namespace", s.Namespace).
			Int("rows", report.Copied).
			Msg("migrated legacy database")
	}
	return s.activateModern(modern, modernPath, outcome, report)
}

// modernActive reports whether a previous process already settled on the
// modern database. An unreadable state file counts as not settled.
func (s *Selector[S, T]) modernActive() bool {
	if s.State == nil {
		return false
	}
	st, ok, err := s.State.Load(s.Namespace)
	if err != nil {
		s.Logger.Warn().Err(err).Str("namespace", s.Namespace).Msg("read activation state")
		return false
	}
	return ok && st.IsModern && st.ActiveDBName == s.ModernName
}

func (s *Selector[S, T]) migrate(ctx context.Context, legacyPath string, target Target[T]) (MigrationReport, error) {
	src, err := s.OpenSource(ctx, legacyPath)
	if err != nil {
		return MigrationReport{}, NewError(ErrCodeBackendUnavailable, err, "open migration source")
	}
	defer src.Close()

	return Migrate(ctx, src, target)
}

func (s *Selector[S, T]) activateModern(store S, path string, outcome Outcome, report MigrationReport) (Selection[S], error) {
	sel := Selection[S]{
		Store:        store,
		Backend:      BackendModern,
		DatabaseName: s.ModernName,
		Path:         path,
		Outcome:      outcome,
		Report:       report,
	}
	s.finalize(sel)
	return sel, nil
}

func (s *Selector[S, T]) activateLegacy(ctx context.Context, path string, outcome Outcome, report MigrationReport, cause error) (Selection[S], error) {
	store, err := s.OpenLegacy(ctx, path)
	if err != nil {
		var zero Selection[S]
		return zero, NewError(ErrCodeBackendUnavailable, errors.Join(cause, err),
			"no backend available for %s", s.Namespace)
	}
	sel := Selection[S]{
		Store:        store,
		Backend:      BackendLegacy,
		DatabaseName: s.LegacyName,
		Path:         path,
		Outcome:      outcome,
		Report:       report,
		MigrationErr: cause,
	}
	s.finalize(sel)
	return sel, nil
}

// finalize publishes the decision. A failed state write is logged only: the
// process keeps working with the selected backend.
func (s *Selector[S, T]) finalize(sel Selection[S]) {
	if s.State != nil {
		st := ActivationState{
			ActiveDBName: sel.DatabaseName,
			IsModern:     sel.Backend == BackendModern,
		}
		if err := s.State.Save(s.Namespace, st); err != nil {
			s.Logger.Error().Err(err).Str("namespace", s.Namespace).Msg("persist activation state")
		}
	}
	if s.Observer != nil {
		s.Observer.ObserveSelection(s.Namespace, sel.Backend, sel.Outcome)
	}
	s.Logger.Debug().
		Str("namespace", s.Namespace).
		Str("backend", string(sel.Backend)).
		Str("outcome", string(sel.Outcome)).
		Msg("storage backend selected")
}
