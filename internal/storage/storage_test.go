package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreError_Helpers(t *testing.T) {
	base := NewError(ErrCodeDuplicateKey, nil, "event %d", 5)
	wrapped := fmt.Errorf("add: %w", base)

	assert.True(t, IsDuplicateKey(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, "DUPLICATE_KEY: event 5", base.Error())

	cause := errors.New("disk full")
	withCause := NewError(ErrCodeBackendUnavailable, cause, "open")
	assert.ErrorIs(t, withCause, cause)
	assert.True(t, IsBackendUnavailable(withCause))
	assert.Equal(t, ErrorCode(""), CodeOf(cause))
}

func TestStateStore_RoundTripAndNamespaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "activation.yaml")
	s := NewStateStore(path)

	_, ok, err := s.Load("events_storage_state")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save("events_storage_state", ActivationState{ActiveDBName: "ModernEvents", IsModern: true}))
	require.NoError(t, s.Save("dismissed_events_storage_state", ActivationState{ActiveDBName: "DismissedEvents"}))

	// A second instance reads what the first wrote.
	other := NewStateStore(path)
	st, ok, err := other.Load("events_storage_state")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ModernEvents", st.ActiveDBName)
	assert.Equal(t, BackendModern, st.Backend())

	st, ok, err = other.Load("dismissed_events_storage_state")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BackendLegacy, st.Backend())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "active_db_name: ModernEvents")
	assert.Contains(t, string(data), "is_modern: true")
}

func TestStateStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("::: not yaml"), 0o644))

	_, _, err := NewStateStore(path).Load("x")
	assert.Error(t, err)
}

func TestRemoveDatabaseFiles(t *testing.T) {
	dir := t.TempDir()
	path := DatabasePath(dir, "Events")
	assert.Equal(t, filepath.Join(dir, "Events.db"), path)

	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	assert.True(t, DatabaseExists(path))

	require.NoError(t, RemoveDatabaseFiles(path))
	assert.False(t, DatabaseExists(path))
	assert.False(t, DatabaseExists(path+"-wal"))

	// Missing files are fine.
	require.NoError(t, RemoveDatabaseFiles(path))
}

func TestOpenSQLite_ConfiguresAndReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "test.db")

	db, err := OpenSQLite(path, SQLiteOptions{})
	require.NoError(t, err)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	require.NoError(t, ApplySchema(db, "CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY)", []Migration{
		{Version: 1, SQL: "CREATE INDEX IF NOT EXISTS t_idx ON t(id)"},
	}))
	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, 1, version)

	_, err = db.Exec("INSERT INTO t (id) VALUES (1)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO t (id) VALUES (1)")
	assert.True(t, IsUniqueViolation(err))
	require.NoError(t, db.Close())

	ro, err := OpenSQLite(path, SQLiteOptions{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()

	var n int
	require.NoError(t, ro.QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
	assert.Equal(t, 1, n)
	_, err = ro.Exec("INSERT INTO t (id) VALUES (2)")
	assert.Error(t, err)
}

func TestOpenSQLite_ReadOnlyMissingFile(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "missing.db"), SQLiteOptions{ReadOnly: true})
	assert.True(t, IsBackendUnavailable(err))
}

// fakeSource is an in-memory migration source.
type fakeSource struct {
	count   int
	rows    []int
	readErr error
	closed  bool
}

func (f *fakeSource) CountRows(context.Context) (int, error) { return f.count, nil }
func (f *fakeSource) ReadAll(context.Context) ([]int, error) { return f.rows, f.readErr }
func (f *fakeSource) Close() error                           { f.closed = true; return nil }

// fakeTarget is an in-memory migration target; drop loses rows on insert.
type fakeTarget struct {
	rows   []int
	drop   int
	closed bool
}

func (f *fakeTarget) Count(context.Context) (int, error) { return len(f.rows), nil }
func (f *fakeTarget) InsertAll(_ context.Context, rows []int) error {
	f.rows = append(f.rows, rows[:len(rows)-f.drop]...)
	return nil
}
func (f *fakeTarget) Close() error { f.closed = true; return nil }

func TestMigrate_CopiesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{count: 3, rows: []int{1, 2, 3}}
	dst := &fakeTarget{}

	report, err := Migrate[int](ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Copied)
	assert.False(t, report.AlreadyMigrated)

	report, err = Migrate[int](ctx, src, dst)
	require.NoError(t, err)
	assert.True(t, report.AlreadyMigrated)
	assert.Len(t, dst.rows, 3)
}

func TestMigrate_PartialRead(t *testing.T) {
	src := &fakeSource{count: 3, rows: []int{1, 2}}
	report, err := Migrate[int](context.Background(), src, &fakeTarget{})
	assert.True(t, IsPartialRead(err))
	assert.True(t, report.TargetEmpty)
}

func TestMigrate_RowCountMismatch(t *testing.T) {
	src := &fakeSource{count: 3, rows: []int{1, 2, 3}}
	_, err := Migrate[int](context.Background(), src, &fakeTarget{drop: 1})
	assert.True(t, IsRowCountMismatch(err))
}

func TestMigrate_EmptySource(t *testing.T) {
	report, err := Migrate[int](context.Background(), &fakeSource{}, &fakeTarget{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.SourceRows)
}

type recordingObserver struct {
	backend Backend
	outcome Outcome
}

func (o *recordingObserver) ObserveSelection(_ string, b Backend, out Outcome) {
	o.backend, o.outcome = b, out
}

type selectorFixture struct {
	dir      string
	src      *fakeSource
	modern   *fakeTarget
	legacy   *fakeTarget
	modernOK bool
	legacyOK bool
	observer *recordingObserver
	state    *StateStore
}

func newSelectorFixture(t *testing.T) *selectorFixture {
	dir := t.TempDir()
	return &selectorFixture{
		dir:      dir,
		src:      &fakeSource{},
		modern:   &fakeTarget{},
		legacy:   &fakeTarget{},
		modernOK: true,
		legacyOK: true,
		observer: &recordingObserver{},
		state:    NewStateStore(filepath.Join(dir, "state.yaml")),
	}
}

func (f *selectorFixture) selector() *Selector[*fakeTarget, int] {
	return &Selector[*fakeTarget, int]{
		Namespace:  "ns",
		Dir:        f.dir,
		ModernName: "Modern",
		LegacyName: "Legacy",
		OpenModern: func(_ context.Context, path string) (*fakeTarget, Target[int], error) {
			if !f.modernOK {
				return nil, nil, errors.New("cannot open")
			}
			if err := os.WriteFile(path, []byte("m"), 0o644); err != nil {
				return nil, nil, err
			}
			return f.modern, f.modern, nil
		},
		OpenLegacy: func(context.Context, string) (*fakeTarget, error) {
			if !f.legacyOK {
				return nil, errors.New("legacy broken")
			}
			return f.legacy, nil
		},
		OpenSource: func(context.Context, string) (Source[int], error) {
			return f.src, nil
		},
		State:    f.state,
		Logger:   zerolog.Nop(),
		Observer: f.observer,
	}
}

func (f *selectorFixture) writeLegacyFile(t *testing.T) {
	require.NoError(t, os.WriteFile(DatabasePath(f.dir, "Legacy"), []byte("l"), 0o644))
}

func TestSelector_FreshInstall(t *testing.T) {
	f := newSelectorFixture(t)

	sel, err := f.selector().Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackendModern, sel.Backend)
	assert.Equal(t, OutcomeFresh, sel.Outcome)
	assert.Same(t, f.modern, sel.Store)

	st, ok, err := f.state.Load("ns")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ActivationState{ActiveDBName: "Modern", IsModern: true}, st)
}

func TestSelector_MigratesLegacy(t *testing.T) {
	f := newSelectorFixture(t)
	f.writeLegacyFile(t)
	f.src.count, f.src.rows = 2, []int{10, 20}

	sel, err := f.selector().Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackendModern, sel.Backend)
	assert.Equal(t, OutcomeMigrated, sel.Outcome)
	assert.Equal(t, []int{10, 20}, f.modern.rows)
	assert.True(t, f.src.closed)
	assert.Equal(t, OutcomeMigrated, f.observer.outcome)
}

func TestSelector_PartialReadFallsBackAndDiscardsModern(t *testing.T) {
	f := newSelectorFixture(t)
	f.writeLegacyFile(t)
	f.src.count, f.src.rows = 3, []int{10, 20}

	sel, err := f.selector().Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackendLegacy, sel.Backend)
	assert.Equal(t, OutcomeFallback, sel.Outcome)
	assert.True(t, IsPartialRead(sel.MigrationErr))
	assert.Same(t, f.legacy, sel.Store)
	assert.True(t, f.modern.closed)
	assert.False(t, DatabaseExists(DatabasePath(f.dir, "Modern")))

	st, _, err := f.state.Load("ns")
	require.NoError(t, err)
	assert.Equal(t, ActivationState{ActiveDBName: "Legacy", IsModern: false}, st)
}

func TestSelector_RowCountMismatchFallsBack(t *testing.T) {
	f := newSelectorFixture(t)
	f.writeLegacyFile(t)
	f.src.count, f.src.rows = 2, []int{1, 2}
	f.modern.drop = 1

	sel, err := f.selector().Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackendLegacy, sel.Backend)
	assert.True(t, IsRowCountMismatch(sel.MigrationErr))
}

func TestSelector_AlreadyMigratedKeepsModern(t *testing.T) {
	f := newSelectorFixture(t)
	f.writeLegacyFile(t)
	f.modern.rows = []int{1}
	f.src.count, f.src.rows = 5, []int{1}

	sel, err := f.selector().Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackendModern, sel.Backend)
	assert.Equal(t, OutcomeAlreadyMigrated, sel.Outcome)
	assert.Equal(t, []int{1}, f.modern.rows)
}

func TestSelector_SettledModernIsNotRefilledFromLegacy(t *testing.T) {
	f := newSelectorFixture(t)
	f.writeLegacyFile(t)
	f.src.count, f.src.rows = 2, []int{10, 20}

	sel, err := f.selector().Select(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeMigrated, sel.Outcome)

	// Every migrated row is removed again while modern is active.
	f.modern.rows = nil
	f.src.closed = false

	sel, err = f.selector().Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackendModern, sel.Backend)
	assert.Equal(t, OutcomeAlreadyMigrated, sel.Outcome)
	assert.Empty(t, f.modern.rows)
	assert.False(t, f.src.closed, "legacy must not be read again")
}

func TestSelector_MissingModernFileMigratesAgain(t *testing.T) {
	f := newSelectorFixture(t)
	f.writeLegacyFile(t)
	f.src.count, f.src.rows = 1, []int{7}
	require.NoError(t, f.state.Save("ns", ActivationState{ActiveDBName: "Modern", IsModern: true}))

	sel, err := f.selector().Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeMigrated, sel.Outcome)
	assert.Equal(t, []int{7}, f.modern.rows)
}

func TestSelector_ModernUnavailable(t *testing.T) {
	f := newSelectorFixture(t)
	f.modernOK = false

	sel, err := f.selector().Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackendLegacy, sel.Backend)
	assert.Equal(t, OutcomeModernUnavailable, sel.Outcome)
}

func TestSelector_NoBackend(t *testing.T) {
	f := newSelectorFixture(t)
	f.modernOK = false
	f.legacyOK = false

	_, err := f.selector().Select(context.Background())
	assert.True(t, IsBackendUnavailable(err))

	_, ok, lerr := f.state.Load("ns")
	require.NoError(t, lerr)
	assert.False(t, ok, "state must not be written without a final choice")
}
