package events

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/storage"
	"github.com/roach88/calnotify/internal/testutil"
)

func openFacade(t *testing.T, dir string, state *storage.StateStore) *Facade {
	t.Helper()
	f, err := Open(context.Background(), Options{Dir: dir, State: state, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func seedLegacy(t *testing.T, dir string, recs ...alert.Record) *LegacyStore {
	t.Helper()
	s, err := OpenLegacy(storage.DatabasePath(dir, LegacyDatabaseName), zerolog.Nop())
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, s.Add(context.Background(), r))
	}
	return s
}

func TestOpen_FreshInstallUsesModern(t *testing.T) {
	dir := t.TempDir()
	state := storage.NewStateStore(filepath.Join(dir, "state.yaml"))

	f := openFacade(t, dir, state)
	assert.Equal(t, storage.BackendModern, f.Backend())
	assert.Equal(t, storage.OutcomeFresh, f.Outcome())
	assert.Equal(t, ModernDatabaseName, f.DatabaseName())

	st, ok, err := state.Load(StateNamespace)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, storage.ActivationState{ActiveDBName: ModernDatabaseName, IsModern: true}, st)
}

func TestOpen_MigratesLegacyData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	state := storage.NewStateStore(filepath.Join(dir, "state.yaml"))

	legacy := seedLegacy(t, dir,
		testutil.NewRecord(1, 1000),
		testutil.NewRepeatingInstance(2, 5*testutil.Hour),
		testutil.NewRepeatingInstance(2, 6*testutil.Hour),
	)
	want, err := legacy.All(ctx)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	f := openFacade(t, dir, state)
	assert.Equal(t, storage.BackendModern, f.Backend())
	assert.Equal(t, storage.OutcomeMigrated, f.Outcome())
	assert.NoError(t, f.MigrationErr())

	got, err := f.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got, "notification ids and all fields survive migration")

	st, _, err := state.Load(StateNamespace)
	require.NoError(t, err)
	assert.True(t, st.IsModern)
}

func TestOpen_MigrationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	legacy := seedLegacy(t, dir, testutil.NewRecord(1, 0), testutil.NewRecord(2, 0))
	require.NoError(t, legacy.Close())

	first, err := Open(ctx, Options{Dir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)
	n1, err := first.Count(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := openFacade(t, dir, nil)
	assert.Equal(t, storage.OutcomeAlreadyMigrated, second.Outcome())
	n2, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
	assert.Equal(t, 2, n2)
}

func TestOpen_PartialReadFallsBackToLegacy(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	state := storage.NewStateStore(filepath.Join(dir, "state.yaml"))

	legacy := seedLegacy(t, dir, testutil.NewRecord(1, 0), testutil.NewRecord(2, 0))
	insertMalformedLegacyRow(t, legacy.db)
	require.NoError(t, legacy.Close())

	f := openFacade(t, dir, state)
	assert.Equal(t, storage.BackendLegacy, f.Backend())
	assert.Equal(t, storage.OutcomeFallback, f.Outcome())
	assert.True(t, storage.IsPartialRead(f.MigrationErr()))

	// The modern file is discarded so the next start retries from scratch.
	assert.False(t, storage.DatabaseExists(storage.DatabasePath(dir, ModernDatabaseName)))

	n, err := f.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "legacy data stays authoritative")

	st, _, err := state.Load(StateNamespace)
	require.NoError(t, err)
	assert.Equal(t, storage.ActivationState{ActiveDBName: LegacyDatabaseName, IsModern: false}, st)
}

func TestOpen_EmptyLegacyUsesModern(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, seedLegacy(t, dir).Close())

	f := openFacade(t, dir, nil)
	assert.Equal(t, storage.BackendModern, f.Backend())
	assert.Equal(t, storage.OutcomeEmptySource, f.Outcome())
}
