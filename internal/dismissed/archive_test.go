package dismissed

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

func forEachArchive(t *testing.T, fn func(t *testing.T, a Archive)) {
	cases := []struct {
		name string
		open func(path string) (Archive, error)
	}{
		{"legacy", func(p string) (Archive, error) { return OpenLegacy(p, zerolog.Nop()) }},
		{"modern", func(p string) (Archive, error) { return OpenModern(p, "") }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a, err := c.open(filepath.Join(t.TempDir(), "archive.db"))
			require.NoError(t, err)
			t.Cleanup(func() { a.Close() })
			fn(t, a)
		})
	}
}

func TestArchive_AddGet(t *testing.T) {
	forEachArchive(t, func(t *testing.T, a Archive) {
		ctx := context.Background()
		rec := testutil.NewRecord(1, 1000)
		rec.Flags.Alarm = true

		require.NoError(t, a.Add(ctx, alert.ManuallyDismissedFromActivity, 5000, rec))

		got, ok, err := a.Get(ctx, rec.Key())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(5000), got.DismissTime)
		assert.Equal(t, alert.ManuallyDismissedFromActivity, got.DismissType)
		assert.Equal(t, rec.Title, got.Event.Title)
		assert.Equal(t, rec.Description, got.Event.Description)
		assert.Equal(t, rec.InstanceStartTime, got.Event.InstanceStartTime)
		assert.Equal(t, rec.InstanceEndTime, got.Event.InstanceEndTime)
		assert.True(t, got.Event.Flags.Alarm)

		_, ok, err = a.Get(ctx, alert.Key{EventID: 99})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestArchive_AddReplacesSameKey(t *testing.T) {
	forEachArchive(t, func(t *testing.T, a Archive) {
		ctx := context.Background()
		rec := testutil.NewRecord(1, 1000)
		rec.SnoozedUntil = 777
		require.NoError(t, a.Add(ctx, alert.ManuallyDismissedFromNotification, 10, rec))

		rec.SnoozedUntil = 0
		rec.Title = "renamed"
		require.NoError(t, a.Add(ctx, alert.EventMovedUsingApp, 20, rec))

		n, err := a.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, _, err := a.Get(ctx, rec.Key())
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Event.Title)
		assert.Equal(t, int64(0), got.Event.SnoozedUntil)
		assert.Equal(t, alert.EventMovedUsingApp, got.DismissType)
	})
}

func TestArchive_BatchDisplayOrderAndPurge(t *testing.T) {
	forEachArchive(t, func(t *testing.T, a Archive) {
		ctx := context.Background()
		require.NoError(t, a.AddBatch(ctx, alert.ManuallyDismissedFromActivity, 100,
			[]alert.Record{testutil.NewRecord(1, 0), testutil.NewRecord(2, 0)}))
		require.NoError(t, a.Add(ctx, alert.ManuallyDismissedFromActivity, 300, testutil.NewRecord(3, 0)))
		require.NoError(t, a.Add(ctx, alert.ManuallyDismissedFromActivity, 200, testutil.NewRecord(4, 0)))

		display, err := a.ForDisplay(ctx)
		require.NoError(t, err)
		require.Len(t, display, 4)
		assert.Equal(t, []int64{3, 4, 1, 2}, []int64{
			display[0].Event.EventID, display[1].Event.EventID,
			display[2].Event.EventID, display[3].Event.EventID,
		})

		// cutoff is 250 - 100 = 150: entries dismissed at 100 go.
		removed, err := a.PurgeOld(ctx, 250, 100)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		all, err := a.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, int64(3), all[0].Event.EventID)
	})
}

func TestArchive_DeleteAndClear(t *testing.T) {
	forEachArchive(t, func(t *testing.T, a Archive) {
		ctx := context.Background()
		r1, r2 := testutil.NewRecord(1, 0), testutil.NewRecord(2, 0)
		require.NoError(t, a.AddBatch(ctx, alert.ManuallyDismissedFromActivity, 1, []alert.Record{r1, r2}))

		ok, err := a.Delete(ctx, r1.Key())
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = a.Delete(ctx, r1.Key())
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, a.ClearHistory(ctx))
		n, err := a.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestOpen_MigratesLegacyArchive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	state := storage.NewStateStore(filepath.Join(dir, "state.yaml"))

	legacy, err := OpenLegacy(storage.DatabasePath(dir, LegacyDatabaseName), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, legacy.AddBatch(ctx, alert.ManuallyDismissedFromNotification, 42,
		[]alert.Record{testutil.NewRecord(1, 0), testutil.NewRecord(2, 0)}))
	want, err := legacy.All(ctx)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	f, err := Open(ctx, Options{Dir: dir, State: state, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, storage.BackendModern, f.Backend())
	assert.Equal(t, storage.OutcomeMigrated, f.Outcome())
	got, err := f.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	st, ok, err := state.Load(StateNamespace)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ModernDatabaseName, st.ActiveDBName)
}

func TestOpen_ArchiveFallsBackOnUnreadableRow(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	legacy, err := OpenLegacy(storage.DatabasePath(dir, LegacyDatabaseName), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, legacy.Add(ctx, alert.ManuallyDismissedFromActivity, 1, testutil.NewRecord(1, 0)))
	// dismissType 42 is not a known code.
	_, err = legacy.db.Exec(`INSERT INTO dismissedEventsV2 (eventId, instanceStart, dismissType, displayStatus)
		VALUES (2, 0, 42, 0)`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	f, err := Open(ctx, Options{Dir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, storage.BackendLegacy, f.Backend())
	assert.True(t, storage.IsPartialRead(f.MigrationErr()))
	assert.False(t, storage.DatabaseExists(storage.DatabasePath(dir, ModernDatabaseName)))
}
