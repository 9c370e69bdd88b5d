package di

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/roach88/calnotify/internal/calendar"
	"github.com/roach88/calnotify/internal/clock"
	"github.com/roach88/calnotify/internal/config"
	"github.com/roach88/calnotify/internal/dismissed"
	"github.com/roach88/calnotify/internal/events"
	"github.com/roach88/calnotify/internal/lifecycle"
	"github.com/roach88/calnotify/internal/logging"
	"github.com/roach88/calnotify/internal/metrics"
	"github.com/roach88/calnotify/internal/notify"
	"github.com/roach88/calnotify/internal/quiet"
	"github.com/roach88/calnotify/internal/storage"
)

func NewLogger(conf *config.Config, w io.Writer) (zerolog.Logger, error) {
	return logging.New(conf.Logger, w)
}

func NewClock() clock.Clock {
	return clock.System{}
}

func NewStateStore(conf *config.Config) *storage.StateStore {
	return storage.NewStateStore(conf.Storage.StateFile)
}

func NewEvents(ctx context.Context, conf *config.Config, state *storage.StateStore, logger zerolog.Logger, rec metrics.Recorder) (*events.Facade, func(), error) {
	f, err := events.Open(ctx, events.Options{
		Dir:               conf.Storage.Dir,
		CRSQLiteExtension: conf.Storage.CRSQLiteExtension,
		State:             state,
		Logger:            logger,
		Observer:          rec,
	})
	if err != nil {
		return nil, nil, err
	}
	return f, closer(logger, "events", f), nil
}

func NewArchive(ctx context.Context, conf *config.Config, state *storage.StateStore, logger zerolog.Logger, rec metrics.Recorder) (*dismissed.Facade, func(), error) {
	f, err := dismissed.Open(ctx, dismissed.Options{
		Dir:               conf.Storage.Dir,
		CRSQLiteExtension: conf.Storage.CRSQLiteExtension,
		State:             state,
		Logger:            logger,
		Observer:          rec,
	})
	if err != nil {
		return nil, nil, err
	}
	return f, closer(logger, "dismissed", f), nil
}

func NewCalendar(conf *config.Config) (*calendar.Fixture, error) {
	f, err := calendar.LoadFixture(conf.Calendar.Fixture)
	if err != nil {
		return nil, err
	}
	if len(conf.Calendar.Handled) > 0 {
		f.SetHandled(conf.Calendar.Handled)
	}
	return f, nil
}

func NewQuietHours(conf *config.Config) (quiet.Hours, error) {
	return conf.QuietHours()
}

func NewSink(logger zerolog.Logger) notify.Sink {
	return notify.NewLogSink(logger.With().Str("component", "sink").Logger())
}

func NewManager(conf *config.Config, store *events.Facade, sink notify.Sink, alarms *notify.TimerScheduler, hours quiet.Hours, clk clock.Clock, logger zerolog.Logger, rec metrics.Recorder) *notify.Manager {
	return notify.NewManager(notify.ManagerDeps{
		Events:   store,
		Planner:  notify.NewPlanner(conf.Policy()),
		Sink:     sink,
		Alarms:   alarms,
		Quiet:    hours,
		Clock:    clk,
		Logger:   logger,
		Recorder: rec,
	})
}

func NewOrchestrator(store *events.Facade, archive *dismissed.Facade, cal *calendar.Fixture, clk clock.Clock, hours quiet.Hours, manager *notify.Manager, logger zerolog.Logger, rec metrics.Recorder) *lifecycle.Orchestrator {
	return lifecycle.New(lifecycle.Deps{
		Events:   store,
		Archive:  archive,
		Calendar: cal,
		Clock:    clk,
		Quiet:    hours,
		Effects:  manager,
		Logger:   logger,
		IDs:      lifecycle.UUIDv7{},
		Recorder: rec,
	})
}

func closer(logger zerolog.Logger, name string, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Error().Err(err).Str("store", name).Msg("error closing database")
		}
	}
}
