// Package app holds the assembled calnotify application and the daemon
// loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/calnotify/internal/calendar"
	"github.com/roach88/calnotify/internal/clock"
	"github.com/roach88/calnotify/internal/config"
	"github.com/roach88/calnotify/internal/dismissed"
	"github.com/roach88/calnotify/internal/events"
	"github.com/roach88/calnotify/internal/lifecycle"
	"github.com/roach88/calnotify/internal/maintenance"
	"github.com/roach88/calnotify/internal/metrics"
	"github.com/roach88/calnotify/internal/notify"
)

// App is every long-lived component of one process.
type App struct {
	Config        *config.Config
	Logger        zerolog.Logger
	Clock         clock.Clock
	Events        *events.Facade
	Archive       *dismissed.Facade
	Calendar      *calendar.Fixture
	Orchestrator  *lifecycle.Orchestrator
	Notifications *notify.Manager
	Alarms        *notify.TimerScheduler
	Metrics       metrics.Recorder
}

// New assembles an App.
func New(
	conf *config.Config,
	logger zerolog.Logger,
	clk clock.Clock,
	ev *events.Facade,
	archive *dismissed.Facade,
	cal *calendar.Fixture,
	orch *lifecycle.Orchestrator,
	manager *notify.Manager,
	alarms *notify.TimerScheduler,
	rec metrics.Recorder,
) *App {
	return &App{
		Config:        conf,
		Logger:        logger,
		Clock:         clk,
		Events:        ev,
		Archive:       archive,
		Calendar:      cal,
		Orchestrator:  orch,
		Notifications: manager,
		Alarms:        alarms,
		Metrics:       rec,
	}
}

// Pruner returns the archive pruner configured for this App.
func (a *App) Pruner() *maintenance.Pruner {
	return &maintenance.Pruner{
		Archive:  a.Archive,
		Clock:    a.Clock,
		MaxAge:   a.Config.Archive.MaxAge,
		Logger:   a.Logger.With().Str("component", "maintenance").Logger(),
		Recorder: a.Metrics,
	}
}

// UpdateGauges publishes the stored record counts.
func (a *App) UpdateGauges(ctx context.Context) {
	if n, err := a.Events.Count(ctx); err == nil {
		a.Metrics.SetRecords("events", n)
	}
	if n, err := a.Archive.Count(ctx); err == nil {
		a.Metrics.SetRecords("dismissed", n)
	}
}

// Run is the daemon loop. It posts the current notifications, then
// re-plans whenever a snooze returns, runs the maintenance jobs and serves
// metrics until ctx ends.
func (a *App) Run(ctx context.Context) error {
	log := a.Logger.With().Str("component", "daemon").Logger()

	sched := maintenance.NewScheduler(a.Logger)
	if err := sched.SchedulePurge(ctx, a.Config.Archive.PurgeSchedule, a.Pruner()); err != nil {
		return err
	}
	remind := func(ctx context.Context) error {
		_, err := a.Notifications.Remind(ctx)
		return err
	}
	if err := sched.ScheduleReminders(ctx, a.Config.Notifications.RemindInterval, remind); err != nil {
		return err
	}

	var srv *http.Server
	serverErr := make(chan error, 1)
	if a.Config.Metrics.Enabled && a.Config.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.Metrics.Handler())
		srv = &http.Server{
			Addr:         a.Config.Metrics.Listen,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	if _, err := a.Notifications.Refresh(ctx, notify.Options{}); err != nil {
		log.Error().Err(err).Msg("initial notification pass failed")
	}
	a.UpdateGauges(ctx)
	sched.Start()
	log.Info().Int("jobs", sched.Jobs()).Msg("daemon started")

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-serverErr:
			runErr = fmt.Errorf("metrics server: %w", err)
			break loop
		case <-a.Alarms.C():
			log.Debug().Msg("snooze return reached")
			if _, err := a.Notifications.Refresh(ctx, notify.Options{}); err != nil {
				log.Error().Err(err).Msg("notification pass failed")
			}
			a.UpdateGauges(ctx)
		}
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sched.Stop(shutdown)
	a.Alarms.Stop()
	if srv != nil {
		if err := srv.Shutdown(shutdown); err != nil {
			log.Error().Err(err).Msg("metrics server shutdown")
		}
	}
	log.Info().Msg("daemon stopped")
	return runErr
}
