// Package maintenance runs the periodic jobs of the daemon: archive pruning
// and notification reminder passes.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/roach88/calnotify/internal/clock"
	"github.com/roach88/calnotify/internal/dismissed"
)

// PurgeRecorder counts pruned archive entries.
type PurgeRecorder interface {
	IncPurged(count int)
}

// Pruner removes archive entries older than MaxAge.
type Pruner struct {
	Archive  dismissed.Archive
	Clock    clock.Clock
	MaxAge   time.Duration
	Logger   zerolog.Logger
	Recorder PurgeRecorder
}

// Purge runs one pruning pass and returns the number of removed entries.
func (p *Pruner) Purge(ctx context.Context) (int, error) {
	now := p.Clock.NowMillis()
	n, err := p.Archive.PurgeOld(ctx, now, p.MaxAge.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("purge dismissed archive: %w", err)
	}
	if p.Recorder != nil {
		p.Recorder.IncPurged(n)
	}
	p.Logger.Info().Int("removed", n).Dur("max_age", p.MaxAge).Msg("dismissed archive pruned")
	return n, nil
}

// Scheduler owns the cron instance of the daemon.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewScheduler creates an idle Scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "maintenance").Logger()
	return &Scheduler{
		logger: logger,
		cron: cron.New(
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		),
	}
}

// SchedulePurge runs pruner on spec, a standard cron expression or
// descriptor such as "@daily".
func (s *Scheduler) SchedulePurge(ctx context.Context, spec string, pruner *Pruner) error {
	return s.add(spec, "purge", func() {
		if _, err := pruner.Purge(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduled purge failed")
		}
	})
}

// ScheduleReminders runs remind every interval. A zero interval schedules
// nothing.
func (s *Scheduler) ScheduleReminders(ctx context.Context, interval time.Duration, remind func(context.Context) error) error {
	if interval <= 0 {
		return nil
	}
	return s.add("@every "+interval.String(), "remind", func() {
		if err := remind(ctx); err != nil {
			s.logger.Error().Err(err).Msg("reminder pass failed")
		}
	})
}

func (s *Scheduler) add(spec, job string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", job, spec, err)
	}
	s.logger.Debug().Str("job", job).Str("spec", spec).Int("entry", int(id)).Msg("job scheduled")
	return nil
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	done := s.cron.Stop()
	s.mu.Unlock()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
