//go:build wireinject
// +build wireinject

package di

import (
	"context"
	"io"

	wire "github.com/google/wire"

	"github.com/roach88/calnotify/internal/app"
	"github.com/roach88/calnotify/internal/config"
	"github.com/roach88/calnotify/internal/metrics"
	"github.com/roach88/calnotify/internal/notify"
)

func InitApp(ctx context.Context, conf *config.Config, logOut io.Writer) (*app.App, func(), error) {

	wire.Build(
		NewLogger,
		NewClock,
		metrics.New,
		NewStateStore,
		NewEvents,
		NewArchive,
		NewCalendar,
		NewQuietHours,
		NewSink,
		notify.NewTimerScheduler,
		NewManager,
		NewOrchestrator,
		app.New,
	)

	return nil, nil, nil
}
