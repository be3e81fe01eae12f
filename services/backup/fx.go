package backup

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("backup.module",
	fx.Provide(NewScheduler),
	fx.Invoke(registerScheduler),
)

func registerScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
}
