package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/db"
	"license-controlplane/pkg/gen"
	"license-controlplane/pkg/logger"
	miniofx "license-controlplane/pkg/minio"
	"license-controlplane/pkg/redis"
	"license-controlplane/pkg/secretmanager"
	"license-controlplane/pkg/task"
	"license-controlplane/services/backup"
	"license-controlplane/services/provisioning"
	"license-controlplane/services/tenant"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		task.Client,
		task.Server,
		miniofx.Client,
		provisioning.Module,
		tenant.WorkerModule,
		backup.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
