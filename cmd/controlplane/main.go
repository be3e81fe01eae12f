package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/db"
	"license-controlplane/pkg/gen"
	"license-controlplane/pkg/health"
	"license-controlplane/pkg/keys"
	"license-controlplane/pkg/logger"
	"license-controlplane/pkg/middleware"
	"license-controlplane/pkg/redis"
	"license-controlplane/pkg/secretmanager"
	"license-controlplane/pkg/server"
	"license-controlplane/pkg/task"
	"license-controlplane/services/auth"
	"license-controlplane/services/billing"
	"license-controlplane/services/bootstrap"
	"license-controlplane/services/client"
	"license-controlplane/services/license"
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
		keys.Module,
		task.Client,
		health.Module,
		provisioning.Module,
		bootstrap.Module,
		fx.Invoke(registerBaseRoutes),
		auth.ServerModule,
		billing.ServerModule,
		client.ServerModule,
		license.ServerModule,
		tenant.ServerModule,
		server.ProvideHTTPServer,
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

func registerBaseRoutes(r *gin.Engine, h health.HealthService) {
	r.Use(middleware.Error(), middleware.RequireJSON())

	r.GET("/v1/health", h.Readiness)
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}
