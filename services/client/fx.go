package client

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"license-controlplane/services/auth"
)

var Module = fx.Module("client.module",
	fx.Provide(NewService),
)

var ServerModule = fx.Module("client.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, m *auth.Middleware, h *Handler) {
	admin := r.Group("/admin", m.RequireAdmin())
	h.Register(admin)
}
