package license

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"license-controlplane/services/auth"
)

var Module = fx.Module("license.module",
	fx.Provide(NewSignatureEngine, NewService),
)

var ServerModule = fx.Module("license.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, m *auth.Middleware, h *Handler) {
	h.RegisterPublic(r)

	admin := r.Group("/admin", m.RequireAdmin())
	h.RegisterAdmin(admin)
}
