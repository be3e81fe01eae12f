package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.module",
	fx.Provide(NewService, NewMiddleware),
)

var ServerModule = fx.Module("auth.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}
