package tenant

import (
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"

	"license-controlplane/services/auth"
)

var Module = fx.Module("tenant.module",
	fx.Provide(NewService),
)

var ServerModule = fx.Module("tenant.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

var WorkerModule = fx.Module("tenant.worker",
	Module,
	fx.Provide(NewWorker),
	fx.Invoke(registerHandlers),
)

func registerRoutes(r *gin.Engine, m *auth.Middleware, h *Handler) {
	h.RegisterPublic(r)

	admin := r.Group("/admin", m.RequireAdmin())
	h.RegisterAdmin(admin)
}

func registerHandlers(mux *asynq.ServeMux, w *Worker) {
	w.Register(mux)
}
