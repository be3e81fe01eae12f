package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *gin.Engine) {
	r.POST("/auth/login", h.login)
}

func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.service.Login(c.Request.Context(), c.ClientIP(), req)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}
