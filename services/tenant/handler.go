package tenant

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

// RegisterPublic mounts the self-service surface: trial signup and the
// tenant user session endpoints.
func (h *Handler) RegisterPublic(r gin.IRouter) {
	reg := r.Group("/register")
	reg.POST("/trial", h.registerTrial)
	reg.GET("/status/:code", h.status)

	auth := r.Group("/tenant-auth")
	auth.POST("/login", h.login)
	auth.POST("/change-password", h.changePassword)
	auth.GET("/info/:code", h.info)
}

// RegisterAdmin mounts the operator surface.
func (h *Handler) RegisterAdmin(r gin.IRouter) {
	g := r.Group("/tenants")
	g.GET("/:code/health", h.health)
	g.DELETE("/:code", h.remove)
}

func (h *Handler) registerTrial(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid request body", err))
		return
	}

	resp, err := h.service.RegisterTrial(c.Request.Context(), req)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) status(c *gin.Context) {
	resp, err := h.service.Status(c.Request.Context(), c.Param("code"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid request body", err))
		return
	}

	resp, err := h.service.Login(c.Request.Context(), c.ClientIP(), req)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) changePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid request body", err))
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), req); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

func (h *Handler) info(c *gin.Context) {
	resp, err := h.service.Info(c.Request.Context(), c.Param("code"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) health(c *gin.Context) {
	resp, err := h.service.Health(c.Request.Context(), c.Param("code"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) remove(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("code")); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "tenant cancellation scheduled"})
}
