package license

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"license-controlplane/pkg/db/pagination"
	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/keys"
	"license-controlplane/pkg/middleware"
)

type Handler struct {
	service *Service
	keys    *keys.Manager
}

func NewHandler(service *Service, km *keys.Manager) *Handler {
	return &Handler{service: service, keys: km}
}

// RegisterPublic mounts the endpoints called by deployed installations.
func (h *Handler) RegisterPublic(r *gin.Engine) {
	v1 := r.Group("/v1")
	v1.POST("/activate", h.activate)
	v1.POST("/validate", h.validate)
	v1.GET("/public-key", h.publicKey)
}

// RegisterAdmin mounts the license management surface.
func (h *Handler) RegisterAdmin(admin *gin.RouterGroup) {
	admin.POST("/licenses", h.create)
	admin.GET("/licenses", h.list)
	admin.GET("/licenses/:id", h.get)
	admin.PUT("/licenses/:id", h.update)
	admin.POST("/licenses/:id/revoke", h.revoke)
	admin.POST("/licenses/:id/suspend", h.suspend)
	admin.POST("/licenses/:id/reactivate", h.reactivate)
	admin.POST("/licenses/:id/clear-hardware", h.clearHardware)
	admin.GET("/licenses/:id/download", h.download)
	admin.GET("/licenses/:id/validations", h.validations)
}

func (h *Handler) meta(c *gin.Context) RequestMeta {
	return RequestMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func (h *Handler) activate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.service.Activate(c.Request.Context(), req, h.meta(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (h *Handler) validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.service.Validate(c.Request.Context(), req, h.meta(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (h *Handler) publicKey(c *gin.Context) {
	pem, err := h.keys.PublicKeyPEM()
	if err != nil {
		middleware.Abort(c, errutil.Internal("failed to export public key", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"public_key": pem,
		"algorithm":  "RSA-PSS",
		"hash":       "SHA256",
	})
}

func (h *Handler) create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, out)
}

func (h *Handler) list(c *gin.Context) {
	var filter ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid filter", err))
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid pagination", err))
		return
	}

	out, err := h.service.List(c.Request.Context(), filter, page)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"licenses": out})
}

func (h *Handler) get(c *gin.Context) {
	out, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) revoke(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	out, err := h.service.Revoke(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) suspend(c *gin.Context) {
	out, err := h.service.Suspend(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) reactivate(c *gin.Context) {
	out, err := h.service.Reactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) clearHardware(c *gin.Context) {
	out, err := h.service.ClearHardware(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) download(c *gin.Context) {
	out, err := h.service.DownloadFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=license.json")
	c.JSON(http.StatusOK, out)
}

func (h *Handler) validations(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid pagination", err))
		return
	}

	out, err := h.service.Validations(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"validations": out})
}
