package client

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"license-controlplane/pkg/db/pagination"
	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(admin *gin.RouterGroup) {
	admin.POST("/clients", h.create)
	admin.GET("/clients", h.list)
	admin.GET("/clients/:id", h.get)
	admin.PUT("/clients/:id", h.update)
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
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid pagination", err))
		return
	}

	out, err := h.service.List(c.Request.Context(), page)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"clients": out})
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
