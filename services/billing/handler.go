package billing

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
	admin.GET("/plans", h.listPlans)
	admin.GET("/plans/:code", h.getPlan)
	admin.POST("/tenants/:code/payments", h.recordPayment)
	admin.GET("/tenants/:code/payments", h.listPayments)
	admin.POST("/payments/:id/confirm", h.confirmPayment)
}

func (h *Handler) listPlans(c *gin.Context) {
	out, err := h.service.ListPlans(c.Request.Context())
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"plans": out})
}

func (h *Handler) getPlan(c *gin.Context) {
	out, err := h.service.PlanByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (h *Handler) recordPayment(c *gin.Context) {
	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.service.RecordPayment(c.Request.Context(), c.Param("code"), req)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, out)
}

func (h *Handler) listPayments(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		middleware.Abort(c, errutil.BadRequest("invalid pagination", err))
		return
	}

	out, err := h.service.PaymentsByTenant(c.Request.Context(), c.Param("code"), page)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": out})
}

func (h *Handler) confirmPayment(c *gin.Context) {
	out, err := h.service.ConfirmPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}
