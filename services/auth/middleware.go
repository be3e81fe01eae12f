package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/middleware"
)

const claimsKey = "auth.claims"

// Middleware guards admin routes with Bearer token auth.
type Middleware struct {
	service *Service
}

func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

func (m *Middleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			middleware.Abort(c, errutil.Unauthorized("missing bearer token", nil))
			return
		}

		claims, err := m.service.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			middleware.Abort(c, err)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}
