package middleware

import (
	"net/http"

	"license-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error pushed onto the gin context as a structured
// JSON body with the matching HTTP status.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		base := errutil.AsBaseError(err.Err)
		c.JSON(base.Code.HTTPStatus(), base.JSON())
	}
}

// Abort writes err through the gin error chain and stops the handler chain.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	base := errutil.AsBaseError(err)
	c.AbortWithStatusJSON(base.Code.HTTPStatus(), base.JSON())
}

// RequireJSON rejects non-JSON bodies on mutating endpoints. Bodyless
// requests pass through.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength > 0 && c.ContentType() != "application/json" {
				Abort(c, errutil.New(errutil.StatusUnsupportedMediaType, "expected application/json"))
				return
			}
		}
		c.Next()
	}
}
