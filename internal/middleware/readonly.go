package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/boxfi/boxd/internal/pkg/apperrors"
)

// ReadOnlyMiddleware rejects mutating requests when the gateway runs in
// read-only mode. The guardian shutdown path stays open: halting the vault
// must work even when everything else is frozen.
func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		if c.Request.Method == http.MethodPost && c.FullPath() == "/v1/shutdown" {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		default:
			c.Error(apperrors.New(apperrors.ErrReadOnly, "read-only mode enabled", nil))
			c.Abort()
			return
		}
	}
}
