package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/boxfi/boxd/internal/pkg/apperrors"
	"github.com/boxfi/boxd/internal/pkg/logger"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only handle if there are errors
		if len(c.Errors) == 0 {
			return
		}

		// Get the last error; Wrap classifies raw engine errors into the
		// HTTP taxonomy.
		appErr := apperrors.Wrap(c.Errors.Last().Err)

		// Log the error
		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"client_ip", c.ClientIP(),
		}

		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "Internal Server Error", logFields...)
		} else {
			logger.Warn(appErr.Message, logFields...)
		}

		c.JSON(appErr.HTTPStatus, appErr)
	}
}
