package middleware

import (
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/charlesng35/dealcache/pkg/errors"
	"github.com/charlesng35/dealcache/pkg/logger"
	"github.com/charlesng35/dealcache/pkg/response"
)

// Recovery turns a handler panic into a 500 envelope. The panic value stays in the log.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.WithModule("http").Error("handler panicked",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", RequestIDFrom(c)),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
		response.Error(c, appErrors.ErrInternalServer)
		c.Abort()
	})
}

// NotFoundHandler answers unknown routes when no network cache is mounted.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, appErrors.ErrNotFound.WithMessage("route "+c.Request.URL.Path+" not found"))
}
