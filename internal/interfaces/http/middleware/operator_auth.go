package middleware

import (
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"

	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Header names and prefixes used by operator authentication
const (
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// OperatorAuthConfig holds configuration for operator token authentication
type OperatorAuthConfig struct {
	// Token is the shared operator secret; empty disables authentication
	Token string
	// SkipPaths are exact paths that don't require authentication
	SkipPaths []string
	Logger    *zap.Logger
}

// OperatorAuth requires "Authorization: Bearer <token>" on every request
// except the configured skip paths.
func OperatorAuth(cfg OperatorAuthConfig) gin.HandlerFunc {
	if cfg.Token == "" {
		return passThrough
	}
	want := []byte(cfg.Token)

	return func(c *gin.Context) {
		if slices.Contains(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		header := c.GetHeader(AuthHeaderKey)
		token, ok := strings.CutPrefix(header, BearerPrefix)
		if !ok || token == "" {
			rejectOperator(c, cfg, "Missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			rejectOperator(c, cfg, "Invalid operator token")
			return
		}
		c.Next()
	}
}

func rejectOperator(c *gin.Context, cfg OperatorAuthConfig, message string) {
	if cfg.Logger != nil {
		logger.Enrich(c.Request.Context(), cfg.Logger).Warn("Operator authentication failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
			zap.String("reason", message),
		)
	}
	c.Header("WWW-Authenticate", `Bearer realm="connector"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeUnauthorized,
		message,
		logger.GetRequestID(c.Request.Context()),
	))
}
