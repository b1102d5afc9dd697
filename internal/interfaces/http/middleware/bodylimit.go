package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimitConfig bounds operator API request bodies
type BodyLimitConfig struct {
	// MaxBytes applies to every route without its own limit
	MaxBytes int64
	// Routes sets the limit per route pattern, e.g. "/api/v1/sync"
	Routes map[string]int64
}

func (c BodyLimitConfig) limitFor(route string) int64 {
	if n, ok := c.Routes[route]; ok {
		return n
	}
	return c.MaxBytes
}

// BodyLimit refuses a declared Content-Length over the route's limit before the
// handler runs. Chunked bodies are cut off while being read; handlers detect
// that with IsBodyTooLarge.
func BodyLimit(cfg BodyLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := cfg.limitFor(c.FullPath())
		if c.Request.ContentLength > limit {
			AbortBodyTooLarge(c, limit)
			return
		}
		if c.Request.Body != nil && c.Request.Body != http.NoBody {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// IsBodyTooLarge reports whether err came from reading past the body limit
func IsBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

// AbortBodyTooLarge answers 413 in the response envelope
func AbortBodyTooLarge(c *gin.Context, limit int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeRequestTooLarge,
		fmt.Sprintf("Request body exceeds the %d byte limit", limit),
		logger.GetRequestID(c.Request.Context()),
	))
}
