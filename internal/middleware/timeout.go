package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// TimeoutConfig holds configuration for request timeouts.
type TimeoutConfig struct {
	Timeout       time.Duration
	ErrorMessage  string
	ExcludedPaths []string
}

// DefaultTimeoutConfig excludes the WebSocket upgrade route, whose
// connection is meant to live far longer than an ordinary HTTP request.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Timeout:       10 * time.Second,
		ErrorMessage:  "Request timeout",
		ExcludedPaths: []string{"/socket"},
	}
}

// Timeout enforces a maximum duration on every non-excluded request.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	excluded := make(map[string]bool, len(config.ExcludedPaths))
	for _, path := range config.ExcludedPaths {
		excluded[path] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for excludedPath := range excluded {
			if len(path) >= len(excludedPath) && path[:len(excludedPath)] == excludedPath {
				c.Next()
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		go func() {
			c.Next()
			close(finished)
		}()

		select {
		case <-finished:
			return
		case <-ctx.Done():
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"error":   config.ErrorMessage,
				"timeout": config.Timeout.String(),
			})
			return
		}
	}
}
