package httpmw

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CapConcurrentRequests rejects requests beyond maxConcurrent in flight
// with 429, protecting the engine's range scans and snapshot operations
// from unbounded concurrent debug traffic.
func CapConcurrentRequests(maxConcurrent int) gin.HandlerFunc {
	slots := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case slots <- struct{}{}:
			defer func() { <-slots }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many concurrent debug requests",
			})
		}
	}
}
