package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxTraceID    = "traceID"
	headerTraceID = "X-Trace-ID"
)

// TraceMiddleware 沿用上游的 X-Trace-ID，没有时生成新的，并回写到响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(headerTraceID)
		if traceID == "" || len(traceID) > 64 {
			traceID = uuid.New().String()
		}

		c.Set(ctxTraceID, traceID)
		c.Header(headerTraceID, traceID)

		c.Next()
	}
}

// TraceID 当前请求的追踪 ID
func TraceID(c *gin.Context) string {
	return c.GetString(ctxTraceID)
}
