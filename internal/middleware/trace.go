package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceContextKey 用于在 Context 中存储 Trace ID
const TraceContextKey = "traceID"

// TraceMiddleware 给每个请求分配 Trace ID，方便排查慢请求
// (analyze/optimize 一次要等好几个外部往返)。
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 优先从 Header 获取（如果前端传了），否则生成新的
		traceID := c.GetHeader("X-Trace-Id")
		if traceID == "" {
			traceID = strings.ReplaceAll(uuid.New().String(), "-", "")
		}

		// 2. 存入 Gin Context
		c.Set(TraceContextKey, traceID)

		// 3. 存入标准 Context
		ctx := context.WithValue(c.Request.Context(), TraceContextKey, traceID)
		c.Request = c.Request.WithContext(ctx)

		// 4. 将 Trace ID 返回给前端 Header，方便调试
		c.Header("X-Trace-Id", traceID)

		c.Next()
	}
}

// TraceID 从标准 Context 取出 Trace ID，排查日志时带上它。
// 没有经过中间件 (如测试里直接调 service) 时返回空串。
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceContextKey).(string); ok {
		return id
	}
	return ""
}
