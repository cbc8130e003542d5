// Package middleware 提供 gin 中间件
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantrix-platform/quantrix-rbm/internal/metrics"
)

// Metrics 按请求记录 HTTP 监控指标
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		// FullPath 返回带 :param 占位符的路由模板，避免基数爆炸；
		// 未匹配任何路由时退回原始路径
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		path = normalizePath(path)

		metrics.RecordHTTPRequest(c.Request.Method, path, status, duration)
	}
}

// normalizePath 收敛指标中的路径标签
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/..."
	}
	return path
}
