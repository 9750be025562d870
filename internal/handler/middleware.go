package handler

import (
	"context"
	"log"
	"strings"
	"time"

	"redpacket/internal/model"
	"redpacket/internal/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// 处理请求
		c.Next()

		// 记录日志
		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AccessLogMiddleware 接口访问日志落库
// 异步写入，不阻塞请求；写失败只记录
func AccessLogMiddleware(db *gorm.DB) gin.HandlerFunc {
	repo := repository.NewClaimLogRepository(db)

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := &model.AccessLog{
			Source:     accessSource(c.Request.URL.Path),
			Path:       c.Request.URL.Path,
			Method:     c.Request.Method,
			IP:         c.ClientIP(),
			UA:         c.Request.UserAgent(),
			StatusCode: c.Writer.Status(),
			LatencyMs:  time.Since(start).Milliseconds(),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := repo.CreateAccessLog(ctx, entry); err != nil {
				log.Printf("[AccessLog] 写入访问日志失败: %v", err)
			}
		}()
	}
}

func accessSource(path string) string {
	if strings.HasPrefix(path, "/r/") || strings.HasPrefix(path, "/claim/") {
		return "claim"
	}
	return "admin"
}
