package api

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeadersMiddleware 安全响应头中间件
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		// 防止点击劫持
		ctx.Header("X-Frame-Options", "DENY")

		// 防止 MIME 类型嗅探攻击
		ctx.Header("X-Content-Type-Options", "nosniff")

		// Referrer 策略：只在同源请求时发送完整 referrer
		ctx.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// API 服务器不承载页面内容
		ctx.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// 调度数据实时性强，禁止缓存
		ctx.Header("Cache-Control", "no-store, no-cache, must-revalidate")
		ctx.Header("Pragma", "no-cache")

		ctx.Next()
	}
}

// CORSMiddleware 跨域资源共享中间件
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	// 构建允许的源映射，用于快速查找
	originsMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		originsMap[origin] = true
	}

	return func(ctx *gin.Context) {
		origin := ctx.GetHeader("Origin")

		// 检查是否为允许的源
		if origin != "" && (len(allowedOrigins) == 0 || originsMap[origin] || originsMap["*"]) {
			ctx.Header("Access-Control-Allow-Origin", origin)
			ctx.Header("Access-Control-Allow-Credentials", "true")
			ctx.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			ctx.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			ctx.Header("Access-Control-Expose-Headers", "X-Request-ID")
			ctx.Header("Access-Control-Max-Age", "86400") // 预检请求缓存 24 小时
		}

		// 处理预检请求
		if ctx.Request.Method == "OPTIONS" {
			ctx.AbortWithStatus(204)
			return
		}

		ctx.Next()
	}
}
