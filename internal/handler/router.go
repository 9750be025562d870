package handler

import (
	"redpacket/internal/config"
	"redpacket/internal/infrastructure/storage"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, channels *storage.Channels) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())
	r.Use(AccessLogMiddleware(db))

	// 创建处理器
	h := NewHandler(db, rdb, cfg, channels)

	// 扫码侧公开路由
	r.GET("/r/:token", h.ClaimGift)
	r.GET("/claim/content", h.RevealContent)

	// 本地存储通道的静态文件
	if cfg.Storage.Local.Dir != "" {
		r.Static("/uploads", cfg.Storage.Local.Dir)
	}

	// 管理端 API 路由组
	api := r.Group("/api/v1")
	{
		// 礼物二维码
		gifts := api.Group("/gifts")
		{
			gifts.POST("", h.CreateGift)
			gifts.GET("", h.ListGifts)
			gifts.GET("/:id", h.GetGift)
			gifts.PUT("/:id", h.UpdateGift)
			gifts.DELETE("/:id", h.DeleteGift)
			gifts.POST("/:id/activate", h.ActivateGift)
			gifts.POST("/:id/disable", h.DisableGift)
			gifts.POST("/:id/regenerate", h.RegenerateGiftQrcode)
		}

		// 红包
		packets := api.Group("/red-packets")
		{
			packets.POST("", h.CreateRedPackets)
			packets.GET("", h.ListRedPackets)
			packets.GET("/:id", h.GetRedPacket)
			packets.PUT("/:id", h.UpdateRedPacket)
			packets.DELETE("/:id", h.DeleteRedPacket)
			packets.POST("/:id/disable", h.DisableRedPacket)
			packets.POST("/:id/enable", h.EnableRedPacket)
			packets.POST("/:id/content-image", h.UploadContentImage)
		}

		// 审计日志
		logs := api.Group("/claim-logs")
		{
			logs.GET("", h.ListClaimLogs)
			logs.GET("/export", h.ExportClaimLogs)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
