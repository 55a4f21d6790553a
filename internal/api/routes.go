package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/escrow-gin/internal/auth"
	"github.com/mautops/escrow-gin/internal/metrics"
	"github.com/mautops/escrow-gin/internal/websocket"
	"gorm.io/gorm"
)

// RouterOptions 路由依赖
type RouterOptions struct {
	Hub            *websocket.Hub
	Validator      *auth.TokenValidator
	DB             *gorm.DB
	Tasks          *TaskController
	Conditions     *ConditionController
	Quotes         *QuoteController
	Health         *HealthController
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// SetupRoutes 配置路由
func SetupRoutes(opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// 中间件
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	if len(opts.AllowedOrigins) > 0 {
		router.Use(CORSMiddleware(opts.AllowedOrigins))
	}
	if opts.RateLimitRPS > 0 {
		router.Use(RateLimitMiddleware(opts.RateLimitRPS, opts.RateLimitBurst))
	}

	// 健康检查
	if opts.Health != nil {
		router.GET("/health", opts.Health.Check)
	}

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// WebSocket 路由
	if opts.Hub != nil {
		router.GET("/ws/tasks/:id", websocket.WebSocketHandler(opts.Hub, opts.Validator))
	}

	// API v1 路由组
	v1 := router.Group("/api/v1")
	v1.Use(auth.IdentityMiddleware(opts.Validator))
	{
		// 任务管理路由
		tasks := v1.Group("/tasks")
		{
			tasks.POST("", opts.Tasks.Create)
			tasks.GET("", opts.Tasks.List)
			tasks.GET("/:id", opts.Tasks.Get)
			tasks.POST("/:id/accept", opts.Tasks.Accept)
			tasks.POST("/:id/fund", opts.Tasks.Fund)
			tasks.POST("/:id/submit", opts.Tasks.Submit)
			tasks.POST("/:id/approve", opts.Tasks.Approve)
			tasks.POST("/:id/request-changes", opts.Tasks.RequestChanges)
			tasks.POST("/:id/release", opts.Tasks.Release)
			tasks.POST("/:id/cancel", opts.Tasks.Cancel)
			tasks.POST("/:id/bridge", opts.Tasks.Bridge)
			tasks.POST("/:id/reconcile", opts.Tasks.Reconcile)
			tasks.POST("/:id/conditions", opts.Conditions.Register)
		}

		// 条件释放路由
		conditions := v1.Group("/conditions")
		{
			conditions.GET("/:hash", opts.Conditions.Get)
			conditions.POST("/:hash/release", opts.Conditions.ReleaseIf)
		}

		// 报价路由
		if opts.Quotes != nil {
			v1.GET("/quotes", opts.Quotes.Convert)
		}
	}

	return router
}
