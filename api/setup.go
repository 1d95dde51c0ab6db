package api

import (
	"context"

	"aistudio/api/docs"
	chatHandlers "aistudio/api/handlers/chat"
	creditsHandlers "aistudio/api/handlers/credits"
	"aistudio/internal/config"
	"aistudio/internal/logger"
	"aistudio/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// Handlers HTTP 处理器集合
type Handlers struct {
	Chat    *chatHandlers.Handler
	Credits *creditsHandlers.Handler
	Limiter *RateLimiter // 为空表示不限流
}

// NewHandlers 由容器创建处理器
func NewHandlers(c *AppContainer) *Handlers {
	return &Handlers{
		Chat:    chatHandlers.NewHandler(c.AgentService, c.Inspector),
		Credits: creditsHandlers.NewHandler(c.CreditsService),
		Limiter: NewRateLimiter(c.Config.Server.RateLimit),
	}
}

// NewRouter 创建 Gin 路由：中间件、系统端点与业务路由
func NewRouter(handlers *Handlers, db *gorm.DB, rdb redis.UniversalClient) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	// 系统端点（无需身份）
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(db, rdb))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	RegisterRoutes(router, handlers)
	return router
}

// SetupRouter 组装依赖并返回 Gin 路由与容器，Worker 在容器中（未启用队列时为空）
func SetupRouter(ctx context.Context, db *gorm.DB, cfg *config.Config, opts ...ContainerOption) (*gin.Engine, *AppContainer, error) {
	container, err := NewContainer(ctx, db, cfg, logger.Get(), opts...)
	if err != nil {
		return nil, nil, err
	}
	docs.SwaggerInfo.BasePath = "/"
	return NewRouter(NewHandlers(container), db, container.RedisClient), container, nil
}
