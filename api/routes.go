package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册业务 API 路由，所有接口都需要 X-User-ID
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	api := router.Group("/api")
	api.Use(UserIdentity())

	registerChatRoutes(api, handlers)
	registerCreditsRoutes(api, handlers)
}

// registerChatRoutes 对话
func registerChatRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	chat := apiGroup.Group("/chat", UserRateLimit(h.Limiter))
	{
		chat.POST("/turn", h.Chat.RunTurn)
		chat.POST("/turn/async", h.Chat.RunTurnAsync)
		chat.GET("/turn/async/:id", h.Chat.GetTask)
	}
}

// registerCreditsRoutes 积分查询
func registerCreditsRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	credits := apiGroup.Group("/credits")
	{
		credits.GET("/balance", h.Credits.GetBalance)
		credits.GET("/usage", h.Credits.ListUsage)
		credits.GET("/usage/summary", h.Credits.SummarizeUsage)
		credits.GET("/transactions", h.Credits.ListTransactions)
	}
}
