package route

import (
	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/companychat/internal/adapter/api/controller"
	"github.com/hugohenrick/companychat/pkg/auth"
	"github.com/hugohenrick/companychat/pkg/company"
	"github.com/hugohenrick/companychat/pkg/middleware"
)

// ChatRouteDeps reúne as dependências das rotas de chat
type ChatRouteDeps struct {
	ChatController   *controller.ChatController
	StreamController *controller.StreamController
	JWTService       *auth.JWTService
	Companies        company.Validator
	// RateLimiter limita o envio de mensagens; nil desabilita
	RateLimiter *middleware.RateLimiter
}

// SetupChatRoutes configura as rotas de chats e de streaming
func SetupChatRoutes(router *gin.RouterGroup, deps ChatRouteDeps) {
	chatRouter := router.Group("/chats")
	chatRouter.Use(auth.JWTAuthMiddleware(deps.JWTService))
	chatRouter.Use(company.Middleware(deps.Companies))
	{
		chatRouter.GET("", deps.ChatController.List)
		chatRouter.GET("/:chatId", deps.ChatController.Get)
		chatRouter.GET("/:chatId/messages", deps.ChatController.Messages)
		chatRouter.PATCH("/:chatId/visibility", deps.ChatController.UpdateVisibility)
		chatRouter.DELETE("/:chatId", deps.ChatController.Delete)

		post := []gin.HandlerFunc{deps.StreamController.Post}
		if deps.RateLimiter != nil {
			post = append([]gin.HandlerFunc{deps.RateLimiter.Middleware()}, post...)
		}
		chatRouter.POST("/:chatId/stream", post...)
		chatRouter.GET("/:chatId/stream", deps.StreamController.Attach)
		chatRouter.GET("/:chatId/stream/status", deps.StreamController.Status)
	}
}
