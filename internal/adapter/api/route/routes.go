package route

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hugohenrick/companychat/internal/adapter/api/controller"
	"github.com/hugohenrick/companychat/internal/observability"
	"github.com/hugohenrick/companychat/pkg/auth"
	"github.com/hugohenrick/companychat/pkg/company"
	"github.com/hugohenrick/companychat/pkg/logger"
	"github.com/hugohenrick/companychat/pkg/middleware"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Version é a versão informada pelo health check
const Version = "1.0.0"

// Handlers reúne os controllers e serviços usados pelas rotas
type Handlers struct {
	AuthController   *controller.AuthController
	ChatController   *controller.ChatController
	StreamController *controller.StreamController
	JWTService       *auth.JWTService
	Companies        company.Validator
	RateLimiter      *middleware.RateLimiter
	Metrics          *observability.Metrics
	// Logger habilita o log de requisições
	Logger logger.Logger
	// Swagger habilita /swagger/*any
	Swagger bool
}

// NewRouter cria o engine com os middlewares globais e todas as rotas
func NewRouter(basePath string, corsOrigins []string, h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if h.Logger != nil {
		r.Use(middleware.RequestLogger(h.Logger))
	}

	corsConfig := cors.DefaultConfig()
	if len(corsOrigins) == 0 || (len(corsOrigins) == 1 && corsOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = corsOrigins
	}
	corsConfig.AddAllowHeaders("Authorization", "Last-Event-ID", "X-Stream-Id")
	corsConfig.AddExposeHeaders("X-Stream-Id", "Retry-After")
	r.Use(cors.New(corsConfig))

	if h.Metrics != nil {
		r.Use(h.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}
	if h.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	SetupRoutes(r, basePath, h)
	return r
}

// SetupRoutes configura todas as rotas da API
func SetupRoutes(r *gin.Engine, basePath string, h *Handlers) {
	api := r.Group(basePath)

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": Version,
		})
	})

	SetupAuthRoutes(api, h.AuthController, h.JWTService)

	SetupChatRoutes(api, ChatRouteDeps{
		ChatController:   h.ChatController,
		StreamController: h.StreamController,
		JWTService:       h.JWTService,
		Companies:        h.Companies,
		RateLimiter:      h.RateLimiter,
	})
}
