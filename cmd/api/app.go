package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/hugohenrick/companychat/docs"
	"github.com/hugohenrick/companychat/internal/adapter/api/controller"
	"github.com/hugohenrick/companychat/internal/adapter/api/route"
	"github.com/hugohenrick/companychat/internal/adapter/repository"
	"github.com/hugohenrick/companychat/internal/assistant"
	"github.com/hugohenrick/companychat/internal/config"
	"github.com/hugohenrick/companychat/internal/infrastructure/cache"
	"github.com/hugohenrick/companychat/internal/infrastructure/database"
	"github.com/hugohenrick/companychat/internal/observability"
	"github.com/hugohenrick/companychat/internal/streaming"
	"github.com/hugohenrick/companychat/pkg/auth"
	"github.com/hugohenrick/companychat/pkg/logger"
	"github.com/hugohenrick/companychat/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout limita o desligamento do servidor e das gerações
const shutdownTimeout = 15 * time.Second

// App representa a aplicação e suas dependências
type App struct {
	cfg     *config.Config
	logger  logger.Logger
	db      *database.PostgresDB
	redis   *goredis.Client
	metrics *observability.Metrics
	service *streaming.Service
	server  *http.Server
}

// NewApp cria uma nova instância do aplicativo
func NewApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: log}

	// Configurar banco de dados
	if err := database.RunMigrations(cfg.Database.ConnectionString(), log); err != nil {
		return nil, err
	}
	db, err := database.NewPostgresDB(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.db = db

	// Criar repositórios
	companyRepo := repository.NewCompanyRepository(db.Pool())
	userRepo := repository.NewUserRepository(db.Pool())
	chatRepo := repository.NewChatRepository(db)
	companyValidator := repository.NewCompanyValidator(companyRepo)

	// Lock de geração entre instâncias
	var locker streaming.Locker = streaming.NopLocker{}
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rdb
		locker = cache.NewRedisLocker(rdb, cfg.Redis.LockPrefix, log)
		log.Info("Lock de geração via Redis habilitado", "addr", cfg.Redis.Addr)
	} else {
		log.Warn("REDIS_ADDR não configurado, lock de geração apenas local")
	}

	generator, err := newGenerator(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = observability.NewMetrics(reg)

	a.service = streaming.NewService(streaming.Config{
		IdleTimeout:      cfg.Stream.IdleTimeout,
		LockTTL:          cfg.Stream.LockTTL,
		MaxMessageLength: cfg.Stream.MaxMessageLength,
	}, chatRepo, companyValidator, generator, streaming.NewRegistry(cfg.Stream.Retention), locker, a.metrics, log)

	jwtService, err := auth.NewJWTService(cfg.JWT.SecretKey, cfg.JWT.Expiration)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := route.NewRouter(cfg.BasePath, cfg.CORSOrigins, &route.Handlers{
		AuthController: controller.NewAuthController(userRepo, jwtService, log),
		ChatController: controller.NewChatController(chatRepo, a.service, log),
		StreamController: controller.NewStreamController(a.service, controller.StreamOptions{
			EventIDs:  cfg.Stream.EventIDs,
			KeepAlive: cfg.Stream.KeepAlive,
		}, log),
		JWTService:  jwtService,
		Companies:   companyValidator,
		RateLimiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Metrics:     a.metrics,
		Logger:      log,
		Swagger:     cfg.LogMode != "production",
	})

	a.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("Aplicação configurada", "generator", generator.Name(), "base_path", cfg.BasePath)
	return a, nil
}

func newGenerator(cfg *config.Config) (assistant.Generator, error) {
	switch cfg.Generator {
	case "openai":
		return assistant.NewOpenAI(assistant.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		})
	case "scripted", "":
		return assistant.NewScripted(cfg.Stream.FragmentDelay, cfg.Stream.Seed), nil
	}
	return nil, fmt.Errorf("gerador desconhecido: %q", cfg.Generator)
}

// Start serve HTTP e executa a limpeza dos streams até ctx ser cancelado.
// O desligamento encerra as gerações em andamento com o erro "shutdown".
func (a *App) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Servidor iniciado", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("erro no servidor HTTP: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.service.RunSweeper(gctx, a.cfg.Stream.SweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Desligando servidor")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// as gerações terminam primeiro para que os consumidores recebam
		// o evento terminal antes de as conexões serem fechadas
		if err := a.service.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Gerações não terminaram a tempo", "error", err)
		}
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("erro ao desligar servidor: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close libera os recursos da aplicação
func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
