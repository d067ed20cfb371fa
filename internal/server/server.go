package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/dayal123456/Lumico-ai/internal/ai"
	"github.com/dayal123456/Lumico-ai/internal/config"
	"github.com/dayal123456/Lumico-ai/internal/handler"
	authHandler "github.com/dayal123456/Lumico-ai/internal/handler/auth"
	"github.com/dayal123456/Lumico-ai/internal/pkg/cache"
	"github.com/dayal123456/Lumico-ai/internal/pkg/jwt"
	"github.com/dayal123456/Lumico-ai/internal/pkg/mongodb"
	"github.com/dayal123456/Lumico-ai/internal/pkg/storage"
	"github.com/dayal123456/Lumico-ai/internal/pkg/storage/storagefactory"
	"github.com/dayal123456/Lumico-ai/internal/repository"
	authRepo "github.com/dayal123456/Lumico-ai/internal/repository/auth"
	"github.com/dayal123456/Lumico-ai/internal/server/middleware"
	"github.com/dayal123456/Lumico-ai/internal/service"
)

// Server HTTP 服务器
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	mongo  *mongodb.Client
	redis  *cache.RedisCache
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	engine := gin.New()

	// 初始化 MongoDB
	mongoClient, err := mongodb.New(&cfg.Mongo)
	if err != nil {
		return nil, err
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

	if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	}

	// 初始化 Redis (可选，缺失时缓存与列表推送降级)
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	srv := &Server{
		cfg:    cfg,
		engine: engine,
		mongo:  mongoClient,
		redis:  redisCache,
	}

	if err := srv.setupRoutes(); err != nil {
		return nil, err
	}

	return srv, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() error {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	healthHandler := handler.NewHealthHandler()
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	db := s.mongo.Database()

	// 认证
	jwtSecret := s.cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = "default-secret-key-change-in-production"
		log.Warn().Msg("JWT secret not configured, using default (NOT SECURE for production)")
	}

	accessTokenExpiry := s.cfg.Auth.AccessTokenExpiry
	if accessTokenExpiry == 0 {
		accessTokenExpiry = 24 * time.Hour
	}

	refreshTokenExpiry := s.cfg.Auth.RefreshTokenExpiry
	if refreshTokenExpiry == 0 {
		refreshTokenExpiry = 7 * 24 * time.Hour
	}

	authSvc := service.NewAuthService(
		authRepo.NewUserRepo(db),
		authRepo.NewRefreshTokenRepo(db),
		jwtSecret,
		accessTokenExpiry,
		refreshTokenExpiry,
	)
	authHdl := authHandler.NewHandler(authSvc)
	jwtUtil := jwt.NewJWT(jwtSecret, accessTokenExpiry)

	// 附件存储 (可选)
	var store storage.Storage
	if s.cfg.Storage.Type != "" {
		st, err := storagefactory.New(&s.cfg.Storage)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize attachment storage, continuing without it")
		} else {
			store = st
			log.Info().Str("type", st.GetStorageType()).Msg("initialized attachment storage")
		}
	}

	// 标题生成器 (API key 未配置时本地降级)
	titleGen, err := ai.NewTitleGenerator(context.Background(), &s.cfg.AI)
	if err != nil {
		return err
	}

	// 对话服务
	convRepo := repository.NewConversationRepo(db)
	historySvc := service.NewHistoryService(convRepo, s.redis, titleGen, ai.ShouldRefreshTitle)
	chatSvc := service.NewChatService(ai.NewClient(&s.cfg.AI), historySvc)

	chatHdl := handler.NewChatHandler(chatSvc)
	convHdl := handler.NewConversationHandler(historySvc, s.redis)
	attachHdl := handler.NewAttachmentHandler(store)

	// API v1
	v1 := s.engine.Group("/api/v1")
	{
		// 认证接口（公开）
		v1.POST("/auth/register", authHdl.Register)
		v1.POST("/auth/login", authHdl.Login)
		v1.POST("/auth/refresh", authHdl.Refresh)
		v1.POST("/auth/logout", authHdl.Logout)
		v1.GET("/auth/me", authHdl.GetMe)

		// 需要认证的接口
		authed := v1.Group("")
		authed.Use(middleware.Auth(jwtUtil))
		{
			authed.POST("/chat/stream", chatHdl.Stream)
			authed.POST("/chat/stop", chatHdl.Stop)

			authed.GET("/conversations", convHdl.List)
			authed.GET("/conversations/watch", convHdl.Watch)
			authed.GET("/conversations/:id", convHdl.Get)
			authed.PATCH("/conversations/:id", convHdl.Rename)
			authed.DELETE("/conversations/:id", convHdl.Delete)
			authed.GET("/conversations/:id/messages/:message_id", convHdl.PrefillEdit)

			authed.POST("/files/extract", attachHdl.Extract)
		}
	}

	return nil
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 表示不限制，SSE 长连接依赖这一点
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		// 关闭连接
		if s.mongo != nil {
			if err := s.mongo.Close(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to close MongoDB connection")
			}
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Redis connection")
			}
		}

		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
