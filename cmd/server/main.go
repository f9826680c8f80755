package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-demo/meet/internal/config"
	"github.com/go-demo/meet/internal/handler"
	"github.com/go-demo/meet/internal/middleware"
	"github.com/go-demo/meet/internal/pkg/cache"
	"github.com/go-demo/meet/internal/pkg/database"
	"github.com/go-demo/meet/internal/pkg/utils"
	"github.com/go-demo/meet/internal/repository"
	"github.com/go-demo/meet/internal/service"
	"github.com/go-demo/meet/internal/sfu"
	"github.com/go-demo/meet/internal/store"
	"github.com/go-demo/meet/internal/ws"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// @title           Meet API
// @version         1.0
// @description     Multi-party video room and SFU signaling service

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.Log.Level)
	defer logger.Sync()

	logger.Info("Starting meet server",
		zap.String("mode", cfg.Server.Mode),
		zap.Int("port", cfg.Server.Port),
	)

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := database.NewPostgres(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db, logger)

	// Initialize Redis
	redisClient, err := cache.NewRedis(&cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer cache.Close(redisClient, logger)

	// Initialize token managers
	jwtManager := utils.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
	)
	ticketManager, err := utils.NewTicketManager(
		cfg.Ticket.PrivateKeyPath,
		cfg.Ticket.PublicKeyPath,
		cfg.Ticket.TTL,
		cfg.Ticket.Issuer,
		cfg.Ticket.Audience,
	)
	if err != nil {
		logger.Fatal("Failed to load ticket keys", zap.Error(err))
	}

	// Initialize media engine and registry
	engine, err := sfu.NewPionEngine(&cfg.SFU, logger)
	if err != nil {
		logger.Fatal("Failed to initialize media engine", zap.Error(err))
	}
	stateStore := store.NewRoomStateStore(redisClient, logger)
	registry := sfu.NewRegistry(engine, stateStore, logger)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)

	// Initialize services
	authService := service.NewAuthService(userRepo, jwtManager, logger)
	roomService := service.NewRoomService(roomRepo, stateStore, registry, logger)
	ticketService := service.NewTicketService(stateStore, ticketManager, logger)

	// Initialize WebSocket hub
	hub := ws.NewHub(roomService, ticketService, stateStore, registry, redisClient, logger)
	go hub.Run()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	roomHandler := handler.NewRoomHandler(roomService)
	toolHandler := handler.NewToolHandler(ticketService)
	wsHandler := ws.NewHandler(hub, jwtManager, logger)

	// Setup router
	router := setupRouter(
		logger,
		jwtManager,
		redisClient,
		authHandler,
		roomHandler,
		toolHandler,
		wsHandler,
	)

	// Create server
	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server is running",
			zap.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}

func setupRouter(
	logger *zap.Logger,
	jwtManager *utils.JWTManager,
	redisClient *redis.Client,
	authHandler *handler.AuthHandler,
	roomHandler *handler.RoomHandler,
	toolHandler *handler.ToolHandler,
	wsHandler *ws.Handler,
) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// WebSocket signaling endpoint
	router.GET("/ws", wsHandler.ServeWS)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Auth routes (public)
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit(redisClient))
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/guest", authHandler.Guest)
		}

		// Room routes
		rooms := v1.Group("/rooms")
		rooms.Use(middleware.Auth(jwtManager))
		rooms.Use(middleware.APIRateLimit(redisClient))
		{
			rooms.GET("/:code", roomHandler.Get)

			// Catalog writes need a registered account; guests only join.
			owned := rooms.Group("")
			owned.Use(middleware.RequireAccount())
			{
				owned.GET("", roomHandler.List)
				owned.POST("", roomHandler.Create)
				owned.DELETE("/:code", roomHandler.Delete)
			}
		}

		// Tool backend routes (no user session; the ticket is the credential)
		tools := v1.Group("/tools")
		tools.Use(middleware.TicketRateLimit(redisClient))
		{
			tools.POST("/verify", toolHandler.Verify)
		}

		// WebSocket stats
		wsStats := v1.Group("/ws")
		wsStats.Use(middleware.Auth(jwtManager))
		{
			wsStats.GET("/stats", wsHandler.GetStats)
		}
	}

	return router
}
