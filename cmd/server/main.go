package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"prairielearn/backend/internal/config"
	"prairielearn/backend/internal/database"
	"prairielearn/backend/internal/fromdisk"
	"prairielearn/backend/internal/handler"
	"prairielearn/backend/internal/hub"
	"prairielearn/backend/internal/logger"
	"prairielearn/backend/internal/question"
	"prairielearn/backend/internal/telemetry"

	// Swagger imports
	"prairielearn/backend/docs" // This is important for swag to find the generated docs

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           PrairieLearn Course API
// @version         1.0
// @description     Course sync and instructor question preview API.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	envFile := flag.String("env", ".env", "path to the .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logr, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logr.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.OtelEnabled,
		Exporter:    cfg.OtelExporter,
		ServiceName: cfg.OtelServiceName,
	})
	if err != nil {
		logr.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	// Connect to the database
	db, err := database.Connect(cfg.DatabaseURL, logr)
	if err != nil {
		logr.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logr.Fatal("Failed to migrate database", zap.Error(err))
	}

	events := hub.New()
	h := &handler.Handler{
		DB:          db,
		Log:         logr,
		Questions:   question.NewService(db, nil, nil, logr),
		Syncer:      fromdisk.NewSyncer(db, logr, events),
		Hub:         events,
		JWTSecret:   cfg.JWTSecret,
		URLPrefix:   cfg.URLPrefix,
		CoursesRoot: cfg.CoursesRoot,
	}

	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logger.GinMiddleware(logr), gin.Recovery())

	// Swagger route
	docs.SwaggerInfo.BasePath = cfg.URLPrefix
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	h.RegisterRoutes(router.Group(cfg.URLPrefix))

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           otelhttp.NewHandler(router, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("Server is running", zap.String("addr", cfg.ServerAddr), zap.String("swagger", "/swagger/index.html"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("Shutting down")

	// Event streams never finish on their own.
	events.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("Server shutdown failed", zap.Error(err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logr.Error("Telemetry shutdown failed", zap.Error(err))
	}
}
