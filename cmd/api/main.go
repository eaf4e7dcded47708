package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goaltrack/application/ports"
	"goaltrack/application/services"
	"goaltrack/infrastructure/config"
	dynamostore "goaltrack/infrastructure/persistence/dynamodb"
	"goaltrack/interfaces/http/rest"
	"goaltrack/pkg/auth"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const devJWTSecret = "development-secret-change-in-production"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	var remote ports.RemoteStore
	if cfg.RemoteEnabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Fatal("Failed to load AWS configuration", zap.Error(err))
		}
		client := dynamodb.NewFromConfig(awsCfg)
		remote = dynamostore.NewGoalRepository(client, cfg.DynamoDBTable, logger)
		logger.Info("Remote store enabled",
			zap.String("table", cfg.DynamoDBTable),
			zap.String("region", cfg.AWSRegion),
		)
	} else {
		logger.Info("Remote store disabled, running local-only")
	}

	registry := services.NewRegistry(
		cfg.DataDir,
		remote,
		time.Duration(cfg.SyncIntervalSeconds)*time.Second,
		cfg.SyncPlans,
		logger,
	)

	secret := cfg.JWTSecret
	if secret == "" {
		secret = devJWTSecret
		logger.Warn("JWT_SECRET not set, using development secret")
	}
	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     secret,
		Issuer:        cfg.JWTIssuer,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWT validator", zap.Error(err))
	}

	router := rest.NewRouter(registry, validator, cfg.EnableCORS, logger)
	handler := router.Setup()

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	// Stops autosync loops and closes every per-owner local store.
	registry.CloseAll()

	if err := logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	log.Println("Server stopped")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
