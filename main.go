// File: /main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"paddletrips-api/config"
	"paddletrips-api/database"
	"paddletrips-api/repositories"
	"paddletrips-api/routes"
	"paddletrips-api/services"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer logger.Sync()

	// Initialize account database
	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Trip document store
	mongoDB, err := database.ConnectMongo(cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatal("Failed to connect to mongo:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Cover image storage
	storage, err := services.NewStorageService(cfg)
	if err != nil {
		log.Fatal("Failed to create storage service:", err)
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		log.Fatal("Failed to prepare image bucket:", err)
	}

	emailService := services.NewEmailService(cfg, logger)

	// Trip synchronization: the materialized view behind every read
	tripRepo := repositories.NewTripRepository(mongoDB)
	tripSync := services.NewTripSyncService(tripRepo, logger)
	tripSync.Start(ctx)
	defer tripSync.Stop()

	tripUpload := services.NewTripUploadService(tripRepo, tripSync, storage, logger)

	// Set Gin mode based on environment
	if cfg.Port == "8080" { // Development
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(routes.SetupCORS())

	routes.SetupRoutes(router, routes.Dependencies{
		DB:           db,
		Config:       cfg,
		EmailService: emailService,
		TripSync:     tripSync,
		TripUpload:   tripUpload,
	})

	logger.Info("starting PaddleTrips API server", zap.String("port", cfg.Port))

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
