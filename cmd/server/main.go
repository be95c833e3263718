package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/playgrid/backend/internal/api"
	"github.com/playgrid/backend/internal/auth"
	"github.com/playgrid/backend/internal/chat"
	"github.com/playgrid/backend/internal/config"
	"github.com/playgrid/backend/internal/database"
	"github.com/playgrid/backend/internal/game"
	"github.com/playgrid/backend/internal/matchmaking"
	"github.com/playgrid/backend/internal/migrations"
	"github.com/playgrid/backend/internal/redis"
	"github.com/playgrid/backend/internal/registry"
	"github.com/playgrid/backend/internal/store"
	"github.com/playgrid/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	st := store.New(db)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	// Wire the session subsystem: hub carries connections, the engines own
	// queue, rooms, and chat state, the coordinator routes events between them
	reg := registry.New(verifier, rdb, cfg)
	hub := ws.NewHub()
	matches := matchmaking.New(cfg, hub.Alive)
	games := game.NewEngine(cfg, st)
	chatRooms := chat.NewEngine(cfg, reg, st)
	co := ws.NewCoordinator(hub, reg, matches, games, chatRooms, rdb, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run()
	co.StartSystemEventSubscriber(ctx)
	co.StartCleanupWorker(ctx)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Initialize API handlers
	api.SetupRoutes(router, co, st, verifier, cfg)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting PlayGrid server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	hub.Shutdown()
	log.Println("Server stopped")
}
