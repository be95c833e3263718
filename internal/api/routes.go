package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/playgrid/backend/internal/api/handlers"
	"github.com/playgrid/backend/internal/auth"
	"github.com/playgrid/backend/internal/config"
	"github.com/playgrid/backend/internal/middleware"
	"github.com/playgrid/backend/internal/store"
	"github.com/playgrid/backend/internal/ws"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, co *ws.Coordinator, st *store.Store, verifier auth.TokenVerifier, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	// No-cache headers keep dev frontends from serving stale state
	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] No-cache headers enabled for all routes")
	}

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)

		v1.POST("/auth/login", handlers.Login(st, cfg))

		// WebSocket entry point; origin policy enforced before upgrade
		v1.GET("/ws", middleware.WebSocketCORSCheck(cfg), co.HandleWebSocket)

		// Fallback endpoints for clients without a live socket
		game := v1.Group("/game")
		{
			game.GET("/:roomId", handlers.GameState(co, verifier))
		}

		chat := v1.Group("/chat")
		{
			chat.POST("/:roomId/join", handlers.JoinChat(co, verifier))
			chat.POST("/:roomId/leave", handlers.LeaveChat(co, verifier))
			chat.GET("/:roomId/members", handlers.ChatMembers(co, verifier))
			chat.GET("/:roomId/history", handlers.ChatHistory(co, st, verifier))
		}

		adminGroup := v1.Group("/admin", handlers.AdminAuth(cfg))
		{
			adminGroup.POST("/force-match", handlers.AdminForceMatch(co))
			adminGroup.POST("/purge", handlers.AdminPurge(co))
			adminGroup.GET("/stats", handlers.AdminStats(co, st))
			adminGroup.POST("/broadcast", handlers.AdminBroadcast(co))
		}
	}
}
