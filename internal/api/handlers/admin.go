package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/playgrid/backend/internal/admin"
	"github.com/playgrid/backend/internal/config"
	"github.com/playgrid/backend/internal/store"
	"github.com/playgrid/backend/internal/ws"
)

// AdminAuth gates the admin surface on the X-Admin-Key header.
func AdminAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Admin-Key")
		if cfg.AdminKeyHash == "" || !admin.VerifyAdminKey(cfg.AdminKeyHash, key) {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access denied"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminForceMatch pairs two queued users immediately, skipping skill checks
func AdminForceMatch(co *ws.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			UserA string `json:"user_a" binding:"required"`
			UserB string `json:"user_b" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_a and user_b required"})
			return
		}

		result, err := co.Matches().ForceMatch(req.UserA, req.UserB)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		log.Printf("[ADMIN] Force-matched %s vs %s into %s", req.UserA, req.UserB, result.RoomID)
		c.JSON(http.StatusOK, gin.H{
			"room_id": result.RoomID,
			"quality": result.Quality,
		})
	}
}

// AdminPurge drops all queue entries, game rooms, and buffered chat
func AdminPurge(co *ws.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		queue, rooms, messages := co.PurgeAll()
		log.Printf("[ADMIN] Purge: %d queued, %d rooms, %d messages", queue, rooms, messages)
		c.JSON(http.StatusOK, gin.H{
			"queue_purged":    queue,
			"rooms_purged":    rooms,
			"messages_purged": messages,
		})
	}
}

// AdminStats reports live subsystem counters plus persisted game totals
func AdminStats(co *ws.Coordinator, st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		active, finished, total := co.Games().Counts()

		queued := make([]gin.H, 0)
		for _, p := range co.Matches().Snapshot() {
			queued = append(queued, gin.H{
				"user_id": p.UserID,
				"level":   p.Level,
				"quick":   p.Quick,
				"waited":  int(time.Since(p.EnqueuedAt).Seconds()),
			})
		}

		stats := gin.H{
			"connections": co.Registry().Count(),
			"online":      co.Registry().List(),
			"queue_depth": co.Matches().Depth(),
			"queue":       queued,
			"rooms": gin.H{
				"active":   active,
				"finished": finished,
				"total":    total,
			},
			"chat_rooms": co.Chat().RoomCount(),
		}

		if st != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			if games, draws, err := st.GameTotals(ctx); err == nil {
				stats["games_recorded"] = games
				stats["draws_recorded"] = draws
			}
		}

		c.JSON(http.StatusOK, stats)
	}
}

// AdminBroadcast pushes a system notice to every connected client, fanned out
// through redis so all instances deliver it
func AdminBroadcast(co *ws.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Message string `json:"message" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := co.PublishSystemMessage(ctx, req.Message); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "broadcast failed"})
			return
		}
		log.Printf("[ADMIN] System broadcast sent (%d chars)", len(req.Message))
		c.JSON(http.StatusOK, gin.H{"sent": true})
	}
}
