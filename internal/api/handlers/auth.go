package handlers

import (
	"context"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/playgrid/backend/internal/auth"
	"github.com/playgrid/backend/internal/config"
	"github.com/playgrid/backend/internal/store"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// Login upserts the user and issues the JWT consumed by the WebSocket
// handshake
func Login(st *store.Store, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
			return
		}

		username := strings.TrimSpace(req.Username)
		if !usernameRe.MatchString(username) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username must be 3-32 characters (letters, digits, underscore)"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		user, err := st.EnsureUser(ctx, username)
		if err != nil {
			log.Printf("[AUTH] EnsureUser failed for %q: %v", username, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "user service unavailable"})
			return
		}

		identity := auth.Identity{
			UserID:   "u_" + strconv.Itoa(user.ID),
			Username: user.Username,
			Level:    user.Level,
		}
		token, err := auth.Mint(cfg.JWTSecret, identity, time.Duration(cfg.TokenTTLMinutes)*time.Minute)
		if err != nil {
			log.Printf("[AUTH] Token mint failed for %q: %v", username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":    token,
			"user_id":  identity.UserID,
			"username": identity.Username,
			"level":    identity.Level,
		})
	}
}
