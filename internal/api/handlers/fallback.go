package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/playgrid/backend/internal/auth"
	"github.com/playgrid/backend/internal/chat"
	"github.com/playgrid/backend/internal/store"
	"github.com/playgrid/backend/internal/ws"
)

// The fallback surface maps request/response calls onto the same in-memory
// engines for clients without a live WebSocket connection.

// identityFromRequest verifies the bearer token carried on a fallback call.
func identityFromRequest(verifier auth.TokenVerifier, c *gin.Context) (auth.Identity, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
		return auth.Identity{}, false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	identity, err := verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return auth.Identity{}, false
	}
	return identity, true
}

// JoinChat adds the caller to a chat room over plain HTTP
func JoinChat(co *ws.Coordinator, verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFromRequest(verifier, c)
		if !ok {
			return
		}
		roomID := c.Param("roomId")
		result, err := co.Chat().JoinRoom(identity.UserID, identity.Username, roomID)
		if err != nil {
			c.JSON(chatErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"room_id":      result.RoomID,
			"kind":         result.Kind,
			"participants": result.Participants,
		})
	}
}

// LeaveChat removes the caller from a chat room over plain HTTP
func LeaveChat(co *ws.Coordinator, verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFromRequest(verifier, c)
		if !ok {
			return
		}
		co.Chat().LeaveRoom(identity.UserID, c.Param("roomId"))
		c.JSON(http.StatusOK, gin.H{"left": true})
	}
}

// ChatMembers returns the membership of a chat room
func ChatMembers(co *ws.Coordinator, verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := identityFromRequest(verifier, c); !ok {
			return
		}
		members, err := co.Chat().Members(c.Param("roomId"))
		if err != nil {
			c.JSON(chatErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"participants": members})
	}
}

// ChatHistory returns buffered room history, falling back to the archive for
// rooms no longer resident in memory
func ChatHistory(co *ws.Coordinator, st *store.Store, verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFromRequest(verifier, c)
		if !ok {
			return
		}

		roomID := c.Param("roomId")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		messages, err := co.Chat().History(identity.UserID, roomID, limit, offset)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"room_id": roomID, "messages": messages, "source": "live"})
			return
		}
		if err != chat.ErrRoomNotFound || st == nil {
			c.JSON(chatErrorStatus(err), gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		archived, aerr := st.RecentMessages(ctx, roomID, limit, offset)
		if aerr != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"room_id": roomID, "messages": archived, "source": "archive"})
	}
}

// GameState returns the current snapshot of a game room
func GameState(co *ws.Coordinator, verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := identityFromRequest(verifier, c); !ok {
			return
		}
		state, err := co.Games().GetState(c.Param("roomId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": state})
	}
}

func chatErrorStatus(err error) int {
	switch err {
	case chat.ErrRoomNotFound:
		return http.StatusNotFound
	case chat.ErrNotParticipant:
		return http.StatusForbidden
	case chat.ErrEmptyMessage, chat.ErrMessageTooLong:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
