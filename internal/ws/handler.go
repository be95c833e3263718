package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by middleware.WebSocketCORSCheck
		return true
	},
}

// HandleWebSocket upgrades the HTTP request and registers the connection.
// Connection attempts are rate limited per origin before the upgrade.
func (co *Coordinator) HandleWebSocket(c *gin.Context) {
	origin := c.ClientIP()

	if !co.allowConnect(origin) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error from %s: %v", origin, err)
		return
	}

	client := &Client{
		hub:    co.hub,
		conn:   conn,
		id:     "conn_" + uuid.NewString(),
		origin: origin,
		send:   make(chan []byte, sendBufferSize),
	}

	co.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// allowConnect enforces the per-origin connection budget via Redis. With no
// Redis configured the check is skipped.
func (co *Coordinator) allowConnect(origin string) bool {
	if co.rdb == nil {
		return true
	}

	ctx := context.Background()
	key := "connrate:" + origin
	n, err := co.rdb.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[WS] Connection rate check failed for %s: %v", origin, err)
		return true
	}
	if n == 1 {
		co.rdb.Expire(ctx, key, time.Duration(co.cfg.ConnectWindowSeconds)*time.Second)
	}
	return n <= int64(co.cfg.ConnectRatePerOrigin)
}
