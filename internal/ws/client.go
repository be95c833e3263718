package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 65536
	sendBufferSize = 256
)

// Client represents a connected WebSocket client. It implements
// registry.Conn; identity lives in the Connection Registry, not here.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	id     string
	origin string
	send   chan []byte

	// sendMu orders Send against closeSend: a slow broadcaster holding a
	// stale Conn must never write into a closed channel
	sendMu     sync.RWMutex
	sendClosed bool

	closeOnce sync.Once
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Origin returns the remote origin used for rate-limit accounting.
func (c *Client) Origin() string { return c.origin }

// Send marshals and queues a message for the connection. Returns false when
// the client's buffer is full and the message was dropped.
func (c *Client) Send(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[WS] Error marshaling message for conn %s: %v", c.id, err)
		return false
	}
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Printf("[WS] Send buffer full for conn %s, dropping message", c.id)
		return false
	}
}

// closeSend closes the outbound queue exactly once. Called by the hub after
// the disconnect has been unwound through the coordinator.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// Close force-closes the connection with a best-effort close frame.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(5 * time.Second)
		if err := c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline); err != nil {
			log.Printf("[WS] Error writing close control to conn %s: %v", c.id, err)
		}
		c.conn.Close()
	})
}

// writePump writes queued messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: connection is being replaced or cleaned up.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] Write error for conn %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] Ping error for conn %s: %v", c.id, err)
				return
			}
		}
	}
}

// readPump reads inbound events and hands them to the coordinator. Events
// from one connection are dispatched in order, one at a time.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Unexpected close for conn %s: %v", c.id, err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		c.hub.coordinator.Dispatch(c, msg)
	}
}
