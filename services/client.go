package services

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// InboundHandler handles a frame sent by a browser
type InboundHandler func(c *Client, msg WebSocketMessage)

// Client one browser websocket connection of a staff user
type Client struct {
	ID             string // user id
	Username       string
	OrganizationID string
	Conn           *websocket.Conn
	Send           chan []byte

	limiter *rate.Limiter
}

// NewClient wraps an upgraded connection. Inbound frames are limited to
// perSecond with the given burst.
func NewClient(userID, username, orgID string, conn *websocket.Conn, buffer int, perSecond float64, burst int) *Client {
	return &Client{
		ID:             userID,
		Username:       username,
		OrganizationID: orgID,
		Conn:           conn,
		Send:           make(chan []byte, buffer),
		limiter:        rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// WritePump writes queued frames to the connection and keeps it alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One frame per websocket message; browsers parse each as JSON.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump reads frames until the connection drops, then unregisters the client
func (c *Client) ReadPump(manager *WebSocketManager, handle InboundHandler) {
	defer func() {
		manager.UnregisterClient(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				manager.log.Warn("websocket read", zap.String("user_id", c.ID), zap.Error(err))
			}
			return
		}

		if !c.limiter.Allow() {
			manager.sendError(c, "too many messages")
			continue
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			manager.sendError(c, "invalid frame")
			continue
		}
		if handle != nil {
			go handle(c, msg)
		}
	}
}
