package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Redis set of user ids with an open connection
	keyOnlineUsers = "practicehub:online_users"
)

// WebSocketManager tracks browser connections and routes frames to them
type WebSocketManager struct {
	// userID -> client; one connection per user, a new one replaces the old
	clients map[string]*Client
	mu      sync.RWMutex

	// online presence shared between instances; optional
	rdb *redis.Client

	connectionCount int32
	maxConnections  int32

	log    *zap.Logger
	stopCh chan struct{}
	once   sync.Once
}

// NewWebSocketManager creates a manager. rdb may be nil.
func NewWebSocketManager(rdb *redis.Client, maxConnections int, log *zap.Logger) *WebSocketManager {
	return &WebSocketManager{
		clients:        make(map[string]*Client),
		rdb:            rdb,
		maxConnections: int32(maxConnections),
		log:            log,
		stopCh:         make(chan struct{}),
	}
}

// Run pings idle connections periodically until Stop
func (m *WebSocketManager) Run() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpiredConnections()
		case <-m.stopCh:
			return
		}
	}
}

// Stop ends Run and closes every connection
func (m *WebSocketManager) Stop() {
	m.once.Do(func() {
		close(m.stopCh)
		m.mu.Lock()
		defer m.mu.Unlock()
		for id, c := range m.clients {
			m.dropLocked(id, c)
		}
	})
}

// RegisterClient adds a client; false when the connection cap is reached.
// A reconnecting user replaces their old connection and is never refused.
func (m *WebSocketManager) RegisterClient(client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, exists := m.clients[client.ID]
	if !exists && atomic.LoadInt32(&m.connectionCount) >= m.maxConnections {
		m.log.Warn("connection limit reached", zap.Int32("max", m.maxConnections))
		return false
	}
	if exists {
		m.dropLocked(client.ID, old)
		if old.Conn != nil {
			old.Conn.Close()
		}
	}
	m.clients[client.ID] = client
	atomic.AddInt32(&m.connectionCount, 1)

	if m.rdb != nil {
		if err := m.rdb.SAdd(context.Background(), keyOnlineUsers, client.ID).Err(); err != nil {
			m.log.Warn("mark user online", zap.String("user_id", client.ID), zap.Error(err))
		}
	}

	m.log.Info("client connected",
		zap.String("user_id", client.ID),
		zap.String("username", client.Username),
		zap.String("organization_id", client.OrganizationID),
		zap.Int32("connections", atomic.LoadInt32(&m.connectionCount)))
	return true
}

// UnregisterClient removes the client if it is still the user's current connection
func (m *WebSocketManager) UnregisterClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clients[client.ID] != client {
		return
	}
	m.dropLocked(client.ID, client)
	m.log.Info("client disconnected",
		zap.String("user_id", client.ID),
		zap.Int32("connections", atomic.LoadInt32(&m.connectionCount)))
}

// dropLocked removes and closes a client. Caller holds mu.
func (m *WebSocketManager) dropLocked(userID string, client *Client) {
	delete(m.clients, userID)
	close(client.Send)
	atomic.AddInt32(&m.connectionCount, -1)

	if m.rdb != nil {
		if err := m.rdb.SRem(context.Background(), keyOnlineUsers, userID).Err(); err != nil {
			m.log.Warn("mark user offline", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// SendToUser queues a frame for the user's connection. A client whose
// buffer is full is disconnected.
func (m *WebSocketManager) SendToUser(userID string, message []byte) bool {
	m.mu.RLock()
	client, exists := m.clients[userID]
	delivered := false
	if exists {
		select {
		case client.Send <- message:
			delivered = true
		default:
		}
	}
	m.mu.RUnlock()

	if exists && !delivered {
		m.evict(client)
	}
	return delivered
}

// BroadcastToOrg queues a frame for every connection of the organization
// and returns how many received it.
func (m *WebSocketManager) BroadcastToOrg(orgID string, message []byte) int {
	var slow []*Client
	sent := 0

	m.mu.RLock()
	for _, client := range m.clients {
		if client.OrganizationID != orgID {
			continue
		}
		select {
		case client.Send <- message:
			sent++
		default:
			slow = append(slow, client)
		}
	}
	m.mu.RUnlock()

	for _, client := range slow {
		m.evict(client)
	}
	return sent
}

func (m *WebSocketManager) evict(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clients[client.ID] == client {
		m.log.Warn("send buffer full, dropping client", zap.String("user_id", client.ID))
		m.dropLocked(client.ID, client)
	}
}

func (m *WebSocketManager) sendError(c *Client, message string) {
	frame, err := EncodeFrame(FrameError, map[string]string{"error": message})
	if err != nil {
		return
	}
	m.SendToUser(c.ID, frame)
}

// IsUserOnline reports whether the user has a connection on any instance
func (m *WebSocketManager) IsUserOnline(userID string) bool {
	m.mu.RLock()
	_, local := m.clients[userID]
	m.mu.RUnlock()
	if local || m.rdb == nil {
		return local
	}
	online, err := m.rdb.SIsMember(context.Background(), keyOnlineUsers, userID).Result()
	if err != nil {
		return false
	}
	return online
}

// OrgConnectionCounts open connections per organization on this instance
func (m *WebSocketManager) OrgConnectionCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, c := range m.clients {
		counts[c.OrganizationID]++
	}
	return counts
}

// cleanupExpiredConnections drops connections that no longer accept a ping
func (m *WebSocketManager) cleanupExpiredConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, client := range m.clients {
		if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
			m.log.Info("dropping expired connection", zap.String("user_id", userID), zap.Error(err))
			m.dropLocked(userID, client)
		}
	}
}

// GetConnectionCount number of open connections on this instance
func (m *WebSocketManager) GetConnectionCount() int32 {
	return atomic.LoadInt32(&m.connectionCount)
}
