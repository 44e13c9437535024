package push

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Message is the envelope delivered over the push channel. Type names the
// event topic; To targets a single recipient by user id, empty To broadcasts.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
	To        string      `json:"to,omitempty"`
}

// Config tunes hub and connection behavior.
type Config struct {
	MaxConnections    int64
	HeartbeatInterval time.Duration
	ConnectionTimeout time.Duration
	MessageBufferSize int
	ReadBufferSize    int
	WriteBufferSize   int
	MaxMessageSize    int64
	MessageQueueSize  int
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    10000,
		HeartbeatInterval: 30 * time.Second,
		ConnectionTimeout: 60 * time.Second,
		MessageBufferSize: 256,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		MaxMessageSize:    4096,
		MessageQueueSize:  1000,
	}
}

// Hub tracks live connections and routes messages to them. A user may hold
// multiple connections (several devices); sends go to all of them.
type Hub struct {
	connections     map[string]*Connection
	userConnections map[string]map[string]bool
	broadcast       chan *Message
	register        chan *Connection
	unregister      chan *Connection
	connectionCount int64
	config          *Config
	mu              sync.RWMutex
	ctx             context.Context
	cancel          context.CancelFunc
}

// NewHub creates and starts a hub.
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		connections:     make(map[string]*Connection),
		userConnections: make(map[string]map[string]bool),
		broadcast:       make(chan *Message, config.MessageQueueSize),
		register:        make(chan *Connection, 256),
		unregister:      make(chan *Connection, 256),
		config:          config,
		ctx:             ctx,
		cancel:          cancel,
	}

	go hub.run()
	return hub
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case conn := <-h.register:
			h.registerConnection(conn)
		case conn := <-h.unregister:
			h.unregisterConnection(conn)
		case message := <-h.broadcast:
			if message.Timestamp == 0 {
				message.Timestamp = time.Now().Unix()
			}
			data, err := json.Marshal(message)
			if err != nil {
				logrus.Errorf("push: marshal message: %v", err)
				continue
			}
			if message.To != "" {
				h.deliverToUser(message.To, data)
			} else {
				h.deliverToAll(data)
			}
		}
	}
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		logrus.Warnf("push: connection limit reached, dropping %s", conn.ID)
		conn.close()
		return
	}

	h.connections[conn.ID] = conn
	if _, ok := h.userConnections[conn.UserID]; !ok {
		h.userConnections[conn.UserID] = make(map[string]bool)
	}
	h.userConnections[conn.UserID][conn.ID] = true
	atomic.AddInt64(&h.connectionCount, 1)
}

func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if conns, ok := h.userConnections[conn.UserID]; ok {
		delete(conns, conn.ID)
		if len(conns) == 0 {
			delete(h.userConnections, conn.UserID)
		}
	}
	atomic.AddInt64(&h.connectionCount, -1)
	conn.close()
}

func (h *Hub) deliverToUser(userID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for connID := range h.userConnections[userID] {
		if conn, ok := h.connections[connID]; ok {
			conn.enqueue(data)
		}
	}
}

func (h *Hub) deliverToAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections {
		conn.enqueue(data)
	}
}

// SendToUser queues a message for every live connection of the user.
// Returns false if the user has no connection right now.
func (h *Hub) SendToUser(userID string, msg *Message) bool {
	h.mu.RLock()
	online := len(h.userConnections[userID]) > 0
	h.mu.RUnlock()

	m := *msg
	m.To = userID
	select {
	case h.broadcast <- &m:
	default:
		logrus.Warn("push: message queue full, dropping send")
		return false
	}
	return online
}

// Broadcast queues a message for every live connection.
func (h *Hub) Broadcast(msg *Message) {
	m := *msg
	m.To = ""
	select {
	case h.broadcast <- &m:
	default:
		logrus.Warn("push: message queue full, dropping broadcast")
	}
}

// GetConnectionCount returns the number of live connections.
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// GetUserConnections returns how many connections a user holds.
func (h *Hub) GetUserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConnections[userID])
}

// Close stops the hub and drops all connections.
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.connections {
		conn.close()
	}
	h.connections = make(map[string]*Connection)
	h.userConnections = make(map[string]map[string]bool)
	atomic.StoreInt64(&h.connectionCount, 0)
}
