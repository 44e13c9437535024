package push

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection is one websocket attached to the hub.
type Connection struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub

	closeOnce sync.Once
}

var upgrader = websocket.Upgrader{
	// origin checking is delegated to the upstream auth layer
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades the request and attaches the connection to the hub.
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	upgrader.ReadBufferSize = hub.config.ReadBufferSize
	upgrader.WriteBufferSize = hub.config.WriteBufferSize

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("push: upgrade failed for user %s: %v", userID, err)
		return
	}

	conn := &Connection{
		ID:     uuid.New().String(),
		UserID: userID,
		Conn:   ws,
		Send:   make(chan []byte, hub.config.MessageBufferSize),
		Hub:    hub,
	}

	hub.register <- conn

	go conn.writePump()
	go conn.readPump()
}

// enqueue hands outbound bytes to the connection, dropping when the buffer is
// full so one slow client cannot stall the hub.
func (c *Connection) enqueue(data []byte) {
	select {
	case c.Send <- data:
	default:
		logrus.Warnf("push: send buffer full for user %s, dropping message", c.UserID)
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister <- c
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
		return nil
	})

	for {
		// inbound traffic is only keepalive; the API surface is HTTP
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.Debugf("push: read error for user %s: %v", c.UserID, err)
			}
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Hub.config.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}
