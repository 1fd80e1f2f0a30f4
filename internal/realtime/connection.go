package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Status is a connection's lifecycle state.
type Status string

const (
	StatusConnecting    Status = "CONNECTING"
	StatusConnected     Status = "CONNECTED"
	StatusDisconnecting Status = "DISCONNECTING"
	StatusDisconnected  Status = "DISCONNECTED"
	StatusError         Status = "ERROR"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// Connection is one live transport endpoint. A user may hold several
// concurrently; each gets its own id, pumps and heartbeat.
type Connection struct {
	ID          string
	UserID      string
	ConnectedAt time.Time
	ClientInfo  map[string]string

	transport Transport
	send      chan Message
	stop      chan struct{}
	stopOnce  sync.Once

	mu            sync.Mutex
	status        Status
	lastHeartbeat time.Time
	sessionID     string
	topics        map[string]struct{}
}

// Status returns the connection's lifecycle state.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connection) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// LastHeartbeat returns the time of the last inbound message.
func (c *Connection) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

func (c *Connection) touchHeartbeat() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
}

// SessionID returns the coaching room this connection is in, if any.
func (c *Connection) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Connection) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// Subscribe adds topics the connection wants pushed to it.
func (c *Connection) Subscribe(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		c.topics[t] = struct{}{}
	}
}

// SubscribedTo reports whether the connection subscribed to a topic.
func (c *Connection) SubscribedTo(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[topic]
	return ok
}

// enqueue hands a message to the write pump. False when the connection is
// stopping or its buffer is full (slow consumer).
func (c *Connection) enqueue(msg Message) bool {
	select {
	case <-c.stop:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// shutdown closes the stop channel and the transport exactly once.
func (c *Connection) shutdown() {
	c.stopOnce.Do(func() {
		close(c.stop)
		_ = c.transport.Close()
	})
}

// writePump is the single writer for the connection, preserving per-connection
// send order. It also emits protocol pings.
func (c *Connection) writePump(m *Manager) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.stop:
			return
		case msg := <-c.send:
			_ = c.transport.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			if err := c.transport.WriteJSON(msg); err != nil {
				m.logger.Debug("write failed, disconnecting",
					zap.String("connection_id", c.ID), zap.Error(err))
				go m.Disconnect(c.ID)
				return
			}
		case <-ticker.C:
			_ = c.transport.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			if err := c.transport.Ping(); err != nil {
				go m.Disconnect(c.ID)
				return
			}
		}
	}
}

// readPump reads envelopes until the transport closes. A malformed envelope
// gets a validation_error reply and the connection stays open; only transport
// errors end the loop.
func (c *Connection) readPump(m *Manager) {
	c.transport.SetReadLimit(m.cfg.ReadLimit)
	_ = c.transport.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	c.transport.SetPongHandler(func(string) error {
		c.touchHeartbeat()
		return c.transport.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	})

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		var msg Message
		if err := c.transport.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				m.sendValidationError(c, "malformed message envelope")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("unexpected close", zap.String("connection_id", c.ID), zap.Error(err))
			}
			return
		}

		c.touchHeartbeat()
		_ = c.transport.SetReadDeadline(time.Now().Add(m.cfg.PongWait))

		if err := msg.Validate(); err != nil {
			m.sendValidationError(c, err.Error())
			continue
		}
		m.dispatch(c, msg)
	}
}

// ServeWS upgrades an HTTP request to a WebSocket connection and runs its
// read loop until the client goes away.
func ServeWS(m *Manager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
			return
		}

		wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		conn := m.Accept(NewWebSocketTransport(wsConn), userID, map[string]string{
			"remote_addr": c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		})
		defer m.Disconnect(conn.ID)
		conn.readPump(m)
	}
}
