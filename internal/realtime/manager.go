package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swingsense/backend/internal/coaching"
)

// TopicPerformanceMetrics is the subscription topic for periodic stat pushes.
const TopicPerformanceMetrics = "performance_metrics"

// Config tunes connection-manager timing and buffers.
type Config struct {
	PingInterval       time.Duration
	PongWait           time.Duration
	WriteTimeout       time.Duration
	ReadLimit          int64
	SendBuffer         int
	HeartbeatTimeout   time.Duration
	LivenessInterval   time.Duration
	MonitoringInterval time.Duration
}

// DefaultConfig returns production timing defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:       30 * time.Second,
		PongWait:           60 * time.Second,
		WriteTimeout:       10 * time.Second,
		ReadLimit:          512 * 1024,
		SendBuffer:         256,
		HeartbeatTimeout:   90 * time.Second,
		LivenessInterval:   30 * time.Second,
		MonitoringInterval: 10 * time.Second,
	}
}

// Handler processes one inbound message on a connection.
type Handler func(conn *Connection, msg Message)

// StatsFunc supplies the payload for periodic performance_metrics pushes.
type StatsFunc func() map[string]interface{}

// PubSub fans room messages out across horizontally scaled instances. The
// production implementation is RedisPubSub; tests use in-memory fakes.
type PubSub interface {
	Publish(sessionID string, msg Message) error
	Subscribe(sessionID string, handler func(msg Message)) (cancel func(), err error)
}

// Manager owns every live connection: accept, dispatch, send, room
// broadcast, liveness eviction and the monitoring push loop.
type Manager struct {
	cfg    Config
	logger *zap.Logger
	rooms  *coaching.Registry
	pubsub PubSub // nil when running single-instance

	mu       sync.RWMutex
	conns    map[string]*Connection
	byUser   map[string]map[string]*Connection
	roomSubs map[string]func()

	handlerMu sync.RWMutex
	handlers  map[MessageType]Handler

	statsFn    StatsFunc
	onUserGone func(userID string)
}

// NewManager creates a connection manager. pubsub may be nil for
// single-instance deployments.
func NewManager(cfg Config, rooms *coaching.Registry, pubsub PubSub, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		rooms:    rooms,
		pubsub:   pubsub,
		conns:    make(map[string]*Connection),
		byUser:   make(map[string]map[string]*Connection),
		roomSubs: make(map[string]func()),
		handlers: make(map[MessageType]Handler),
	}
}

// RegisterHandler binds a message type to its handler. Must be called before
// connections are accepted.
func (m *Manager) RegisterHandler(t MessageType, h Handler) {
	m.handlerMu.Lock()
	m.handlers[t] = h
	m.handlerMu.Unlock()
}

// SetStats supplies the aggregate-stat payload for monitoring pushes.
func (m *Manager) SetStats(fn StatsFunc) { m.statsFn = fn }

// SetUserGoneHandler is invoked when a user's last connection disappears.
func (m *Manager) SetUserGoneHandler(fn func(userID string)) { m.onUserGone = fn }

// Accept registers a new connection over the given transport and starts its
// write pump. The caller runs the read pump.
func (m *Manager) Accept(t Transport, userID string, clientInfo map[string]string) *Connection {
	now := time.Now()
	conn := &Connection{
		ID:            uuid.New().String(),
		UserID:        userID,
		ConnectedAt:   now,
		ClientInfo:    clientInfo,
		transport:     t,
		send:          make(chan Message, m.cfg.SendBuffer),
		stop:          make(chan struct{}),
		status:        StatusConnecting,
		lastHeartbeat: now,
		topics:        make(map[string]struct{}),
	}

	m.mu.Lock()
	m.conns[conn.ID] = conn
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[string]*Connection)
	}
	m.byUser[userID][conn.ID] = conn
	m.mu.Unlock()

	conn.setStatus(StatusConnected)
	go conn.writePump(m)

	m.logger.Info("connection accepted",
		zap.String("connection_id", conn.ID), zap.String("user_id", userID))
	return conn
}

// Disconnect removes a connection from every registry, revokes its room
// membership and closes the transport. Safe to call more than once.
func (m *Manager) Disconnect(connectionID string) {
	m.mu.Lock()
	conn, ok := m.conns[connectionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.conns, connectionID)
	userConns := m.byUser[conn.UserID]
	delete(userConns, connectionID)
	lastOfUser := len(userConns) == 0
	if lastOfUser {
		delete(m.byUser, conn.UserID)
	}
	m.mu.Unlock()

	conn.setStatus(StatusDisconnecting)
	if sessionID, ok := m.rooms.Leave(connectionID); ok {
		m.releaseRoomSubscription(sessionID)
	}
	conn.shutdown()
	conn.setStatus(StatusDisconnected)

	if lastOfUser && m.onUserGone != nil {
		m.onUserGone(conn.UserID)
	}

	m.logger.Info("connection closed",
		zap.String("connection_id", connectionID),
		zap.String("user_id", conn.UserID),
		zap.Bool("last_of_user", lastOfUser))
}

// Send delivers a message to one connection. Returns false on failure, which
// also disconnects the slow or dead connection.
func (m *Manager) Send(connectionID string, msg Message) bool {
	m.mu.RLock()
	conn, ok := m.conns[connectionID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if !conn.enqueue(msg) {
		m.logger.Warn("send failed, evicting connection",
			zap.String("connection_id", connectionID))
		m.Disconnect(connectionID)
		return false
	}
	return true
}

// Broadcast delivers a message to every connection in a coaching room,
// iterating a point-in-time snapshot so concurrent joins and disconnects
// cannot corrupt delivery. One failed recipient does not abort the rest.
// Returns the count actually delivered.
func (m *Manager) Broadcast(sessionID string, msg Message) int {
	delivered := 0
	for _, connID := range m.rooms.ConnectionSnapshot(sessionID) {
		if m.Send(connID, msg) {
			delivered++
		}
	}
	return delivered
}

// RelayToRoom distributes a room message. With a live cross-instance
// subscription the message is published once and each instance's subscription
// callback does its one local broadcast, so local clients are not delivered
// twice; the returned count is then the local membership at publish time,
// advisory only. Without Redis, or when this instance holds no subscription
// for the room, it broadcasts locally and returns the delivered count.
func (m *Manager) RelayToRoom(sessionID string, msg Message) int {
	if m.pubsub != nil && m.hasRoomSubscription(sessionID) {
		if err := m.pubsub.Publish(sessionID, msg); err == nil {
			return len(m.rooms.ConnectionSnapshot(sessionID))
		}
		m.logger.Warn("room publish failed, falling back to local broadcast",
			zap.String("session_id", sessionID))
	}
	return m.Broadcast(sessionID, msg)
}

// JoinRoom places a connection in a coaching room, creating the room when
// requested. The first local member triggers the cross-instance subscription.
// A connection already in another room is moved: the registry vacates the old
// membership and the old room's subscription is released if it emptied.
func (m *Manager) JoinRoom(conn *Connection, sessionID string, create bool, cfg coaching.Config) bool {
	if create {
		m.rooms.Create(sessionID, conn.UserID, cfg) // false just means it already exists
	}
	prev := conn.SessionID()
	if !m.rooms.Join(sessionID, conn.UserID, conn.ID) {
		return false
	}
	conn.setSessionID(sessionID)
	if prev != "" && prev != sessionID {
		m.releaseRoomSubscription(prev)
	}
	m.ensureRoomSubscription(sessionID)
	return true
}

// LeaveRoom removes a connection from its room.
func (m *Manager) LeaveRoom(conn *Connection) (string, bool) {
	sessionID, ok := m.rooms.Leave(conn.ID)
	if !ok {
		return "", false
	}
	conn.setSessionID("")
	m.releaseRoomSubscription(sessionID)
	return sessionID, true
}

// EndRoom force-closes a coaching room and detaches every local connection.
func (m *Manager) EndRoom(sessionID string) bool {
	connIDs := m.rooms.ConnectionSnapshot(sessionID)
	if !m.rooms.End(sessionID) {
		return false
	}
	m.mu.RLock()
	for _, id := range connIDs {
		if conn, ok := m.conns[id]; ok {
			conn.setSessionID("")
		}
	}
	m.mu.RUnlock()
	m.releaseRoomSubscription(sessionID)
	return true
}

// ActiveConnections returns the number of registered connections.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Run drives the liveness sweep and monitoring push loops until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	liveness := time.NewTicker(m.cfg.LivenessInterval)
	monitoring := time.NewTicker(m.cfg.MonitoringInterval)
	defer liveness.Stop()
	defer monitoring.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-liveness.C:
			m.evictStale()
		case <-monitoring.C:
			m.pushStats()
		}
	}
}

// evictStale disconnects every connection whose heartbeat is older than the
// configured timeout.
func (m *Manager) evictStale() {
	cutoff := time.Now().Add(-m.cfg.HeartbeatTimeout)
	for _, conn := range m.snapshot() {
		if conn.LastHeartbeat().Before(cutoff) {
			m.logger.Info("evicting stale connection",
				zap.String("connection_id", conn.ID),
				zap.Time("last_heartbeat", conn.LastHeartbeat()))
			m.Disconnect(conn.ID)
		}
	}
}

// pushStats emits performance_metrics to subscribed connections.
func (m *Manager) pushStats() {
	if m.statsFn == nil {
		return
	}
	var payload map[string]interface{}
	for _, conn := range m.snapshot() {
		if !conn.SubscribedTo(TopicPerformanceMetrics) {
			continue
		}
		if payload == nil {
			payload = m.statsFn()
		}
		m.Send(conn.ID, NewMessage(TypePerformanceMetrics, payload))
	}
}

func (m *Manager) snapshot() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

// dispatch routes a validated message to its registered handler. Unknown
// types are logged and dropped without closing the connection.
func (m *Manager) dispatch(conn *Connection, msg Message) {
	m.handlerMu.RLock()
	handler, ok := m.handlers[msg.Type]
	m.handlerMu.RUnlock()
	if !ok {
		m.logger.Debug("dropping message of unknown type",
			zap.String("type", string(msg.Type)),
			zap.String("connection_id", conn.ID))
		return
	}
	handler(conn, msg)
}

func (m *Manager) sendValidationError(conn *Connection, detail string) {
	m.Send(conn.ID, NewMessage(TypeValidationError, map[string]interface{}{
		"message": detail,
	}))
}

// hasRoomSubscription reports whether this instance holds (or is currently
// establishing) the cross-instance subscription for a room.
func (m *Manager) hasRoomSubscription(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.roomSubs[sessionID]
	return ok
}

// ensureRoomSubscription starts the Redis subscription for a room when the
// first local connection joins it. The slot is reserved under the lock but
// the subscription round-trip runs outside it, so a slow broker cannot stall
// accepts and sends.
func (m *Manager) ensureRoomSubscription(sessionID string) {
	if m.pubsub == nil {
		return
	}
	m.mu.Lock()
	if _, ok := m.roomSubs[sessionID]; ok {
		m.mu.Unlock()
		return
	}
	m.roomSubs[sessionID] = func() {} // reserve while subscribing
	m.mu.Unlock()

	cancel, err := m.pubsub.Subscribe(sessionID, func(msg Message) {
		m.Broadcast(sessionID, msg)
	})
	if err != nil {
		m.mu.Lock()
		delete(m.roomSubs, sessionID)
		m.mu.Unlock()
		m.logger.Warn("room subscription failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	m.mu.Lock()
	if _, ok := m.roomSubs[sessionID]; !ok {
		// the room emptied while we were subscribing
		m.mu.Unlock()
		cancel()
		return
	}
	m.roomSubs[sessionID] = cancel
	m.mu.Unlock()
}

// releaseRoomSubscription cancels the Redis subscription once no local
// connection remains in the room.
func (m *Manager) releaseRoomSubscription(sessionID string) {
	if m.pubsub == nil {
		return
	}
	if len(m.rooms.ConnectionSnapshot(sessionID)) > 0 {
		return
	}
	m.mu.Lock()
	cancel, ok := m.roomSubs[sessionID]
	if ok {
		delete(m.roomSubs, sessionID)
	}
	m.mu.Unlock()
	if ok {
		cancel()
	}
}
