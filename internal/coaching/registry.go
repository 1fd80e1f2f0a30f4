// Package coaching tracks multi-participant coaching rooms: who is in each
// room and which connections receive its broadcasts.
package coaching

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Room statuses.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Config holds optional room settings supplied at creation.
type Config struct {
	Name            string `json:"name,omitempty"`
	MaxParticipants int    `json:"max_participants,omitempty"`
}

// Room is a named multi-participant coaching session.
type room struct {
	id            string
	creatorUserID string
	config        Config
	participants  map[string]struct{}
	connections   map[string]struct{}
	createdAt     time.Time
}

// RoomInfo is a read-only snapshot of a room.
type RoomInfo struct {
	SessionID     string    `json:"session_id"`
	CreatorUserID string    `json:"creator_user_id"`
	Participants  []string  `json:"participants"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Registry owns all coaching rooms. All mutations are serialized behind one
// mutex; reads hand out snapshots so callers never iterate live maps.
type Registry struct {
	mu         sync.Mutex
	rooms      map[string]*room
	connToRoom map[string]string
	connUser   map[string]string
	logger     *zap.Logger
}

// NewRegistry creates an empty room registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:      make(map[string]*room),
		connToRoom: make(map[string]string),
		connUser:   make(map[string]string),
		logger:     logger,
	}
}

// Create makes a new room. Returns false when the id is taken.
func (r *Registry) Create(sessionID, creatorUserID string, cfg Config) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[sessionID]; exists {
		return false
	}
	r.rooms[sessionID] = &room{
		id:            sessionID,
		creatorUserID: creatorUserID,
		config:        cfg,
		participants:  make(map[string]struct{}),
		connections:   make(map[string]struct{}),
		createdAt:     time.Now(),
	}
	r.logger.Info("coaching room created",
		zap.String("session_id", sessionID), zap.String("creator", creatorUserID))
	return true
}

// Join adds a user and their connection to a room. Returns false when the
// room is unknown or full.
func (r *Registry) Join(sessionID, userID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[sessionID]
	if !ok {
		return false
	}
	if rm.config.MaxParticipants > 0 && len(rm.participants) >= rm.config.MaxParticipants {
		if _, already := rm.participants[userID]; !already {
			return false
		}
	}

	// A connection belongs to at most one room; switching rooms vacates the
	// old membership first so the old room cannot keep a phantom participant.
	if prev, ok := r.connToRoom[connectionID]; ok && prev != sessionID {
		r.leaveLocked(connectionID)
	}

	rm.participants[userID] = struct{}{}
	rm.connections[connectionID] = struct{}{}
	r.connToRoom[connectionID] = sessionID
	r.connUser[connectionID] = userID
	return true
}

// Leave removes the connection, and its user when no other connection of that
// user remains, from whichever room the connection is in. A room whose
// participant set becomes empty is destroyed. Returns the room id and whether
// the connection was in one.
func (r *Registry) Leave(connectionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connectionID)
}

// leaveLocked is Leave's body. Caller holds r.mu.
func (r *Registry) leaveLocked(connectionID string) (string, bool) {
	sessionID, ok := r.connToRoom[connectionID]
	if !ok {
		return "", false
	}
	userID := r.connUser[connectionID]
	delete(r.connToRoom, connectionID)
	delete(r.connUser, connectionID)
	rm, ok := r.rooms[sessionID]
	if !ok {
		return sessionID, true
	}
	delete(rm.connections, connectionID)

	// The user stays a participant while any of their other connections
	// remains in the room.
	remaining := false
	for connID := range rm.connections {
		if r.connUser[connID] == userID {
			remaining = true
			break
		}
	}
	if !remaining {
		delete(rm.participants, userID)
	}
	if len(rm.participants) == 0 {
		delete(r.rooms, sessionID)
		r.logger.Info("coaching room destroyed", zap.String("session_id", sessionID))
	}
	return sessionID, true
}

// End force-removes every participant and destroys the room. Returns false
// when the id is unknown.
func (r *Registry) End(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[sessionID]
	if !ok {
		return false
	}
	for connID := range rm.connections {
		delete(r.connToRoom, connID)
		delete(r.connUser, connID)
	}
	delete(r.rooms, sessionID)
	r.logger.Info("coaching room ended", zap.String("session_id", sessionID))
	return true
}

// Get returns a snapshot of a room.
func (r *Registry) Get(sessionID string) (RoomInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[sessionID]
	if !ok {
		return RoomInfo{}, false
	}
	participants := make([]string, 0, len(rm.participants))
	for id := range rm.participants {
		participants = append(participants, id)
	}
	return RoomInfo{
		SessionID:     rm.id,
		CreatorUserID: rm.creatorUserID,
		Participants:  participants,
		Status:        StatusActive,
		CreatedAt:     rm.createdAt,
	}, true
}

// ConnectionSnapshot returns a point-in-time copy of a room's connection set
// for broadcast iteration.
func (r *Registry) ConnectionSnapshot(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[sessionID]
	if !ok {
		return nil
	}
	conns := make([]string, 0, len(rm.connections))
	for id := range rm.connections {
		conns = append(conns, id)
	}
	return conns
}

// RoomOf returns the room a connection currently belongs to.
func (r *Registry) RoomOf(connectionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.connToRoom[connectionID]
	return id, ok
}

// ActiveRooms returns the number of live rooms.
func (r *Registry) ActiveRooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
