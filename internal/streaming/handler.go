package streaming

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/swingsense/backend/pkg/response"
)

// ConnectionStats exposes transport-level counters to the stats endpoint.
type ConnectionStats interface {
	ActiveConnections() int
}

// Handler serves the session control plane over HTTP.
type Handler struct {
	manager     *Manager
	connections ConnectionStats
	logger      *zap.Logger
}

// NewHandler creates the control-plane handler. connections may be nil.
func NewHandler(manager *Manager, connections ConnectionStats, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, connections: connections, logger: logger}
}

// Create starts a streaming session. Body fields default per DefaultConfig.
func (h *Handler) Create(c *gin.Context) {
	cfg := DefaultConfig()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.BadRequest(c, "invalid session config: "+err.Error())
		return
	}
	session, err := h.manager.CreateSession(cfg)
	if err != nil {
		if errors.Is(err, ErrMissingUserID) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Internal(c, "create session failed")
		return
	}
	response.Created(c, session)
}

// GetByID returns a session.
func (h *Handler) GetByID(c *gin.Context) {
	session, ok := h.manager.GetSession(c.Param("id"))
	if !ok {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, session)
}

// Delete ends a session.
func (h *Handler) Delete(c *gin.Context) {
	if !h.manager.EndSession(c.Param("id")) {
		response.NotFound(c, "session not found")
		return
	}
	response.NoContent(c)
}

// GetMetrics returns a session's performance counters.
func (h *Handler) GetMetrics(c *gin.Context) {
	session, ok := h.manager.GetSession(c.Param("id"))
	if !ok {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, session.Metrics())
}

// GetLatestResult returns the most recent cached analysis result.
func (h *Handler) GetLatestResult(c *gin.Context) {
	result, ok := h.manager.LatestResult(c.Request.Context(), c.Param("id"))
	if !ok {
		response.NotFound(c, "no analysis result available")
		return
	}
	response.OK(c, result)
}

// GetSystemStats returns aggregate counters across the service.
func (h *Handler) GetSystemStats(c *gin.Context) {
	connections := 0
	if h.connections != nil {
		connections = h.connections.ActiveConnections()
	}
	response.OK(c, gin.H{
		"active_connections":     connections,
		"active_sessions":        h.manager.ActiveSessions(),
		"total_frames_processed": h.manager.TotalFramesProcessed(),
	})
}
