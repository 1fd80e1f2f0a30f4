package streaming

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swingsense/backend/internal/analysis"
	"github.com/swingsense/backend/pkg/cache"
)

// ErrMissingUserID is returned when a session config has no user id.
var ErrMissingUserID = errors.New("streaming: config missing user_id")

const cacheWriteTimeout = 2 * time.Second

// Manager is the registry of active streaming sessions. At most one session
// exists per user; creating a second one ends the first.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]string

	extractor analysis.MeasurementExtractor
	faults    analysis.FaultClassifier
	results   cache.Cache
	logger    *zap.Logger
}

// NewManager creates a session manager. results may be nil to disable the
// latest-result cache.
func NewManager(extractor analysis.MeasurementExtractor, faults analysis.FaultClassifier, results cache.Cache, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		byUser:    make(map[string]string),
		extractor: extractor,
		faults:    faults,
		results:   results,
		logger:    logger,
	}
}

// CreateSession starts a session for cfg.UserID. Any existing session for
// that user is ended first and its id becomes invalid.
func (m *Manager) CreateSession(cfg Config) (*Session, error) {
	if cfg.UserID == "" {
		return nil, ErrMissingUserID
	}
	cfg.normalize()

	session := &Session{
		ID:        uuid.New().String(),
		UserID:    cfg.UserID,
		Config:    cfg,
		CreatedAt: time.Now(),
		engine:    analysis.NewEngine(m.extractor, m.faults, m.logger),
	}

	m.mu.Lock()
	if oldID, ok := m.byUser[cfg.UserID]; ok {
		delete(m.sessions, oldID)
		m.clearCachedResult(oldID)
		m.logger.Info("replacing streaming session",
			zap.String("user_id", cfg.UserID), zap.String("old_session_id", oldID))
	}
	m.sessions[session.ID] = session
	m.byUser[cfg.UserID] = session.ID
	m.mu.Unlock()

	m.logger.Info("streaming session created",
		zap.String("session_id", session.ID),
		zap.String("user_id", cfg.UserID),
		zap.Int("analysis_frequency", cfg.AnalysisFrequency))
	return session, nil
}

// GetSession looks up a session by id.
func (m *Manager) GetSession(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// GetUserSession looks up a user's active session.
func (m *Manager) GetUserSession(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUser[userID]
	if !ok {
		return nil, false
	}
	s, ok := m.sessions[id]
	return s, ok
}

// EndSession removes a session. Returns false when the id is unknown.
func (m *Manager) EndSession(sessionID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, sessionID)
	if m.byUser[s.UserID] == sessionID {
		delete(m.byUser, s.UserID)
	}
	m.clearCachedResult(sessionID)
	m.mu.Unlock()

	m.logger.Info("streaming session ended",
		zap.String("session_id", sessionID), zap.String("user_id", s.UserID))
	return true
}

// EndUserSession ends the active session of userID, if any. Used when the
// user's last connection goes away.
func (m *Manager) EndUserSession(userID string) bool {
	m.mu.RLock()
	id, ok := m.byUser[userID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return m.EndSession(id)
}

// ProcessFrame feeds one frame into a session. Frames between sample points
// are counted and dropped (nil result); sampled frames run the analysis
// engine and fold the result into the session counters. Returns nil when the
// session is unknown or was ended while the frame was in flight.
func (m *Manager) ProcessFrame(sessionID string, frame analysis.Frame) *analysis.FrameAnalysisResult {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.framesProcessed++
	sampled := s.framesProcessed%int64(s.Config.AnalysisFrequency) == 0
	if !sampled {
		s.mu.Unlock()
		return nil
	}
	result := s.engine.AnalyzeFrame(frame)
	s.mu.Unlock()

	m.storeCachedResult(sessionID, result)

	// The session may have been ended while analysis ran; a stale result
	// must not resurrect its counters, and a cache write that raced the
	// end's cleanup is undone here so it cannot outlive the session.
	if cur, ok := m.GetSession(sessionID); !ok || cur != s {
		m.clearCachedResult(sessionID)
		return nil
	}

	s.mu.Lock()
	s.analyzedFrames++
	s.latencySumMS += result.AnalysisLatencyMS
	s.kpisCalculated += int64(len(result.Measurements))
	s.faultsDetected += int64(len(result.DetectedFaults))
	s.mu.Unlock()

	return result
}

// LatestResult fetches the session's most recent cached analysis result.
func (m *Manager) LatestResult(ctx context.Context, sessionID string) (*analysis.FrameAnalysisResult, bool) {
	if m.results == nil {
		return nil, false
	}
	var result analysis.FrameAnalysisResult
	if err := m.results.Get(ctx, cache.SessionResultKey(sessionID), &result); err != nil {
		return nil, false
	}
	return &result, true
}

// ActiveSessions returns the number of live sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// TotalFramesProcessed sums frame counters across live sessions.
func (m *Manager) TotalFramesProcessed() int64 {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var total int64
	for _, s := range sessions {
		total += s.FramesProcessed()
	}
	return total
}

func (m *Manager) storeCachedResult(sessionID string, result *analysis.FrameAnalysisResult) {
	if m.results == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := m.results.Set(ctx, cache.SessionResultKey(sessionID), result); err != nil {
		m.logger.Warn("cache analysis result", zap.Error(err), zap.String("session_id", sessionID))
	}
}

func (m *Manager) clearCachedResult(sessionID string) {
	if m.results == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	_ = m.results.Delete(ctx, cache.SessionResultKey(sessionID))
}
