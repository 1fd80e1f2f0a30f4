// Package streaming owns real-time analysis sessions: one per user, each
// with its configuration, sampling throttle, analysis engine state and
// running performance counters.
package streaming

import (
	"sync"
	"time"

	"github.com/swingsense/backend/internal/analysis"
)

// Skill levels accepted in session configuration.
const (
	SkillBeginner     = "beginner"
	SkillIntermediate = "intermediate"
	SkillAdvanced     = "advanced"
	SkillProfessional = "professional"
)

// Feedback modes.
const (
	FeedbackModeInstant = "instant"
	FeedbackModeSummary = "summary"
	FeedbackModeSilent  = "silent"
)

// Config is a streaming session's configuration.
type Config struct {
	UserID                string  `json:"user_id"`
	SessionName           string  `json:"session_name"`
	ClubUsed              string  `json:"club_used"`
	SkillLevel            string  `json:"skill_level"`
	FeedbackMode          string  `json:"feedback_mode"`
	AnalysisFrequency     int     `json:"analysis_frequency"`
	FeedbackThreshold     float64 `json:"feedback_threshold"`
	EnableRealTimeKPIs    bool    `json:"enable_real_time_kpis"`
	EnableInstantFeedback bool    `json:"enable_instant_feedback"`
	TargetLatencyMS       int     `json:"target_latency_ms"` // advisory only
}

// DefaultConfig returns a config with all defaults applied. Handlers bind
// request bodies over this so absent fields keep their defaults.
func DefaultConfig() Config {
	return Config{
		SessionName:           "Live Analysis Session",
		SkillLevel:            SkillIntermediate,
		FeedbackMode:          FeedbackModeInstant,
		AnalysisFrequency:     5,
		FeedbackThreshold:     0.6,
		EnableRealTimeKPIs:    true,
		EnableInstantFeedback: true,
		TargetLatencyMS:       100,
	}
}

// normalize clamps invalid values back into range.
func (c *Config) normalize() {
	if c.SessionName == "" {
		c.SessionName = "Live Analysis Session"
	}
	if c.AnalysisFrequency == 0 {
		c.AnalysisFrequency = 5
	}
	if c.AnalysisFrequency < 1 {
		c.AnalysisFrequency = 1
	}
	// zero is a valid threshold (feedback on every fault); only values
	// outside [0,1] fall back to the default
	if c.FeedbackThreshold < 0 || c.FeedbackThreshold > 1 {
		c.FeedbackThreshold = 0.6
	}
	if c.TargetLatencyMS <= 0 {
		c.TargetLatencyMS = 100
	}
}

// PerformanceMetrics are a session's running counters. AverageLatencyMS is an
// exact running mean over all analyzed frames.
type PerformanceMetrics struct {
	FramesProcessed   int64   `json:"frames_processed"`
	AverageLatencyMS  float64 `json:"average_latency_ms"`
	KPIsCalculated    int64   `json:"kpis_calculated"`
	FaultsDetected    int64   `json:"faults_detected"`
	FeedbackGenerated int64   `json:"feedback_generated"`
}

// Session is one user's live analysis context.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Config    Config    `json:"configuration"`
	CreatedAt time.Time `json:"created_at"`

	mu     sync.Mutex
	engine *analysis.Engine

	framesProcessed   int64
	analyzedFrames    int64
	latencySumMS      float64
	kpisCalculated    int64
	faultsDetected    int64
	feedbackGenerated int64
}

// Metrics returns a snapshot of the session's performance counters.
func (s *Session) Metrics() PerformanceMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := PerformanceMetrics{
		FramesProcessed:   s.framesProcessed,
		KPIsCalculated:    s.kpisCalculated,
		FaultsDetected:    s.faultsDetected,
		FeedbackGenerated: s.feedbackGenerated,
	}
	if s.analyzedFrames > 0 {
		m.AverageLatencyMS = s.latencySumMS / float64(s.analyzedFrames)
	}
	return m
}

// RecordFeedback counts feedback messages delivered for this session.
func (s *Session) RecordFeedback(count int) {
	s.mu.Lock()
	s.feedbackGenerated += int64(count)
	s.mu.Unlock()
}

// FramesProcessed returns the inbound frame counter.
func (s *Session) FramesProcessed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesProcessed
}
