// Package realtime implements the duplex-connection layer: the WebSocket
// message envelope, per-connection read/write pumps, the connection registry
// with liveness eviction, type-based message dispatch and room broadcast
// with optional Redis fan-out across instances.
package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MessageType enumerates the envelope types on both control and data planes.
type MessageType string

const (
	TypeConnect            MessageType = "connect"
	TypeDisconnect         MessageType = "disconnect"
	TypePing               MessageType = "ping"
	TypePong               MessageType = "pong"
	TypeFrameData          MessageType = "frame_data"
	TypeAnalysisResult     MessageType = "analysis_result"
	TypeFeedback           MessageType = "feedback"
	TypeStartSession       MessageType = "start_session"
	TypeEndSession         MessageType = "end_session"
	TypeJoinSession        MessageType = "join_session"
	TypeLeaveSession       MessageType = "leave_session"
	TypeKPIUpdate          MessageType = "kpi_update"
	TypeFaultDetected      MessageType = "fault_detected"
	TypePerformanceMetrics MessageType = "performance_metrics"
	TypeCoachingTip        MessageType = "coaching_tip"
	TypeDrillSuggestion    MessageType = "drill_suggestion"
	TypeError              MessageType = "error"
	TypeValidationError    MessageType = "validation_error"
)

// Message is the bidirectional envelope carried on every connection.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp float64         `json:"timestamp"`
	MessageID string          `json:"message_id"`
	SessionID string          `json:"session_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
}

// NewMessage builds an outbound envelope with a fresh message id and the
// current time. Marshal failures of data leave Data empty; the envelope is
// still delivered.
func NewMessage(t MessageType, data interface{}) Message {
	msg := Message{
		Type:      t,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		MessageID: uuid.New().String(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			msg.Data = raw
		}
	}
	return msg
}

// Validate checks the required envelope fields. An unknown Type value is not
// a validation failure; unknown types are dropped at dispatch.
func (m Message) Validate() error {
	if m.Type == "" {
		return errors.New("missing required field: type")
	}
	if m.MessageID == "" {
		return errors.New("missing required field: message_id")
	}
	return nil
}
