package realtime

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/swingsense/backend/internal/analysis"
	"github.com/swingsense/backend/internal/coaching"
	"github.com/swingsense/backend/internal/streaming"
)

// Dispatcher binds the protocol message types to the streaming-session
// manager and the coaching-room registry.
type Dispatcher struct {
	manager  *Manager
	streams  *streaming.Manager
	feedback analysis.FeedbackGenerator
	logger   *zap.Logger
}

// NewDispatcher wires the message handlers into the connection manager.
func NewDispatcher(manager *Manager, streams *streaming.Manager, feedback analysis.FeedbackGenerator, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{manager: manager, streams: streams, feedback: feedback, logger: logger}

	manager.RegisterHandler(TypeConnect, d.handleConnect)
	manager.RegisterHandler(TypeDisconnect, d.handleDisconnect)
	manager.RegisterHandler(TypePing, d.handlePing)
	manager.RegisterHandler(TypePong, func(*Connection, Message) {}) // heartbeat already recorded
	manager.RegisterHandler(TypeFrameData, d.handleFrameData)
	manager.RegisterHandler(TypeStartSession, d.handleStartSession)
	manager.RegisterHandler(TypeEndSession, d.handleEndSession)
	manager.RegisterHandler(TypeJoinSession, d.handleJoinSession)
	manager.RegisterHandler(TypeLeaveSession, d.handleLeaveSession)
	manager.RegisterHandler(TypeCoachingTip, d.handleRoomRelay)
	manager.RegisterHandler(TypeDrillSuggestion, d.handleRoomRelay)

	return d
}

func (d *Dispatcher) handleConnect(conn *Connection, msg Message) {
	var payload struct {
		Topics []string `json:"topics"`
	}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			d.manager.sendValidationError(conn, "invalid connect payload")
			return
		}
	}
	conn.Subscribe(payload.Topics...)
	d.manager.Send(conn.ID, NewMessage(TypeConnect, map[string]interface{}{
		"connection_id": conn.ID,
		"user_id":       conn.UserID,
	}))
}

func (d *Dispatcher) handleDisconnect(conn *Connection, _ Message) {
	d.manager.Disconnect(conn.ID)
}

func (d *Dispatcher) handlePing(conn *Connection, _ Message) {
	d.manager.Send(conn.ID, NewMessage(TypePong, nil))
}

// handleFrameData feeds a pose frame into the user's streaming session. A
// nil result means the frame fell between sample points and was dropped by
// the throttle.
func (d *Dispatcher) handleFrameData(conn *Connection, msg Message) {
	var frame analysis.Frame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		d.manager.sendValidationError(conn, "invalid frame payload")
		return
	}
	if frame.FrameIndex < 0 {
		d.manager.sendValidationError(conn, "frame_index must be >= 0")
		return
	}

	session, ok := d.streams.GetUserSession(conn.UserID)
	if !ok {
		d.sendError(conn, "no active streaming session")
		return
	}

	result := d.streams.ProcessFrame(session.ID, frame)
	if result == nil {
		return
	}

	out := NewMessage(TypeAnalysisResult, result)
	out.SessionID = session.ID
	d.manager.Send(conn.ID, out)

	if session.Config.EnableRealTimeKPIs && len(result.Measurements) > 0 {
		d.manager.Send(conn.ID, NewMessage(TypeKPIUpdate, map[string]interface{}{
			"frame_index":  result.FrameIndex,
			"swing_phase":  result.SwingPhase,
			"measurements": result.Measurements,
		}))
	}
	if len(result.DetectedFaults) > 0 {
		d.manager.Send(conn.ID, NewMessage(TypeFaultDetected, map[string]interface{}{
			"frame_index": result.FrameIndex,
			"swing_phase": result.SwingPhase,
			"faults":      result.DetectedFaults,
		}))
	}

	d.maybeSendFeedback(conn, session, result)
}

// maybeSendFeedback applies the severity threshold and forwards surviving
// faults to the feedback generator.
func (d *Dispatcher) maybeSendFeedback(conn *Connection, session *streaming.Session, result *analysis.FrameAnalysisResult) {
	if !session.Config.EnableInstantFeedback || session.Config.FeedbackMode == streaming.FeedbackModeSilent {
		return
	}
	faults := analysis.FaultsAboveThreshold(result.DetectedFaults, session.Config.FeedbackThreshold)
	if len(faults) == 0 {
		return
	}
	messages := d.feedback.Generate(faults)
	if len(messages) == 0 {
		return
	}
	session.RecordFeedback(len(messages))

	out := NewMessage(TypeFeedback, map[string]interface{}{
		"frame_index": result.FrameIndex,
		"swing_phase": result.SwingPhase,
		"messages":    messages,
		"faults":      faults,
	})
	out.SessionID = session.ID
	d.manager.Send(conn.ID, out)
}

func (d *Dispatcher) handleStartSession(conn *Connection, msg Message) {
	cfg := streaming.DefaultConfig()
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &cfg); err != nil {
			d.manager.sendValidationError(conn, "invalid session config")
			return
		}
	}
	cfg.UserID = conn.UserID

	session, err := d.streams.CreateSession(cfg)
	if err != nil {
		d.sendError(conn, err.Error())
		return
	}
	out := NewMessage(TypeStartSession, map[string]interface{}{
		"session_id":    session.ID,
		"configuration": session.Config,
	})
	out.SessionID = session.ID
	d.manager.Send(conn.ID, out)
}

func (d *Dispatcher) handleEndSession(conn *Connection, msg Message) {
	sessionID := msg.SessionID
	if sessionID == "" {
		if session, ok := d.streams.GetUserSession(conn.UserID); ok {
			sessionID = session.ID
		}
	}
	if sessionID == "" || !d.streams.EndSession(sessionID) {
		d.sendError(conn, "streaming session not found")
		return
	}
	d.manager.Send(conn.ID, NewMessage(TypeEndSession, map[string]interface{}{
		"session_id": sessionID,
	}))
}

func (d *Dispatcher) handleJoinSession(conn *Connection, msg Message) {
	var payload struct {
		SessionID string          `json:"session_id"`
		Create    bool            `json:"create"`
		Config    coaching.Config `json:"config"`
	}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			d.manager.sendValidationError(conn, "invalid join payload")
			return
		}
	}
	if payload.SessionID == "" {
		payload.SessionID = msg.SessionID
	}
	if payload.SessionID == "" {
		d.manager.sendValidationError(conn, "missing required field: session_id")
		return
	}

	if !d.manager.JoinRoom(conn, payload.SessionID, payload.Create, payload.Config) {
		d.sendError(conn, "coaching session not found")
		return
	}

	notice := NewMessage(TypeJoinSession, map[string]interface{}{
		"session_id": payload.SessionID,
		"user_id":    conn.UserID,
	})
	notice.SessionID = payload.SessionID
	d.manager.Broadcast(payload.SessionID, notice)
}

func (d *Dispatcher) handleLeaveSession(conn *Connection, _ Message) {
	sessionID, ok := d.manager.LeaveRoom(conn)
	if !ok {
		d.sendError(conn, "not in a coaching session")
		return
	}
	d.manager.Send(conn.ID, NewMessage(TypeLeaveSession, map[string]interface{}{
		"session_id": sessionID,
	}))
	notice := NewMessage(TypeLeaveSession, map[string]interface{}{
		"session_id": sessionID,
		"user_id":    conn.UserID,
	})
	notice.SessionID = sessionID
	d.manager.Broadcast(sessionID, notice)
}

// handleRoomRelay forwards coaching tips and drill suggestions verbatim to
// the sender's room.
func (d *Dispatcher) handleRoomRelay(conn *Connection, msg Message) {
	sessionID := conn.SessionID()
	if sessionID == "" {
		d.sendError(conn, "not in a coaching session")
		return
	}
	relay := NewMessage(msg.Type, nil)
	relay.Data = msg.Data
	relay.SessionID = sessionID
	relay.UserID = conn.UserID
	delivered := d.manager.RelayToRoom(sessionID, relay)
	d.logger.Debug("room message relayed",
		zap.String("session_id", sessionID),
		zap.String("type", string(msg.Type)),
		zap.Int("delivered", delivered))
}

func (d *Dispatcher) sendError(conn *Connection, detail string) {
	d.manager.Send(conn.ID, NewMessage(TypeError, map[string]interface{}{
		"message": detail,
	}))
}
