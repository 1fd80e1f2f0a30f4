package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swingsense/backend/internal/analysis"
	"github.com/swingsense/backend/internal/coaching"
	"github.com/swingsense/backend/internal/streaming"
)

type testExtractor struct{}

func (testExtractor) Extract(analysis.Frame, *analysis.Frame, []analysis.MeasurementKind) []analysis.Measurement {
	return []analysis.Measurement{{Kind: analysis.KindSpineAngle, Value: 30, Unit: "deg"}}
}

type testFaults struct{ out []analysis.Fault }

func (f testFaults) Classify([]analysis.Measurement, analysis.SwingPhase) []analysis.Fault {
	return f.out
}

type testFeedback struct{}

func (testFeedback) Generate(faults []analysis.Fault) []string {
	out := make([]string, 0, len(faults))
	for _, f := range faults {
		out = append(out, "fix "+f.Name)
	}
	return out
}

type testRig struct {
	manager *Manager
	streams *streaming.Manager
}

func newTestRig(faults []analysis.Fault) *testRig {
	streams := streaming.NewManager(testExtractor{}, testFaults{out: faults}, nil, nil)
	manager := NewManager(DefaultConfig(), coaching.NewRegistry(nil), nil, nil)
	NewDispatcher(manager, streams, testFeedback{}, nil)
	return &testRig{manager: manager, streams: streams}
}

func envelope(t MessageType, data interface{}) Message {
	msg := NewMessage(t, data)
	return msg
}

func analysisFrame(index int) analysis.Frame {
	return analysis.Frame{
		FrameIndex: index,
		Timestamp:  float64(index) / 30.0,
		Keypoints: map[string]analysis.Keypoint{
			analysis.JointLeftShoulder:  {X: -0.2, Y: 1.4, Visibility: 1},
			analysis.JointRightShoulder: {X: 0.2, Y: 1.4, Visibility: 1},
			analysis.JointLeftHip:       {X: -0.15, Y: 1.0, Visibility: 1},
			analysis.JointRightHip:      {X: 0.15, Y: 1.0, Visibility: 1},
			analysis.JointLeftWrist:     {X: 0, Y: 1.1, Z: 0.3, Visibility: 1},
			analysis.JointRightWrist:    {X: 0.05, Y: 1.1, Z: 0.3, Visibility: 1},
		},
	}
}

func TestHandleConnectSubscribesTopics(t *testing.T) {
	rig := newTestRig(nil)
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypeConnect, map[string]interface{}{
		"topics": []string{TopicPerformanceMetrics},
	}))

	ack := waitMessage(t, ft)
	assert.Equal(t, TypeConnect, ack.Type)
	assert.True(t, conn.SubscribedTo(TopicPerformanceMetrics))
}

func TestHandlePingRepliesPong(t *testing.T) {
	rig := newTestRig(nil)
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypePing, nil))
	assert.Equal(t, TypePong, waitMessage(t, ft).Type)
}

func TestStartSessionAndStreamFrames(t *testing.T) {
	rig := newTestRig(nil)
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypeStartSession, map[string]interface{}{
		"analysis_frequency": 1,
	}))
	started := waitMessageOfType(t, ft, TypeStartSession)
	assert.NotEmpty(t, started.SessionID)

	session, ok := rig.streams.GetUserSession("u1")
	require.True(t, ok)
	assert.Equal(t, started.SessionID, session.ID)

	rig.manager.dispatch(conn, envelope(TypeFrameData, analysisFrame(1)))

	result := waitMessageOfType(t, ft, TypeAnalysisResult)
	assert.Equal(t, session.ID, result.SessionID)

	var parsed analysis.FrameAnalysisResult
	require.NoError(t, json.Unmarshal(result.Data, &parsed))
	assert.Equal(t, 1, parsed.FrameIndex)
	assert.Len(t, parsed.Measurements, 1)

	kpi := waitMessageOfType(t, ft, TypeKPIUpdate)
	assert.NotEmpty(t, kpi.Data)
}

func TestFrameDataThrottledFramesAreSilent(t *testing.T) {
	rig := newTestRig(nil)
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypeStartSession, map[string]interface{}{
		"analysis_frequency": 2,
	}))
	waitMessageOfType(t, ft, TypeStartSession)

	// first frame falls between sample points, nothing comes back
	rig.manager.dispatch(conn, envelope(TypeFrameData, analysisFrame(1)))
	assertNoMessage(t, ft)

	rig.manager.dispatch(conn, envelope(TypeFrameData, analysisFrame(2)))
	waitMessageOfType(t, ft, TypeAnalysisResult)
}

func TestFrameDataWithoutSession(t *testing.T) {
	rig := newTestRig(nil)
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypeFrameData, analysisFrame(1)))
	errMsg := waitMessage(t, ft)
	assert.Equal(t, TypeError, errMsg.Type)
}

func TestFrameDataNegativeIndexRejected(t *testing.T) {
	rig := newTestRig(nil)
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypeFrameData, analysisFrame(-1)))
	assert.Equal(t, TypeValidationError, waitMessage(t, ft).Type)
}

func TestFaultsTriggerFeedback(t *testing.T) {
	rig := newTestRig([]analysis.Fault{
		{Name: "poor_posture", Severity: 0.8, Positions: []string{"P1"}},
	})
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypeStartSession, map[string]interface{}{
		"analysis_frequency": 1,
	}))
	waitMessageOfType(t, ft, TypeStartSession)

	rig.manager.dispatch(conn, envelope(TypeFrameData, analysisFrame(1)))

	fault := waitMessageOfType(t, ft, TypeFaultDetected)
	assert.NotEmpty(t, fault.Data)

	feedback := waitMessageOfType(t, ft, TypeFeedback)
	var payload struct {
		Messages []string `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(feedback.Data, &payload))
	assert.Equal(t, []string{"fix poor_posture"}, payload.Messages)

	session, ok := rig.streams.GetUserSession("u1")
	require.True(t, ok)
	assert.Equal(t, int64(1), session.Metrics().FeedbackGenerated)
}

func TestSilentModeSuppressesFeedback(t *testing.T) {
	rig := newTestRig([]analysis.Fault{
		{Name: "poor_posture", Severity: 0.8, Positions: []string{"P1"}},
	})
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypeStartSession, map[string]interface{}{
		"analysis_frequency": 1,
		"feedback_mode":      streaming.FeedbackModeSilent,
	}))
	waitMessageOfType(t, ft, TypeStartSession)

	rig.manager.dispatch(conn, envelope(TypeFrameData, analysisFrame(1)))
	waitMessageOfType(t, ft, TypeFaultDetected)
	assertNoMessage(t, ft)
}

func TestEndSessionFallsBackToUserSession(t *testing.T) {
	rig := newTestRig(nil)
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypeStartSession, nil))
	waitMessageOfType(t, ft, TypeStartSession)

	rig.manager.dispatch(conn, envelope(TypeEndSession, nil))
	waitMessageOfType(t, ft, TypeEndSession)

	_, ok := rig.streams.GetUserSession("u1")
	assert.False(t, ok)
}

func TestEndSessionUnknown(t *testing.T) {
	rig := newTestRig(nil)
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypeEndSession, nil))
	assert.Equal(t, TypeError, waitMessage(t, ft).Type)
}

func TestJoinSessionAndRelayTip(t *testing.T) {
	rig := newTestRig(nil)
	coachFT, studentFT := newFakeTransport(), newFakeTransport()
	coach := rig.manager.Accept(coachFT, "coach", nil)
	student := rig.manager.Accept(studentFT, "student", nil)

	rig.manager.dispatch(coach, envelope(TypeJoinSession, map[string]interface{}{
		"session_id": "lesson-1",
		"create":     true,
	}))
	waitMessageOfType(t, coachFT, TypeJoinSession)

	rig.manager.dispatch(student, envelope(TypeJoinSession, map[string]interface{}{
		"session_id": "lesson-1",
	}))
	waitMessageOfType(t, studentFT, TypeJoinSession)

	tip := envelope(TypeCoachingTip, map[string]string{"text": "slow the takeaway"})
	rig.manager.dispatch(coach, tip)

	got := waitMessageOfType(t, studentFT, TypeCoachingTip)
	assert.JSONEq(t, string(tip.Data), string(got.Data))
	assert.Equal(t, "lesson-1", got.SessionID)
	assert.Equal(t, "coach", got.UserID)

	// the sender's room copy carries the same payload
	echo := waitMessageOfType(t, coachFT, TypeCoachingTip)
	assert.JSONEq(t, string(tip.Data), string(echo.Data))
}

func TestJoinSessionMissingID(t *testing.T) {
	rig := newTestRig(nil)
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypeJoinSession, nil))
	assert.Equal(t, TypeValidationError, waitMessage(t, ft).Type)
}

func TestRelayTipOutsideRoom(t *testing.T) {
	rig := newTestRig(nil)
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypeCoachingTip, map[string]string{"text": "hi"}))
	assert.Equal(t, TypeError, waitMessage(t, ft).Type)
}

func TestLeaveSessionNotifiesRoom(t *testing.T) {
	rig := newTestRig(nil)
	coachFT, studentFT := newFakeTransport(), newFakeTransport()
	coach := rig.manager.Accept(coachFT, "coach", nil)
	student := rig.manager.Accept(studentFT, "student", nil)

	rig.manager.dispatch(coach, envelope(TypeJoinSession, map[string]interface{}{
		"session_id": "lesson-1",
		"create":     true,
	}))
	rig.manager.dispatch(student, envelope(TypeJoinSession, map[string]interface{}{
		"session_id": "lesson-1",
	}))
	waitMessageOfType(t, coachFT, TypeJoinSession)
	waitMessageOfType(t, studentFT, TypeJoinSession)

	rig.manager.dispatch(student, envelope(TypeLeaveSession, nil))

	notice := waitMessageOfType(t, coachFT, TypeLeaveSession)
	assert.Equal(t, "lesson-1", notice.SessionID)
	assert.Empty(t, student.SessionID())
}

func TestFaultSeverityBelowThresholdSkipsFeedback(t *testing.T) {
	// 0.3 scaled by the setup boost is 0.36, under the default 0.6 threshold
	rig := newTestRig([]analysis.Fault{
		{Name: "minor_thing", Severity: 0.3, Positions: []string{"P1"}},
	})
	ft := newFakeTransport()
	conn := rig.manager.Accept(ft, "u1", nil)

	rig.manager.dispatch(conn, envelope(TypeStartSession, map[string]interface{}{
		"analysis_frequency": 1,
	}))
	waitMessageOfType(t, ft, TypeStartSession)

	rig.manager.dispatch(conn, envelope(TypeFrameData, analysisFrame(1)))
	waitMessageOfType(t, ft, TypeFaultDetected)
	assertNoMessage(t, ft)
}
