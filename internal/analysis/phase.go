package analysis

import (
	"fmt"
	"math"
)

// Joint names expected in the frame keypoint map.
const (
	JointLeftShoulder  = "left_shoulder"
	JointRightShoulder = "right_shoulder"
	JointLeftHip       = "left_hip"
	JointRightHip      = "right_hip"
	JointLeftWrist     = "left_wrist"
	JointRightWrist    = "right_wrist"
)

// Classification thresholds. Rotation angles are in degrees, velocities in
// units of keypoint space per second.
const (
	stillVelocity     = 0.1
	neutralRotation   = 10.0
	backswingRotation = 30.0
	topRotation       = 60.0
	downswingVelocity = 1.5
	impactVelocity    = 2.5
	finishRotation    = -45.0
	throughRotation   = -20.0

	hysteresisMinConfidence = 0.6
	smoothedConfidenceCap   = 0.95
	phaseHistoryDepth       = 3
)

// PhaseClassifier labels frames with a swing phase. It keeps a short history
// of accepted phases for continuity smoothing, so one classifier instance
// belongs to exactly one streaming session.
type PhaseClassifier struct {
	history   []SwingPhase
	prevFrame *Frame
}

// NewPhaseClassifier returns a classifier with empty history.
func NewPhaseClassifier() *PhaseClassifier {
	return &PhaseClassifier{history: make([]SwingPhase, 0, phaseHistoryDepth)}
}

// Classify labels one frame. It never fails: when the pose is too degenerate
// to compute features it falls back to the last accepted phase at low
// confidence, or SETUP when there is no history yet.
func (pc *PhaseClassifier) Classify(frame Frame) (SwingPhase, float64) {
	phase, confidence, err := pc.classifyRaw(frame)
	if err != nil {
		if last, ok := pc.lastPhase(); ok {
			return last, 0.3
		}
		return PhaseSetup, 0.1
	}

	phase, confidence = pc.smooth(phase, confidence)
	pc.accept(phase)
	pc.remember(frame)
	return phase, confidence
}

// Reset clears classifier history, e.g. between swings.
func (pc *PhaseClassifier) Reset() {
	pc.history = pc.history[:0]
	pc.prevFrame = nil
}

func (pc *PhaseClassifier) classifyRaw(frame Frame) (SwingPhase, float64, error) {
	wrist, ok := frame.Keypoints[JointLeftWrist]
	if !ok {
		return PhaseUnknown, 0, fmt.Errorf("missing keypoint %s", JointLeftWrist)
	}
	shoulderRot, err := rotationAngle(frame, JointLeftShoulder, JointRightShoulder)
	if err != nil {
		return PhaseUnknown, 0, err
	}
	hipRot, err := rotationAngle(frame, JointLeftHip, JointRightHip)
	if err != nil {
		return PhaseUnknown, 0, err
	}
	velocity := pc.wristVelocity(wrist, frame.Timestamp)

	switch {
	case velocity < stillVelocity && math.Abs(shoulderRot) < neutralRotation && math.Abs(hipRot) < neutralRotation:
		return PhaseSetup, 0.8, nil
	case shoulderRot >= topRotation && velocity < stillVelocity:
		return PhaseTopOfSwing, 0.85, nil
	case shoulderRot <= finishRotation && velocity < 2*stillVelocity:
		return PhaseFinish, 0.8, nil
	case velocity >= impactVelocity && math.Abs(shoulderRot) < backswingRotation:
		return PhaseImpact, 0.85, nil
	case velocity >= downswingVelocity && shoulderRot >= neutralRotation:
		return PhaseDownswing, 0.8, nil
	case shoulderRot <= throughRotation && velocity >= 0.5:
		return PhaseFollowThrough, 0.75, nil
	case shoulderRot >= backswingRotation && shoulderRot < topRotation && velocity >= stillVelocity:
		return PhaseBackswing, 0.75, nil
	case velocity >= stillVelocity && shoulderRot >= 0 && shoulderRot < backswingRotation:
		return PhaseTakeaway, 0.7, nil
	default:
		return PhaseUnknown, 0.4, nil
	}
}

// smooth applies continuity rules over the recent phase history: repeated
// agreement raises confidence, and a low-confidence phase change is rejected
// in favour of the previous phase to prevent flapping.
func (pc *PhaseClassifier) smooth(phase SwingPhase, confidence float64) (SwingPhase, float64) {
	n := len(pc.history)
	if n >= 2 && pc.history[n-1] == phase && pc.history[n-2] == phase {
		return phase, math.Min(confidence+0.1, smoothedConfidenceCap)
	}
	if n >= 1 && pc.history[n-1] != phase && confidence < hysteresisMinConfidence {
		return pc.history[n-1], 0.5
	}
	return phase, confidence
}

func (pc *PhaseClassifier) accept(phase SwingPhase) {
	pc.history = append(pc.history, phase)
	if len(pc.history) > phaseHistoryDepth {
		pc.history = pc.history[len(pc.history)-phaseHistoryDepth:]
	}
}

func (pc *PhaseClassifier) lastPhase() (SwingPhase, bool) {
	if len(pc.history) == 0 {
		return PhaseUnknown, false
	}
	return pc.history[len(pc.history)-1], true
}

func (pc *PhaseClassifier) remember(frame Frame) {
	f := frame
	pc.prevFrame = &f
}

// wristVelocity is the instantaneous 3D speed of the lead wrist versus the
// previous frame. Zero when there is no previous frame or time moved backwards.
func (pc *PhaseClassifier) wristVelocity(wrist Keypoint, ts float64) float64 {
	if pc.prevFrame == nil {
		return 0
	}
	prevWrist, ok := pc.prevFrame.Keypoints[JointLeftWrist]
	if !ok {
		return 0
	}
	dt := ts - pc.prevFrame.Timestamp
	if dt <= 0 {
		return 0
	}
	dx := wrist.X - prevWrist.X
	dy := wrist.Y - prevWrist.Y
	dz := wrist.Z - prevWrist.Z
	return math.Sqrt(dx*dx+dy*dy+dz*dz) / dt
}

// rotationAngle is the signed angle, in degrees, of the left→right joint pair
// projected onto the horizontal plane. Positive values rotate away from the
// target (backswing direction).
func rotationAngle(frame Frame, left, right string) (float64, error) {
	l, ok := frame.Keypoints[left]
	if !ok {
		return 0, fmt.Errorf("missing keypoint %s", left)
	}
	r, ok := frame.Keypoints[right]
	if !ok {
		return 0, fmt.Errorf("missing keypoint %s", right)
	}
	dx := r.X - l.X
	dz := r.Z - l.Z
	if dx == 0 && dz == 0 {
		return 0, fmt.Errorf("degenerate %s/%s pair", left, right)
	}
	return math.Atan2(dz, dx) * 180 / math.Pi, nil
}
