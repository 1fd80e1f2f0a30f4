// Package analysis implements the per-frame swing analysis pipeline:
// phase classification, frame quality gating, phase-conditional measurement
// extraction and adaptive fault filtering.
package analysis

// SwingPhase is one stage of the golf swing motion cycle.
type SwingPhase string

const (
	PhaseSetup         SwingPhase = "SETUP"
	PhaseTakeaway      SwingPhase = "TAKEAWAY"
	PhaseBackswing     SwingPhase = "BACKSWING"
	PhaseTopOfSwing    SwingPhase = "TOP_OF_SWING"
	PhaseDownswing     SwingPhase = "DOWNSWING"
	PhaseImpact        SwingPhase = "IMPACT"
	PhaseFollowThrough SwingPhase = "FOLLOW_THROUGH"
	PhaseFinish        SwingPhase = "FINISH"
	PhaseUnknown       SwingPhase = "UNKNOWN"
)

// Keypoint is one tracked joint position in camera space.
// Visibility is an optional tracking confidence in [0,1].
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility,omitempty"`
}

// Frame is a single pose sample from the client.
type Frame struct {
	FrameIndex int                 `json:"frame_index"`
	Timestamp  float64             `json:"timestamp"`
	Keypoints  map[string]Keypoint `json:"keypoints"`
}

// MeasurementKind names a derivable KPI.
type MeasurementKind string

const (
	KindSpineAngle    MeasurementKind = "spine_angle"
	KindKneeFlex      MeasurementKind = "knee_flex"
	KindShoulderTilt  MeasurementKind = "shoulder_tilt"
	KindHipRotation   MeasurementKind = "hip_rotation"
	KindShoulderTurn  MeasurementKind = "shoulder_turn"
	KindHipSway       MeasurementKind = "hip_sway"
	KindHeadStability MeasurementKind = "head_stability"
	KindWristSpeed    MeasurementKind = "wrist_speed"
)

// Measurement is a single named KPI reading for one frame.
type Measurement struct {
	Kind  MeasurementKind `json:"kind"`
	Value float64         `json:"value"`
	Unit  string          `json:"unit,omitempty"`
}

// Fault is a flagged deviation of one or more measurements from an expected
// range. Positions lists the swing positions (P1..P10) the fault is relevant
// to; an empty list means the fault applies in any phase.
type Fault struct {
	Name        string   `json:"name"`
	Severity    float64  `json:"severity"`
	Positions   []string `json:"positions,omitempty"`
	Description string   `json:"description,omitempty"`
}

// FrameAnalysisResult is the pipeline output for one analyzed frame.
type FrameAnalysisResult struct {
	FrameIndex        int           `json:"frame_index"`
	Timestamp         float64       `json:"timestamp"`
	SwingPhase        SwingPhase    `json:"swing_phase"`
	PhaseConfidence   float64       `json:"phase_confidence"`
	QualityScore      float64       `json:"quality_score"`
	Measurements      []Measurement `json:"measurements"`
	DetectedFaults    []Fault       `json:"detected_faults"`
	AnalysisLatencyMS float64       `json:"analysis_latency_ms"`
}

// MeasurementExtractor derives KPI readings from a frame. prev is the most
// recent earlier frame for two-frame measurements and may be nil.
type MeasurementExtractor interface {
	Extract(frame Frame, prev *Frame, kinds []MeasurementKind) []Measurement
}

// FaultClassifier flags deviations in a set of measurements.
type FaultClassifier interface {
	Classify(measurements []Measurement, phase SwingPhase) []Fault
}

// FeedbackGenerator turns a filtered, severity-ordered fault list into
// human-readable coaching text.
type FeedbackGenerator interface {
	Generate(faults []Fault) []string
}
