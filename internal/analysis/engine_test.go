package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedExtractor struct{ out []Measurement }

func (f fixedExtractor) Extract(Frame, *Frame, []MeasurementKind) []Measurement { return f.out }

type panicExtractor struct{}

func (panicExtractor) Extract(Frame, *Frame, []MeasurementKind) []Measurement { panic("extract") }

type fixedFaults struct{ out []Fault }

func (f fixedFaults) Classify([]Measurement, SwingPhase) []Fault { return f.out }

type panicFaults struct{}

func (panicFaults) Classify([]Measurement, SwingPhase) []Fault { panic("classify") }

func TestAnalyzeFrameHappyPath(t *testing.T) {
	engine := NewEngine(
		fixedExtractor{out: []Measurement{{Kind: KindSpineAngle, Value: 30, Unit: "deg"}}},
		fixedFaults{out: []Fault{{Name: "poor_posture", Severity: 0.5, Positions: []string{"P1"}}}},
		nil,
	)

	result := engine.AnalyzeFrame(poseFrame(7, 0.25, addressPose()))
	require.NotNil(t, result)
	assert.Equal(t, 7, result.FrameIndex)
	assert.Equal(t, PhaseSetup, result.SwingPhase)
	assert.InDelta(t, 1.0, result.QualityScore, 1e-9)
	require.Len(t, result.Measurements, 1)
	require.Len(t, result.DetectedFaults, 1)
	// setup is a critical phase, 0.5 scales to 0.6
	assert.InDelta(t, 0.6, result.DetectedFaults[0].Severity, 1e-9)
	assert.GreaterOrEqual(t, result.AnalysisLatencyMS, 0.0)
}

func TestAnalyzeFrameQualityGate(t *testing.T) {
	// a panicking extractor proves the gate short-circuits before extraction
	engine := NewEngine(panicExtractor{}, panicFaults{}, nil)

	frame := poseFrame(0, 0.0, map[string]Keypoint{
		JointLeftShoulder: {X: -0.2, Y: 1.4, Visibility: 0.1},
	})
	result := engine.AnalyzeFrame(frame)
	require.NotNil(t, result)
	assert.Less(t, result.QualityScore, MinQualityScore)
	assert.Empty(t, result.Measurements)
	assert.Empty(t, result.DetectedFaults)
	assert.NotNil(t, result.Measurements)
	assert.NotNil(t, result.DetectedFaults)
}

func TestAnalyzeFrameRecoversFromExtractorPanic(t *testing.T) {
	engine := NewEngine(panicExtractor{}, fixedFaults{}, nil)

	result := engine.AnalyzeFrame(poseFrame(0, 0.0, addressPose()))
	require.NotNil(t, result)
	assert.Empty(t, result.Measurements)
	assert.Empty(t, result.DetectedFaults)
}

func TestAnalyzeFrameRecoversFromClassifierPanic(t *testing.T) {
	engine := NewEngine(
		fixedExtractor{out: []Measurement{{Kind: KindSpineAngle, Value: 30}}},
		panicFaults{},
		nil,
	)

	result := engine.AnalyzeFrame(poseFrame(0, 0.0, addressPose()))
	require.NotNil(t, result)
	assert.Len(t, result.Measurements, 1)
	assert.Empty(t, result.DetectedFaults)
}

func TestAnalyzeFrameNeverReturnsNil(t *testing.T) {
	engine := NewEngine(fixedExtractor{}, fixedFaults{}, nil)

	for i, frame := range []Frame{
		poseFrame(0, 0.0, nil),
		poseFrame(1, 0.0, map[string]Keypoint{}),
		poseFrame(2, -5.0, addressPose()),
	} {
		result := engine.AnalyzeFrame(frame)
		assert.NotNil(t, result, "frame %d", i)
	}
}

func TestEngineTracksPreviousFrame(t *testing.T) {
	engine := NewEngine(fixedExtractor{}, fixedFaults{}, nil)
	assert.Nil(t, engine.previousFrame())

	engine.AnalyzeFrame(poseFrame(0, 0.0, addressPose()))
	prev := engine.previousFrame()
	require.NotNil(t, prev)
	assert.Equal(t, 0, prev.FrameIndex)

	engine.AnalyzeFrame(poseFrame(1, 1.0/30, addressPose()))
	assert.Equal(t, 1, engine.previousFrame().FrameIndex)
}
