package analysis

import (
	"time"

	"go.uber.org/zap"
)

// frameBufferDepth bounds the per-session recent-frame history used for
// two-frame measurements (e.g. sway distance).
const frameBufferDepth = 8

// Measurement kinds selected per phase, on top of the always-computed
// baseline set.
var (
	baselineKinds  = []MeasurementKind{KindSpineAngle, KindHeadStability}
	setupKinds     = []MeasurementKind{KindKneeFlex, KindShoulderTilt}
	backswingKinds = []MeasurementKind{KindShoulderTurn, KindHipRotation, KindHipSway}
	impactKinds    = []MeasurementKind{KindHipRotation, KindHipSway, KindWristSpeed}
)

// Engine runs the per-frame analysis pipeline for one streaming session.
// It is not safe for concurrent use; the owning session serializes calls.
//
// The engine never returns an error: internal failures degrade the result
// (empty measurements or faults, fallback phase) instead of failing a frame.
type Engine struct {
	classifier *PhaseClassifier
	extractor  MeasurementExtractor
	faults     FaultClassifier
	logger     *zap.Logger

	frames []Frame
}

// NewEngine creates an analysis engine bound to the given collaborators.
func NewEngine(extractor MeasurementExtractor, faults FaultClassifier, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		classifier: NewPhaseClassifier(),
		extractor:  extractor,
		faults:     faults,
		logger:     logger,
		frames:     make([]Frame, 0, frameBufferDepth),
	}
}

// AnalyzeFrame classifies the frame's swing phase, gates on frame quality,
// extracts phase-relevant measurements and filters faults. Always returns a
// result; analysis latency covers the full pipeline.
func (e *Engine) AnalyzeFrame(frame Frame) *FrameAnalysisResult {
	start := time.Now()

	phase, confidence := e.classifier.Classify(frame)
	quality := FrameQuality(frame)

	result := &FrameAnalysisResult{
		FrameIndex:      frame.FrameIndex,
		Timestamp:       frame.Timestamp,
		SwingPhase:      phase,
		PhaseConfidence: confidence,
		QualityScore:    quality,
		Measurements:    []Measurement{},
		DetectedFaults:  []Fault{},
	}

	// Degenerate input exits before the expensive steps, bounding worst-case
	// latency on garbage frames.
	if quality < MinQualityScore {
		result.AnalysisLatencyMS = msSince(start)
		e.buffer(frame)
		return result
	}

	result.Measurements = e.extractMeasurements(frame, phase)
	result.DetectedFaults = e.classifyFaults(result.Measurements, phase)

	result.AnalysisLatencyMS = msSince(start)
	e.buffer(frame)
	return result
}

// extractMeasurements invokes the extractor collaborator with the kinds
// relevant to the current phase. A panicking collaborator yields an empty
// list for this frame only.
func (e *Engine) extractMeasurements(frame Frame, phase SwingPhase) (out []Measurement) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("measurement extraction failed", zap.Any("panic", r), zap.Int("frame_index", frame.FrameIndex))
			out = []Measurement{}
		}
	}()

	kinds := append([]MeasurementKind{}, baselineKinds...)
	switch phase {
	case PhaseSetup, PhaseTakeaway:
		kinds = append(kinds, setupKinds...)
	case PhaseBackswing, PhaseTopOfSwing:
		kinds = append(kinds, backswingKinds...)
	case PhaseDownswing, PhaseImpact:
		kinds = append(kinds, impactKinds...)
	}

	out = e.extractor.Extract(frame, e.previousFrame(), kinds)
	if out == nil {
		out = []Measurement{}
	}
	return out
}

func (e *Engine) classifyFaults(measurements []Measurement, phase SwingPhase) (out []Fault) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("fault classification failed", zap.Any("panic", r))
			out = []Fault{}
		}
	}()

	raw := e.faults.Classify(measurements, phase)
	out = FilterFaults(raw, phase)
	return out
}

func (e *Engine) buffer(frame Frame) {
	e.frames = append(e.frames, frame)
	if len(e.frames) > frameBufferDepth {
		e.frames = e.frames[len(e.frames)-frameBufferDepth:]
	}
}

func (e *Engine) previousFrame() *Frame {
	if len(e.frames) == 0 {
		return nil
	}
	return &e.frames[len(e.frames)-1]
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
