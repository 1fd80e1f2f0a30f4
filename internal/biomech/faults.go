package biomech

import (
	"math"

	"github.com/swingsense/backend/internal/analysis"
)

// Expected measurement ranges. Values outside these flag a fault.
const (
	minSpineAngle = 25.0
	maxSpineAngle = 45.0

	minSetupKneeFlex = 15.0

	maxShoulderTiltDeg = 20.0
	minTopShoulderTurn = 60.0

	maxHipSway      = 0.15
	maxHeadMovement = 0.20
)

// FaultClassifier flags range violations in extracted measurements. Severity
// is proportional to how far the reading is outside its expected range,
// capped at 1.0.
type FaultClassifier struct{}

// NewFaultClassifier returns the default range-based classifier.
func NewFaultClassifier() *FaultClassifier { return &FaultClassifier{} }

// Classify inspects each measurement against its expected range and returns
// the raw fault list. Phase-relevance filtering and severity rescaling happen
// downstream in the analysis engine.
func (fc *FaultClassifier) Classify(measurements []analysis.Measurement, phase analysis.SwingPhase) []analysis.Fault {
	var faults []analysis.Fault
	for _, m := range measurements {
		switch m.Kind {
		case analysis.KindSpineAngle:
			if m.Value < minSpineAngle || m.Value > maxSpineAngle {
				dev := rangeDeviation(m.Value, minSpineAngle, maxSpineAngle)
				faults = append(faults, analysis.Fault{
					Name:        "poor_posture",
					Severity:    severityFromDeviation(dev, 20),
					Positions:   []string{"P1"},
					Description: "spine angle outside the expected address range",
				})
			}
		case analysis.KindKneeFlex:
			if m.Value < minSetupKneeFlex {
				faults = append(faults, analysis.Fault{
					Name:        "locked_knees",
					Severity:    severityFromDeviation(minSetupKneeFlex-m.Value, 15),
					Positions:   []string{"P1"},
					Description: "insufficient knee flex at address",
				})
			}
		case analysis.KindShoulderTilt:
			if math.Abs(m.Value) > maxShoulderTiltDeg {
				faults = append(faults, analysis.Fault{
					Name:        "flat_shoulder_plane",
					Severity:    severityFromDeviation(math.Abs(m.Value)-maxShoulderTiltDeg, 15),
					Positions:   []string{"P3", "P4"},
					Description: "shoulder plane too steep or too flat",
				})
			}
		case analysis.KindShoulderTurn:
			if phase == analysis.PhaseTopOfSwing && m.Value < minTopShoulderTurn {
				faults = append(faults, analysis.Fault{
					Name:        "short_backswing",
					Severity:    severityFromDeviation(minTopShoulderTurn-m.Value, 30),
					Positions:   []string{"P4"},
					Description: "incomplete shoulder turn at the top",
				})
			}
		case analysis.KindHipSway:
			if m.Value > maxHipSway {
				faults = append(faults, analysis.Fault{
					Name:        "excessive_sway",
					Severity:    severityFromDeviation(m.Value-maxHipSway, 0.15),
					Positions:   []string{"P2", "P3", "P4"},
					Description: "lateral hip drift during the backswing",
				})
			}
		case analysis.KindHeadStability:
			// No implicated positions: head movement matters in every phase.
			if m.Value > maxHeadMovement {
				faults = append(faults, analysis.Fault{
					Name:        "head_movement",
					Severity:    severityFromDeviation(m.Value-maxHeadMovement, 0.2),
					Description: "head moving off its starting position",
				})
			}
		}
	}
	return faults
}

func rangeDeviation(v, lo, hi float64) float64 {
	if v < lo {
		return lo - v
	}
	if v > hi {
		return v - hi
	}
	return 0
}

// severityFromDeviation maps a deviation to [0.3, 1.0]: any flagged fault is
// at least mildly severe, maxing out when the deviation reaches fullScale.
func severityFromDeviation(deviation, fullScale float64) float64 {
	if deviation <= 0 {
		return 0.3
	}
	s := 0.3 + 0.7*(deviation/fullScale)
	return math.Min(s, 1.0)
}
