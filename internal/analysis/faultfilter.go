package analysis

// phasePositions maps each swing phase to the P-system positions whose faults
// are relevant while the swing is in that phase.
var phasePositions = map[SwingPhase][]string{
	PhaseSetup:         {"P1"},
	PhaseTakeaway:      {"P2"},
	PhaseBackswing:     {"P3"},
	PhaseTopOfSwing:    {"P4"},
	PhaseDownswing:     {"P5", "P6"},
	PhaseImpact:        {"P7"},
	PhaseFollowThrough: {"P8", "P9"},
	PhaseFinish:        {"P10"},
}

// criticalPhases get a severity boost: mistakes here compound through the
// rest of the swing.
var criticalPhases = map[SwingPhase]bool{
	PhaseSetup:      true,
	PhaseTopOfSwing: true,
	PhaseImpact:     true,
}

const (
	criticalSeverityScale = 1.2
	relaxedSeverityScale  = 0.9

	// minFaultSeverity drops faults that rescale below reporting value.
	minFaultSeverity = 0.2
)

// FilterFaults narrows a raw fault list to those relevant to the current
// phase and rescales severity. A fault with no implicated positions is
// treated as generic and kept in every phase.
func FilterFaults(faults []Fault, phase SwingPhase) []Fault {
	relevant := phasePositions[phase]
	scale := relaxedSeverityScale
	if criticalPhases[phase] {
		scale = criticalSeverityScale
	}

	filtered := make([]Fault, 0, len(faults))
	for _, f := range faults {
		if len(f.Positions) > 0 && !intersects(f.Positions, relevant) {
			continue
		}
		f.Severity *= scale
		if f.Severity < minFaultSeverity {
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
