// Package biomech provides the built-in biomechanical collaborators used by
// the analysis engine: a heuristic KPI extractor, a range-based fault
// classifier and a template feedback generator. The engine depends only on
// the interfaces in the analysis package, so these can be swapped for an
// external model service.
package biomech

import (
	"math"

	"github.com/swingsense/backend/internal/analysis"
)

const (
	jointNose      = "nose"
	jointLeftKnee  = "left_knee"
	jointLeftAnkle = "left_ankle"
	degreesPerRad  = 180 / math.Pi
)

// Extractor derives KPI readings from pose keypoints.
type Extractor struct{}

// NewExtractor returns the default measurement extractor.
func NewExtractor() *Extractor { return &Extractor{} }

// Extract computes the requested measurement kinds from the frame. Kinds
// whose joints are missing from the frame are skipped rather than reported
// as zero.
func (e *Extractor) Extract(frame analysis.Frame, prev *analysis.Frame, kinds []analysis.MeasurementKind) []analysis.Measurement {
	out := make([]analysis.Measurement, 0, len(kinds))
	for _, kind := range kinds {
		var (
			value float64
			unit  string
			ok    bool
		)
		switch kind {
		case analysis.KindSpineAngle:
			value, ok = spineAngle(frame)
			unit = "deg"
		case analysis.KindKneeFlex:
			value, ok = kneeFlex(frame)
			unit = "deg"
		case analysis.KindShoulderTilt:
			value, ok = shoulderTilt(frame)
			unit = "deg"
		case analysis.KindShoulderTurn:
			value, ok = pairAngle(frame, analysis.JointLeftShoulder, analysis.JointRightShoulder)
			unit = "deg"
		case analysis.KindHipRotation:
			value, ok = pairAngle(frame, analysis.JointLeftHip, analysis.JointRightHip)
			unit = "deg"
		case analysis.KindHipSway:
			value, ok = hipSway(frame, prev)
			unit = "m"
		case analysis.KindHeadStability:
			value, ok = jointDisplacement(frame, prev, jointNose)
			unit = "m"
		case analysis.KindWristSpeed:
			value, ok = wristSpeed(frame, prev)
			unit = "m/s"
		}
		if ok {
			out = append(out, analysis.Measurement{Kind: kind, Value: value, Unit: unit})
		}
	}
	return out
}

// spineAngle is the forward lean of the torso: the angle between the
// mid-hip→mid-shoulder vector and vertical.
func spineAngle(frame analysis.Frame) (float64, bool) {
	shoulder, ok := midpoint(frame, analysis.JointLeftShoulder, analysis.JointRightShoulder)
	if !ok {
		return 0, false
	}
	hip, ok := midpoint(frame, analysis.JointLeftHip, analysis.JointRightHip)
	if !ok {
		return 0, false
	}
	dy := shoulder.Y - hip.Y
	horizontal := math.Hypot(shoulder.X-hip.X, shoulder.Z-hip.Z)
	if dy == 0 && horizontal == 0 {
		return 0, false
	}
	return math.Atan2(horizontal, math.Abs(dy)) * degreesPerRad, true
}

// kneeFlex is the bend at the lead knee: the deviation from a straight
// hip-knee-ankle line.
func kneeFlex(frame analysis.Frame) (float64, bool) {
	hip, ok1 := frame.Keypoints[analysis.JointLeftHip]
	knee, ok2 := frame.Keypoints[jointLeftKnee]
	ankle, ok3 := frame.Keypoints[jointLeftAnkle]
	if !ok1 || !ok2 || !ok3 {
		return 0, false
	}
	a := vec{hip.X - knee.X, hip.Y - knee.Y, hip.Z - knee.Z}
	b := vec{ankle.X - knee.X, ankle.Y - knee.Y, ankle.Z - knee.Z}
	angle, ok := angleBetween(a, b)
	if !ok {
		return 0, false
	}
	return 180 - angle, true
}

func shoulderTilt(frame analysis.Frame) (float64, bool) {
	l, ok1 := frame.Keypoints[analysis.JointLeftShoulder]
	r, ok2 := frame.Keypoints[analysis.JointRightShoulder]
	if !ok1 || !ok2 {
		return 0, false
	}
	horizontal := math.Hypot(r.X-l.X, r.Z-l.Z)
	if horizontal == 0 {
		return 0, false
	}
	return math.Atan2(r.Y-l.Y, horizontal) * degreesPerRad, true
}

// pairAngle is the signed horizontal-plane angle of the left→right joint pair.
func pairAngle(frame analysis.Frame, left, right string) (float64, bool) {
	l, ok1 := frame.Keypoints[left]
	r, ok2 := frame.Keypoints[right]
	if !ok1 || !ok2 {
		return 0, false
	}
	dx := r.X - l.X
	dz := r.Z - l.Z
	if dx == 0 && dz == 0 {
		return 0, false
	}
	return math.Atan2(dz, dx) * degreesPerRad, true
}

// hipSway is the lateral drift of the hip centre versus the previous frame.
func hipSway(frame analysis.Frame, prev *analysis.Frame) (float64, bool) {
	if prev == nil {
		return 0, false
	}
	cur, ok := midpoint(frame, analysis.JointLeftHip, analysis.JointRightHip)
	if !ok {
		return 0, false
	}
	old, ok := midpoint(*prev, analysis.JointLeftHip, analysis.JointRightHip)
	if !ok {
		return 0, false
	}
	return math.Abs(cur.X - old.X), true
}

func jointDisplacement(frame analysis.Frame, prev *analysis.Frame, joint string) (float64, bool) {
	if prev == nil {
		return 0, false
	}
	cur, ok1 := frame.Keypoints[joint]
	old, ok2 := prev.Keypoints[joint]
	if !ok1 || !ok2 {
		return 0, false
	}
	return distance(cur, old), true
}

func wristSpeed(frame analysis.Frame, prev *analysis.Frame) (float64, bool) {
	if prev == nil {
		return 0, false
	}
	cur, ok1 := frame.Keypoints[analysis.JointLeftWrist]
	old, ok2 := prev.Keypoints[analysis.JointLeftWrist]
	if !ok1 || !ok2 {
		return 0, false
	}
	dt := frame.Timestamp - prev.Timestamp
	if dt <= 0 {
		return 0, false
	}
	return distance(cur, old) / dt, true
}

type vec struct{ x, y, z float64 }

func angleBetween(a, b vec) (float64, bool) {
	la := math.Sqrt(a.x*a.x + a.y*a.y + a.z*a.z)
	lb := math.Sqrt(b.x*b.x + b.y*b.y + b.z*b.z)
	if la == 0 || lb == 0 {
		return 0, false
	}
	cos := (a.x*b.x + a.y*b.y + a.z*b.z) / (la * lb)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * degreesPerRad, true
}

func midpoint(frame analysis.Frame, left, right string) (analysis.Keypoint, bool) {
	l, ok1 := frame.Keypoints[left]
	r, ok2 := frame.Keypoints[right]
	if !ok1 || !ok2 {
		return analysis.Keypoint{}, false
	}
	return analysis.Keypoint{
		X: (l.X + r.X) / 2,
		Y: (l.Y + r.Y) / 2,
		Z: (l.Z + r.Z) / 2,
	}, true
}

func distance(a, b analysis.Keypoint) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
