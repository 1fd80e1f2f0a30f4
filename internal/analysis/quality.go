package analysis

import "math"

// EssentialJoints are the keypoints a frame must expose for measurements and
// fault detection to be trustworthy.
var EssentialJoints = []string{
	JointLeftShoulder,
	JointRightShoulder,
	JointLeftHip,
	JointRightHip,
	JointLeftWrist,
	JointRightWrist,
}

const (
	// MinQualityScore is the gate below which a frame yields no measurements.
	MinQualityScore = 0.3

	// maxCoordinateMagnitude bounds plausible keypoint coordinates.
	maxCoordinateMagnitude = 10.0

	visibilityWeight = 0.7
	positionWeight   = 0.3
)

// FrameQuality scores a frame in [0,1] from the visibility and positional
// plausibility of the essential joints. Missing joints score zero on both
// axes, so a sparse frame dilutes the average rather than being skipped.
func FrameQuality(frame Frame) float64 {
	var visibilitySum, positionSum float64
	for _, name := range EssentialJoints {
		kp, ok := frame.Keypoints[name]
		if !ok {
			continue
		}
		visibilitySum += clamp01(kp.Visibility)
		if plausiblePosition(kp) {
			positionSum += 1.0
		}
	}
	n := float64(len(EssentialJoints))
	score := visibilityWeight*(visibilitySum/n) + positionWeight*(positionSum/n)
	return clamp01(score)
}

func plausiblePosition(kp Keypoint) bool {
	return math.Abs(kp.X) <= maxCoordinateMagnitude &&
		math.Abs(kp.Y) <= maxCoordinateMagnitude &&
		math.Abs(kp.Z) <= maxCoordinateMagnitude
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
