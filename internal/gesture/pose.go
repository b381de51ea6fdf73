package gesture

import (
	"math"

	"github.com/ayusman/arstage/internal/detector"
)

// Angle limits, in degrees, measured at the middle joint of a finger.
const (
	noCurlStartLimit   = 130.0
	halfCurlStartLimit = 60.0
)

// FingerPose is the reduced state of one finger.
type FingerPose struct {
	Curl      Curl      `json:"curl"`
	Direction Direction `json:"direction"`
}

// Pose is the reduced state of a whole hand, indexed by Finger.
type Pose [NumFingers]FingerPose

// EstimatePose reduces 21 landmarks to one curl and one direction per finger.
func EstimatePose(points *[detector.NumLandmarks]detector.Point3D) Pose {
	var pose Pose
	for f := Finger(0); f < NumFingers; f++ {
		chain := chains[f]

		// The thumb's first segment is anchored at the CMC joint, not the wrist.
		offset := 0
		if f == Thumb {
			offset = 1
		}
		start := points[chain[offset]]
		mid := points[chain[offset+2]]
		end := points[chain[4]]

		pose[f] = FingerPose{
			Curl:      estimateCurl(start, mid, end),
			Direction: estimateDirection(start, end),
		}
	}
	return pose
}

// estimateCurl classifies the angle at mid between start and end.
func estimateCurl(start, mid, end detector.Point3D) Curl {
	startMid := start.Distance(mid)
	midEnd := mid.Distance(end)
	startEnd := start.Distance(end)

	if startMid == 0 || midEnd == 0 {
		return FullCurl
	}

	cos := (midEnd*midEnd + startMid*startMid - startEnd*startEnd) / (2 * midEnd * startMid)
	cos = math.Max(-1, math.Min(1, cos))
	angle := math.Acos(cos) * 180 / math.Pi

	switch {
	case angle > noCurlStartLimit:
		return NoCurl
	case angle > halfCurlStartLimit:
		return HalfCurl
	default:
		return FullCurl
	}
}

// estimateDirection buckets the start→end vector into one of eight 45° sectors.
// Image Y grows downward, so it is flipped to make "up" positive.
func estimateDirection(start, end detector.Point3D) Direction {
	dx := end.X - start.X
	dy := start.Y - end.Y
	angle := math.Atan2(dy, dx) * 180 / math.Pi

	switch {
	case angle >= 67.5 && angle < 112.5:
		return VerticalUp
	case angle >= 22.5 && angle < 67.5:
		return DiagonalUpRight
	case angle >= -22.5 && angle < 22.5:
		return HorizontalRight
	case angle >= -67.5 && angle < -22.5:
		return DiagonalDownRight
	case angle >= -112.5 && angle < -67.5:
		return VerticalDown
	case angle >= -157.5 && angle < -112.5:
		return DiagonalDownLeft
	case angle >= 112.5 && angle < 157.5:
		return DiagonalUpLeft
	default:
		return HorizontalLeft
	}
}
