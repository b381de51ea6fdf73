// Package detector provides the hand pose estimator contract and its landmark types.
package detector

import "math"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Handedness labels reported by the estimator.
const (
	HandLeft  = "Left"
	HandRight = "Right"
)

// Point3D represents a 3D point in space with x, y, z coordinates.
// X and Y follow image convention: Y grows downward.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the Euclidean distance between p and q.
func (p Point3D) Distance(q Point3D) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// HandLandmarks is one estimated hand: 21 landmarks plus handedness.
// A HandLandmarks value lives for a single classifier tick.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
	Timestamp  int64                 `json:"timestamp"` // Unix milliseconds
}

// IsLeft reports whether the hand was labeled as a left hand.
func (h *HandLandmarks) IsLeft() bool {
	return h != nil && h.Handedness == HandLeft
}
