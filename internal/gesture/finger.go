// Package gesture scores hand landmarks against declarative gesture descriptions.
//
// A description lists, per finger, the curls and pointing directions it
// accepts together with a confidence weight for each. A hand is reduced to
// one curl and one direction per finger, and each description is scored
// on a 0..10 scale.
package gesture

import (
	"fmt"

	"github.com/ayusman/arstage/internal/detector"
)

// Finger identifies one finger of a hand.
type Finger int

const (
	Thumb Finger = iota
	Index
	Middle
	Ring
	Pinky
	// NumFingers is the number of fingers on a hand.
	NumFingers = 5
)

var fingerNames = [NumFingers]string{"thumb", "index", "middle", "ring", "pinky"}

// chains holds the landmark indices of each finger, starting at the wrist.
var chains = [NumFingers][5]int{
	{detector.Wrist, detector.ThumbCMC, detector.ThumbMCP, detector.ThumbIP, detector.ThumbTip},
	{detector.Wrist, detector.IndexMCP, detector.IndexPIP, detector.IndexDIP, detector.IndexTip},
	{detector.Wrist, detector.MiddleMCP, detector.MiddlePIP, detector.MiddleDIP, detector.MiddleTip},
	{detector.Wrist, detector.RingMCP, detector.RingPIP, detector.RingDIP, detector.RingTip},
	{detector.Wrist, detector.PinkyMCP, detector.PinkyPIP, detector.PinkyDIP, detector.PinkyTip},
}

func (f Finger) String() string {
	if f < 0 || int(f) >= NumFingers {
		return fmt.Sprintf("finger(%d)", int(f))
	}
	return fingerNames[f]
}

// MarshalText implements encoding.TextMarshaler.
func (f Finger) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= NumFingers {
		return nil, fmt.Errorf("invalid finger %d", int(f))
	}
	return []byte(fingerNames[f]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Finger) UnmarshalText(text []byte) error {
	for i, name := range fingerNames {
		if name == string(text) {
			*f = Finger(i)
			return nil
		}
	}
	return fmt.Errorf("unknown finger %q", text)
}

// Curl is how far a finger is bent.
type Curl int

const (
	NoCurl Curl = iota
	HalfCurl
	FullCurl
)

var curlNames = []string{"no_curl", "half_curl", "full_curl"}

func (c Curl) String() string {
	if c < 0 || int(c) >= len(curlNames) {
		return fmt.Sprintf("curl(%d)", int(c))
	}
	return curlNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Curl) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(curlNames) {
		return nil, fmt.Errorf("invalid curl %d", int(c))
	}
	return []byte(curlNames[c]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Curl) UnmarshalText(text []byte) error {
	for i, name := range curlNames {
		if name == string(text) {
			*c = Curl(i)
			return nil
		}
	}
	return fmt.Errorf("unknown curl %q", text)
}

// Direction is where a finger points, as seen in the image plane.
type Direction int

const (
	VerticalUp Direction = iota
	VerticalDown
	HorizontalLeft
	HorizontalRight
	DiagonalUpRight
	DiagonalUpLeft
	DiagonalDownRight
	DiagonalDownLeft
)

var directionNames = []string{
	"vertical_up", "vertical_down", "horizontal_left", "horizontal_right",
	"diagonal_up_right", "diagonal_up_left", "diagonal_down_right", "diagonal_down_left",
}

func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	if d < 0 || int(d) >= len(directionNames) {
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
	return []byte(directionNames[d]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	for i, name := range directionNames {
		if name == string(text) {
			*d = Direction(i)
			return nil
		}
	}
	return fmt.Errorf("unknown direction %q", text)
}
