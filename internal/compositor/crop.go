// Package compositor flattens the camera frame and the AR render into one snapshot.
package compositor

import (
	"errors"
	"image"
	"math"
)

// ErrInvalidDimensions is returned for zero or negative frame or viewport sizes.
var ErrInvalidDimensions = errors.New("invalid dimensions")

// Viewport is the on-screen area the snapshot must match.
type Viewport struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	DPR    float64 `json:"dpr"`
}

// SurfaceSize returns the snapshot size in device pixels. A non-positive
// DPR counts as 1.
func (v Viewport) SurfaceSize() (int, int) {
	dpr := v.DPR
	if dpr <= 0 {
		dpr = 1
	}
	return int(math.Round(float64(v.Width) * dpr)), int(math.Round(float64(v.Height) * dpr))
}

// Rect is a crop window in source pixels.
type Rect struct {
	X, Y, W, H float64
}

// CropRect returns the largest window of a videoW×videoH frame, centered,
// whose aspect ratio matches viewW×viewH. Wider video loses its sides,
// taller video loses top and bottom.
func CropRect(videoW, videoH, viewW, viewH int) (Rect, error) {
	if videoW <= 0 || videoH <= 0 || viewW <= 0 || viewH <= 0 {
		return Rect{}, ErrInvalidDimensions
	}
	vw, vh := float64(videoW), float64(videoH)
	deviceAspect := float64(viewW) / float64(viewH)
	videoAspect := vw / vh

	if videoAspect > deviceAspect {
		w := vh * deviceAspect
		return Rect{X: (vw - w) / 2, Y: 0, W: w, H: vh}, nil
	}
	h := vw / deviceAspect
	return Rect{X: 0, Y: (vh - h) / 2, W: vw, H: h}, nil
}

// Rectangle rounds r to whole pixels inside a maxW×maxH frame. The result
// is never empty for a non-empty frame.
func (r Rect) Rectangle(maxW, maxH int) image.Rectangle {
	x0 := clampInt(int(math.Round(r.X)), 0, maxW-1)
	y0 := clampInt(int(math.Round(r.Y)), 0, maxH-1)
	x1 := clampInt(int(math.Round(r.X+r.W)), x0+1, maxW)
	y1 := clampInt(int(math.Round(r.Y+r.H)), y0+1, maxH)
	return image.Rect(x0, y0, x1, y1)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
