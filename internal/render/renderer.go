// Package render draws the scene graph into a BGRA render target.
package render

import (
	"errors"

	"gocv.io/x/gocv"

	"github.com/ayusman/arstage/internal/scene"
)

// ErrClosed is returned by a renderer after Close.
var ErrClosed = errors.New("renderer is closed")

// Renderer is the render target shared by the render loop and the compositor.
//
// After every Render the drawing buffer is presented. Unless preservation is
// enabled, the buffer is then discarded, so ReadPixels returns a blank image.
type Renderer interface {
	Render(g *scene.Graph, cam scene.Camera) error
	PreserveDrawingBuffer() bool
	SetPreserveDrawingBuffer(preserve bool)
	// ReadPixels returns a BGRA copy of the drawing buffer. The caller owns it.
	ReadPixels() (gocv.Mat, error)
	// Frame returns a BGRA copy of the last presented frame. The caller owns it.
	Frame() (gocv.Mat, error)
	Size() (width, height int)
	Resize(width, height int)
	Close() error
}
