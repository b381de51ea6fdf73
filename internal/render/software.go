package render

import (
	"image"
	"image/color"
	"math"
	"slices"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/arstage/internal/scene"
)

// SoftwareRenderer rasterizes the scene with OpenCV drawing primitives.
// Objects are drawn back to front as discs, rings, plane rectangles and
// particle dots; alpha carries coverage times opacity.
type SoftwareRenderer struct {
	back     gocv.Mat
	preserve bool
	width    int
	height   int
	renders  int

	// front is read from other goroutines (stream handlers).
	mu     sync.Mutex
	front  gocv.Mat
	closed bool
}

// NewSoftwareRenderer allocates a width×height render target.
func NewSoftwareRenderer(width, height int) *SoftwareRenderer {
	r := &SoftwareRenderer{}
	r.Resize(width, height)
	return r
}

// Size returns the render target size in pixels.
func (r *SoftwareRenderer) Size() (int, int) { return r.width, r.height }

// Renders returns how many frames have been presented.
func (r *SoftwareRenderer) Renders() int { return r.renders }

// Resize reallocates the render target. Contents are lost.
func (r *SoftwareRenderer) Resize(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.back.Empty() {
		r.back.Close()
	}
	if !r.front.Empty() {
		r.front.Close()
	}
	r.width, r.height = width, height
	r.back = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC4)
	r.front = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC4)
	r.back.SetTo(gocv.NewScalar(0, 0, 0, 0))
	r.front.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

// PreserveDrawingBuffer reports whether the buffer survives presentation.
func (r *SoftwareRenderer) PreserveDrawingBuffer() bool { return r.preserve }

// SetPreserveDrawingBuffer changes whether the buffer survives presentation.
func (r *SoftwareRenderer) SetPreserveDrawingBuffer(preserve bool) { r.preserve = preserve }

// Render clears the buffer, draws g as seen by cam and presents the result.
func (r *SoftwareRenderer) Render(g *scene.Graph, cam scene.Camera) error {
	if r.isClosed() {
		return ErrClosed
	}

	r.back.SetTo(gocv.NewScalar(0, 0, 0, 0))

	objects := g.Objects()
	slices.SortStableFunc(objects, func(a, b *scene.Object) int {
		switch {
		case a.Position.Z < b.Position.Z:
			return -1
		case a.Position.Z > b.Position.Z:
			return 1
		}
		return 0
	})
	for _, o := range objects {
		if !o.Visible || o.Opacity <= 0 {
			continue
		}
		r.draw(o, cam)
	}

	r.mu.Lock()
	r.back.CopyTo(&r.front)
	r.mu.Unlock()
	r.renders++

	if !r.preserve {
		r.back.SetTo(gocv.NewScalar(0, 0, 0, 0))
	}
	return nil
}

func (r *SoftwareRenderer) draw(o *scene.Object, cam scene.Camera) {
	c := o.Color
	c.A = uint8(math.Round(clamp01(o.Opacity) * 255))

	if o.Kind == scene.KindPoints {
		for _, p := range o.Points {
			x, y, ok := cam.Project(p.Add(o.Position), r.width, r.height)
			if !ok {
				continue
			}
			rad := max(1, int(cam.ProjectedRadius(p.Add(o.Position), o.Radius*o.Scale, r.height)))
			gocv.Circle(&r.back, image.Pt(int(x), int(y)), rad, c, -1)
		}
		return
	}

	x, y, ok := cam.Project(o.Position, r.width, r.height)
	if !ok {
		return
	}
	rad := int(cam.ProjectedRadius(o.Position, o.Radius*o.Scale, r.height))
	if rad < 1 {
		return
	}
	center := image.Pt(int(x), int(y))

	switch o.Kind {
	case scene.KindRing:
		gocv.Circle(&r.back, center, rad, c, max(2, rad/4))
	case scene.KindPlane:
		rect := image.Rect(center.X-rad, center.Y-rad*2/3, center.X+rad, center.Y+rad*2/3)
		gocv.Rectangle(&r.back, rect, c, -1)
	default:
		gocv.Circle(&r.back, center, rad, c, -1)
		// Rotation marker so spin and sway are visible.
		tip := image.Pt(
			center.X+int(float64(rad)*math.Cos(o.Rotation.Y)),
			center.Y+int(float64(rad)*math.Sin(o.Rotation.Y)*math.Cos(o.Rotation.X)),
		)
		gocv.Line(&r.back, center, tip, color.RGBA{R: 255, G: 255, B: 255, A: c.A}, max(1, rad/10))
	}

	if o.Label != "" {
		org := image.Pt(center.X+rad+4, center.Y)
		gocv.PutText(&r.back, o.Label, org, gocv.FontHersheySimplex, 0.6, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 2)
	}
}

// ReadPixels returns a copy of the drawing buffer.
func (r *SoftwareRenderer) ReadPixels() (gocv.Mat, error) {
	if r.isClosed() {
		return gocv.NewMat(), ErrClosed
	}
	return r.back.Clone(), nil
}

// Frame returns a copy of the last presented frame.
func (r *SoftwareRenderer) Frame() (gocv.Mat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return gocv.NewMat(), ErrClosed
	}
	return r.front.Clone(), nil
}

// Close releases the render target.
func (r *SoftwareRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.back.Close()
	r.front.Close()
	return nil
}

func (r *SoftwareRenderer) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
