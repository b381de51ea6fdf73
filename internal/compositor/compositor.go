package compositor

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/ayusman/arstage/internal/render"
)

var (
	// ErrCaptureFailed wraps any failure inside a capture.
	ErrCaptureFailed = errors.New("capture failed")
	// ErrCaptureInFlight is returned when a capture is already running.
	ErrCaptureInFlight = errors.New("capture already in progress")
)

// RenderFunc draws the current scene into the renderer once.
type RenderFunc func() error

// Compositor takes snapshots of the camera frame with the AR render on top.
// It borrows the renderer for one extra frame per capture, so it must be
// called from the goroutine that owns the renderer.
type Compositor struct {
	renderer render.Renderer
	render   RenderFunc
	inFlight atomic.Bool
	logger   *slog.Logger
}

// New creates a compositor drawing frames with fn on r.
func New(r render.Renderer, fn RenderFunc, logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compositor{renderer: r, render: fn, logger: logger}
}

// InFlight reports whether a capture is running.
func (c *Compositor) InFlight() bool { return c.inFlight.Load() }

// Capture crops video to the viewport aspect ratio, scales it to the
// viewport's device-pixel size and draws a fresh render over it wherever
// the render has coverage. The returned BGR Mat is owned by the caller.
func (c *Compositor) Capture(video gocv.Mat, vp Viewport) (out gocv.Mat, err error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return gocv.NewMat(), ErrCaptureInFlight
	}
	defer c.inFlight.Store(false)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("capture panicked", "panic", r)
			out = gocv.NewMat()
			err = fmt.Errorf("%w: panic: %v", ErrCaptureFailed, r)
		}
	}()

	out, err = c.capture(video, vp)
	if err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	return out, nil
}

func (c *Compositor) capture(video gocv.Mat, vp Viewport) (gocv.Mat, error) {
	surface := gocv.NewMat()
	if video.Empty() {
		return surface, errors.New("empty video frame")
	}

	crop, err := CropRect(video.Cols(), video.Rows(), vp.Width, vp.Height)
	if err != nil {
		return surface, err
	}
	sw, sh := vp.SurfaceSize()
	if sw <= 0 || sh <= 0 {
		return surface, ErrInvalidDimensions
	}

	region := video.Region(crop.Rectangle(video.Cols(), video.Rows()))
	defer region.Close()
	gocv.Resize(region, &surface, image.Pt(sw, sh), 0, 0, gocv.InterpolationLinear)
	if surface.Channels() == 4 {
		gocv.CvtColor(surface, &surface, gocv.ColorBGRAToBGR)
	}

	pixels := gocv.NewMat()
	defer func() { pixels.Close() }()
	err = withPreservedBuffer(c.renderer, func() error {
		if err := c.render(); err != nil {
			return fmt.Errorf("render: %w", err)
		}
		p, err := c.renderer.ReadPixels()
		if err != nil {
			p.Close()
			return fmt.Errorf("read pixels: %w", err)
		}
		pixels.Close()
		pixels = p
		return nil
	})
	if err != nil {
		return surface, err
	}

	if err := overdraw(&surface, pixels); err != nil {
		return surface, err
	}
	return surface, nil
}

// overdraw copies render pixels onto surface wherever their alpha is non-zero.
func overdraw(surface *gocv.Mat, pixels gocv.Mat) error {
	if pixels.Empty() {
		return nil
	}
	if pixels.Channels() != 4 {
		return fmt.Errorf("render has %d channels, want 4", pixels.Channels())
	}

	scaled := pixels
	if pixels.Cols() != surface.Cols() || pixels.Rows() != surface.Rows() {
		scaled = gocv.NewMat()
		defer scaled.Close()
		gocv.Resize(pixels, &scaled, image.Pt(surface.Cols(), surface.Rows()), 0, 0, gocv.InterpolationNearestNeighbor)
	}

	channels := gocv.Split(scaled)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(channels[3], &mask, 0, 255, gocv.ThresholdBinary)

	color := gocv.NewMat()
	defer color.Close()
	gocv.CvtColor(scaled, &color, gocv.ColorBGRAToBGR)
	color.CopyToWithMask(surface, mask)
	return nil
}

// withPreservedBuffer runs fn with drawing-buffer preservation enabled and
// restores the previous setting on every exit path, panics included.
func withPreservedBuffer(r render.Renderer, fn func() error) error {
	prev := r.PreserveDrawingBuffer()
	r.SetPreserveDrawingBuffer(true)
	defer r.SetPreserveDrawingBuffer(prev)
	return fn()
}
