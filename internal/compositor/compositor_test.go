package compositor

import (
	"errors"
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/arstage/internal/render"
	"github.com/ayusman/arstage/internal/scene"
)

func TestCropRectPortraitVideoOnLandscapeViewport(t *testing.T) {
	r, err := CropRect(1440, 2160, 1920, 1080)
	require.NoError(t, err)

	assert.InDelta(t, 0, r.X, 1e-9)
	assert.InDelta(t, 1440, r.W, 1e-9)
	assert.InDelta(t, 810, r.H, 1e-9)
	assert.InDelta(t, 675, r.Y, 1e-9)
}

func TestCropRectWideVideo(t *testing.T) {
	r, err := CropRect(1920, 1080, 1080, 1920)
	require.NoError(t, err)

	assert.InDelta(t, 1080, r.H, 1e-9)
	assert.InDelta(t, 1080*1080.0/1920, r.W, 1e-9)
	assert.InDelta(t, (1920-r.W)/2, r.X, 1e-9)
	assert.Equal(t, 0.0, r.Y)
}

func TestCropRectInvalid(t *testing.T) {
	for _, dims := range [][4]int{{0, 10, 10, 10}, {10, -1, 10, 10}, {10, 10, 0, 10}, {10, 10, 10, 0}} {
		_, err := CropRect(dims[0], dims[1], dims[2], dims[3])
		assert.ErrorIs(t, err, ErrInvalidDimensions, "%v", dims)
	}
}

func TestCropRectProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for range 1000 {
		vw, vh := 1+rng.IntN(4000), 1+rng.IntN(4000)
		w, h := 1+rng.IntN(3000), 1+rng.IntN(3000)

		r, err := CropRect(vw, vh, w, h)
		require.NoError(t, err)

		const eps = 1e-6
		assert.GreaterOrEqual(t, r.X, -eps)
		assert.GreaterOrEqual(t, r.Y, -eps)
		assert.LessOrEqual(t, r.X+r.W, float64(vw)+eps)
		assert.LessOrEqual(t, r.Y+r.H, float64(vh)+eps)
		assert.InDelta(t, float64(w)/float64(h), r.W/r.H, 1e-9*math.Max(1, float64(w)/float64(h)))

		rect := r.Rectangle(vw, vh)
		assert.False(t, rect.Empty())
		assert.True(t, rect.In(image.Rect(0, 0, vw, vh)))
	}
}

func TestSurfaceSize(t *testing.T) {
	w, h := Viewport{Width: 390, Height: 844, DPR: 3}.SurfaceSize()
	assert.Equal(t, 1170, w)
	assert.Equal(t, 2532, h)

	w, h = Viewport{Width: 100, Height: 50}.SurfaceSize()
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)

	w, _ = Viewport{Width: 101, Height: 50, DPR: 1.5}.SurfaceSize()
	assert.Equal(t, 152, w)
}

// fakeRenderer records the preservation flag seen by each render.
type fakeRenderer struct {
	preserve   bool
	seen       []bool
	w, h       int
	panicOnRun bool
}

func (f *fakeRenderer) Render(*scene.Graph, scene.Camera) error { return nil }
func (f *fakeRenderer) PreserveDrawingBuffer() bool             { return f.preserve }
func (f *fakeRenderer) SetPreserveDrawingBuffer(p bool)         { f.preserve = p }
func (f *fakeRenderer) Size() (int, int)                        { return f.w, f.h }
func (f *fakeRenderer) Resize(w, h int)                         { f.w, f.h = w, h }
func (f *fakeRenderer) Close() error                            { return nil }
func (f *fakeRenderer) Frame() (gocv.Mat, error)                { return f.ReadPixels() }

// ReadPixels returns a transparent buffer with an opaque red square in the top-left quarter.
func (f *fakeRenderer) ReadPixels() (gocv.Mat, error) {
	m := gocv.NewMatWithSize(f.h, f.w, gocv.MatTypeCV8UC4)
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.Rectangle(&m, image.Rect(0, 0, f.w/2, f.h/2), color.RGBA{R: 255, A: 255}, -1)
	return m, nil
}

func (f *fakeRenderer) draw() error {
	f.seen = append(f.seen, f.preserve)
	if f.panicOnRun {
		panic("gpu lost")
	}
	return nil
}

func blueVideo(w, h int) gocv.Mat {
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(255, 0, 0, 0))
	return m
}

func TestCaptureComposesRenderOverVideo(t *testing.T) {
	r := &fakeRenderer{w: 100, h: 100}
	c := New(r, r.draw, nil)

	video := blueVideo(200, 100)
	defer video.Close()

	out, err := c.Capture(video, Viewport{Width: 100, Height: 100, DPR: 2})
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 200, out.Cols())
	assert.Equal(t, 200, out.Rows())
	assert.Equal(t, 3, out.Channels())

	assert.Equal(t, []bool{true}, r.seen, "render runs with preservation on")
	assert.False(t, r.PreserveDrawingBuffer(), "flag restored")
	assert.False(t, c.InFlight())

	red := out.GetVecbAt(10, 10)
	assert.Equal(t, []uint8{0, 0, 255}, []uint8(red))
	blue := out.GetVecbAt(150, 150)
	assert.Equal(t, []uint8{255, 0, 0}, []uint8(blue))
}

func TestCaptureKeepsPreviousFlag(t *testing.T) {
	r := &fakeRenderer{w: 10, h: 10, preserve: true}
	c := New(r, r.draw, nil)
	video := blueVideo(10, 10)
	defer video.Close()

	out, err := c.Capture(video, Viewport{Width: 10, Height: 10, DPR: 1})
	require.NoError(t, err)
	out.Close()
	assert.True(t, r.PreserveDrawingBuffer())
}

func TestCaptureRecoversPanic(t *testing.T) {
	r := &fakeRenderer{w: 10, h: 10, panicOnRun: true}
	c := New(r, r.draw, nil)
	video := blueVideo(10, 10)
	defer video.Close()

	_, err := c.Capture(video, Viewport{Width: 10, Height: 10, DPR: 1})
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.False(t, r.PreserveDrawingBuffer(), "flag restored after panic")
	assert.False(t, c.InFlight())

	r.panicOnRun = false
	out, err := c.Capture(video, Viewport{Width: 10, Height: 10, DPR: 1})
	require.NoError(t, err)
	out.Close()
}

func TestCaptureRenderError(t *testing.T) {
	r := &fakeRenderer{w: 10, h: 10}
	boom := errors.New("context lost")
	c := New(r, func() error { return boom }, nil)
	video := blueVideo(10, 10)
	defer video.Close()

	_, err := c.Capture(video, Viewport{Width: 10, Height: 10, DPR: 1})
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.ErrorIs(t, err, boom)
	assert.False(t, r.PreserveDrawingBuffer())
}

func TestCaptureRejectsConcurrent(t *testing.T) {
	r := &fakeRenderer{w: 10, h: 10}
	video := blueVideo(10, 10)
	defer video.Close()

	var c *Compositor
	var nested error
	c = New(r, func() error {
		_, nested = c.Capture(video, Viewport{Width: 10, Height: 10, DPR: 1})
		return nil
	}, nil)

	out, err := c.Capture(video, Viewport{Width: 10, Height: 10, DPR: 1})
	require.NoError(t, err)
	out.Close()
	assert.ErrorIs(t, nested, ErrCaptureInFlight)
}

func TestCaptureInvalidInput(t *testing.T) {
	r := &fakeRenderer{w: 10, h: 10}
	c := New(r, r.draw, nil)

	empty := gocv.NewMat()
	defer empty.Close()
	_, err := c.Capture(empty, Viewport{Width: 10, Height: 10, DPR: 1})
	assert.ErrorIs(t, err, ErrCaptureFailed)

	video := blueVideo(10, 10)
	defer video.Close()
	_, err = c.Capture(video, Viewport{Width: 0, Height: 10, DPR: 1})
	assert.ErrorIs(t, err, ErrInvalidDimensions)
	assert.Empty(t, r.seen)
}

func TestCaptureWithSoftwareRenderer(t *testing.T) {
	r := render.NewSoftwareRenderer(64, 64)
	defer r.Close()
	g := scene.NewGraph()
	g.Add(&scene.Object{Name: "dot", Position: scene.Vec3{Z: -5}, Scale: 1, Radius: 1, Visible: true, Opacity: 1, Color: color.RGBA{G: 255, A: 255}})
	c := New(r, func() error { return r.Render(g, scene.DefaultCamera()) }, nil)

	video := blueVideo(64, 64)
	defer video.Close()
	out, err := c.Capture(video, Viewport{Width: 64, Height: 64, DPR: 1})
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, uint8(255), out.GetVecbAt(32, 26)[1], "render drawn")
	assert.Equal(t, uint8(255), out.GetVecbAt(2, 2)[0], "video kept where render is empty")
	assert.False(t, r.PreserveDrawingBuffer())
}

func TestGallery(t *testing.T) {
	g := NewGallery(2)
	a := &Snapshot{ID: "a"}
	b := &Snapshot{ID: "b"}
	c := &Snapshot{ID: "c"}

	assert.Nil(t, g.Push(a))
	assert.Nil(t, g.Push(b))
	assert.Same(t, a, g.Push(c))

	list := g.List()
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	top, ok := g.Top()
	require.True(t, ok)
	assert.Equal(t, "c", top.ID)

	assert.True(t, g.Dismiss("c"))
	assert.False(t, g.Dismiss("c"))
	top, _ = g.Top()
	assert.Equal(t, "b", top.ID)

	_, ok = g.Get("a")
	assert.False(t, ok)

	g.Clear()
	assert.Equal(t, 0, g.Len())
	_, ok = g.Top()
	assert.False(t, ok)
}

func TestEncodeSnapshot(t *testing.T) {
	img := blueVideo(8, 4)
	defer img.Close()

	s, err := EncodeSnapshot(img)
	require.NoError(t, err)
	assert.Equal(t, 8, s.Width)
	assert.Equal(t, 4, s.Height)
	assert.NotEmpty(t, s.ID)
	require.Greater(t, len(s.PNG), 8)
	assert.Equal(t, []byte("\x89PNG"), s.PNG[:4])
}

func TestWithPreservedBufferRestoresOnPanic(t *testing.T) {
	r := &fakeRenderer{}
	assert.Panics(t, func() {
		_ = withPreservedBuffer(r, func() error {
			assert.True(t, r.PreserveDrawingBuffer())
			panic("x")
		})
	})
	assert.False(t, r.PreserveDrawingBuffer())
}
