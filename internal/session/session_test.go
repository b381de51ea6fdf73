package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/arstage/internal/capture"
	"github.com/ayusman/arstage/internal/classifier"
	"github.com/ayusman/arstage/internal/compositor"
	"github.com/ayusman/arstage/internal/detector"
	"github.com/ayusman/arstage/internal/gesture"
	"github.com/ayusman/arstage/internal/render"
	"github.com/ayusman/arstage/internal/scene"
	"github.com/ayusman/arstage/internal/store"
	"github.com/ayusman/arstage/internal/tracker"
)

const (
	wait = 3 * time.Second
	poll = 5 * time.Millisecond
)

// manualTracker fires marker events on demand.
type manualTracker struct {
	mu     sync.Mutex
	found  []tracker.EventFunc
	lost   []tracker.EventFunc
	resets int
}

func (m *manualTracker) AddAnchor(int, gocv.Mat) error { return nil }

func (m *manualTracker) OnFound(fn tracker.EventFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.found = append(m.found, fn)
}

func (m *manualTracker) OnLost(fn tracker.EventFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lost = append(m.lost, fn)
}

func (m *manualTracker) Run(ctx context.Context, _ capture.FrameSource) error {
	<-ctx.Done()
	return nil
}

func (m *manualTracker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
}

func (m *manualTracker) fireFound(id int) {
	m.mu.Lock()
	fns := append([]tracker.EventFunc(nil), m.found...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

func (m *manualTracker) fireLost(id int) {
	m.mu.Lock()
	fns := append([]tracker.EventFunc(nil), m.lost...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

type harness struct {
	s       *Session
	camera  *capture.MockCamera
	det     *detector.MockDetector
	tracker *manualTracker
	frame   gocv.Mat
}

func newHarness(t *testing.T, tweak func(*Config)) *harness {
	t.Helper()

	h := &harness{
		det:     detector.NewMockDetector(),
		tracker: &manualTracker{},
		frame:   gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3),
	}
	h.frame.SetTo(gocv.NewScalar(40, 80, 120, 0))
	h.camera = capture.NewMockCamera([]*gocv.Mat{&h.frame}, true)
	h.camera.SetFPS(100)

	cfg := Config{
		Camera:    h.camera,
		Detector:  h.det,
		Tracker:   h.tracker,
		Renderer:  render.NewSoftwareRenderer(320, 240),
		RefreshHz: 200,
		Viewport:  compositor.Viewport{Width: 320, Height: 240, DPR: 1},
	}
	if tweak != nil {
		tweak(&cfg)
	}

	s, err := New(cfg)
	require.NoError(t, err)
	h.s = s
	t.Cleanup(func() {
		s.Close()
		h.frame.Close()
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.s.Start(context.Background()))
}

func (h *harness) status(t *testing.T) Status {
	t.Helper()
	st, err := h.s.Status(context.Background())
	require.NoError(t, err)
	return st
}

func TestNewRequiresCameraAndDetector(t *testing.T) {
	_, err := New(Config{Detector: detector.NewMockDetector()})
	assert.Error(t, err)
	_, err = New(Config{Camera: capture.NewMockCamera(nil, false)})
	assert.Error(t, err)
}

func TestStartReportsAcquisitionFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.camera.SetOpenError(errors.New("permission denied"))

	err := h.s.Start(context.Background())
	var acq *capture.AcquisitionError
	require.ErrorAs(t, err, &acq)
	assert.False(t, h.s.Running())
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	require.NoError(t, h.s.Start(context.Background()), "second start is a no-op")
	assert.True(t, h.s.Running())

	require.Eventually(t, func() bool { return h.status(t).Renders > 3 }, wait, poll)

	require.NoError(t, h.s.Stop())
	require.NoError(t, h.s.Stop())
	assert.False(t, h.s.Running())
	assert.False(t, h.camera.IsOpen())
}

func TestMarkerRevealsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	st := h.status(t)
	assert.True(t, st.Scanning)
	assert.False(t, st.MarkerRevealed)

	for range 5 {
		h.tracker.fireFound(0)
		h.tracker.fireLost(0)
	}
	h.tracker.fireFound(0)

	st = h.status(t)
	assert.False(t, st.Scanning)
	assert.True(t, st.MarkerRevealed)

	var gifts int
	require.NoError(t, h.s.Do(context.Background(), func() {
		for _, o := range h.s.stage.Graph.Objects() {
			if o.Name == scene.ObjectGift {
				gifts++
			}
		}
	}))
	assert.Equal(t, 1, gifts)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.s.Metrics().MarkerReveals.WithLabelValues("0")))
}

func TestUnknownMarkerIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.tracker.fireFound(42)
	st := h.status(t)
	assert.True(t, st.Scanning)
	assert.False(t, st.MarkerRevealed)
}

func TestVictoryJumpsThenFallsBackToWalk(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	assert.Equal(t, classifier.ClipWalk, h.status(t).ActiveClip)

	h.det.SetHands([]detector.HandLandmarks{detector.VictoryLandmarks()})
	require.Eventually(t, func() bool { return h.status(t).ActiveClip == classifier.ClipJump }, wait, poll)
	assert.Equal(t, gesture.NameVictory, h.s.LastGesture())

	// No more hands: the jump plays out and the actor walks again on its own.
	h.det.SetHands(nil)
	require.Eventually(t, func() bool { return h.status(t).ActiveClip == classifier.ClipWalk }, wait, poll)
	assert.Equal(t, 1, h.det.MaxInFlight())
	assert.True(t, h.det.LastOptions().FlipHorizontal)
}

func TestThumbsUpHidesOverlay(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	require.NoError(t, h.s.Do(context.Background(), func() { h.s.stage.ShowOverlay() }))
	require.True(t, h.status(t).OverlayVisible)

	h.det.SetHands([]detector.HandLandmarks{detector.ThumbsUpLandmarks()})
	require.Eventually(t, func() bool { return !h.status(t).OverlayVisible }, wait, poll)
}

func TestTapOpensGiftAndUnlocksOverlay(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	res, err := h.s.Tap(context.Background(), 0.5, 0.59)
	require.NoError(t, err)
	assert.False(t, res.Hit, "nothing to tap before the marker is found")

	h.tracker.fireFound(0)
	res, err = h.s.Tap(context.Background(), 0.5, 0.59)
	require.NoError(t, err)
	assert.True(t, res.Hit)
	assert.Equal(t, scene.ObjectGift, res.Object)
	assert.True(t, res.GiftOpened)

	require.Eventually(t, func() bool { return h.status(t).OverlayUnlocked }, wait, poll)

	_, err = h.s.Tap(context.Background(), 1.5, 0)
	assert.Error(t, err)
}

func TestGesturesToggle(t *testing.T) {
	h := newHarness(t, nil)
	h.det.SetHands([]detector.HandLandmarks{detector.OpenPalmLandmarks()})
	h.s.SetGesturesEnabled(false)
	h.start(t)

	require.Eventually(t, func() bool { return h.status(t).Renders > 10 }, wait, poll)
	assert.Zero(t, h.det.Calls())
	assert.False(t, h.status(t).GesturesEnabled)

	h.s.SetGesturesEnabled(true)
	require.Eventually(t, func() bool { return h.det.Calls() > 0 }, wait, poll)
}

func TestCapture(t *testing.T) {
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := newHarness(t, func(c *Config) {
		c.Store = st
		c.CapturesDir = filepath.Join(dir, "captures")
	})

	_, err = h.s.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)

	h.start(t)
	require.Eventually(t, func() bool { return h.s.Feed().Seq() > 0 }, wait, poll)

	snap, err := h.s.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 320, snap.Width)
	assert.Equal(t, 240, snap.Height)
	assert.NotEmpty(t, snap.PNG)
	assert.Equal(t, 1, h.s.Gallery().Len())
	assert.False(t, h.s.CaptureInFlight())

	_, err = os.Stat(filepath.Join(dir, "captures", snap.ID+".png"))
	assert.NoError(t, err)
	rec, err := st.Captures().GetByID(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, h.status(t).ID, rec.SessionID)

	assert.True(t, h.s.DismissSnapshot(snap.ID))
	assert.Zero(t, h.s.Gallery().Len())
}

func TestCaptureRejectedWhileInFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.s.capturing.Store(true)
	_, err := h.s.Capture(context.Background())
	assert.ErrorIs(t, err, compositor.ErrCaptureInFlight)
	h.s.capturing.Store(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.s.Metrics().Captures.WithLabelValues("rejected")))
}

func TestRestart(t *testing.T) {
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := newHarness(t, func(c *Config) { c.Store = st })
	h.start(t)
	first := h.status(t).ID

	h.tracker.fireFound(0)
	_, err = h.s.Tap(context.Background(), 0.5, 0.59)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.status(t).OverlayUnlocked }, wait, poll)

	require.NoError(t, h.s.Restart(context.Background()))

	status := h.status(t)
	assert.True(t, status.Scanning)
	assert.False(t, status.MarkerRevealed)
	assert.False(t, status.GiftOpened)
	assert.False(t, status.OverlayUnlocked)
	assert.Equal(t, classifier.ClipWalk, status.ActiveClip)
	assert.NotEqual(t, first, status.ID)
	assert.Equal(t, 1, h.tracker.resets)

	// The latch is armed again.
	h.tracker.fireFound(0)
	assert.True(t, h.status(t).MarkerRevealed)

	sessions, err := st.Sessions().List(0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	old, err := st.Sessions().GetByID(first)
	require.NoError(t, err)
	assert.NotNil(t, old.EndedAt)
	assert.NotNil(t, old.RevealedAt)
}

func TestRestartWhileStopped(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.s.Restart(context.Background()))
	st := h.status(t)
	assert.False(t, st.Running)
	assert.True(t, st.Scanning)
}

func TestEvents(t *testing.T) {
	h := newHarness(t, nil)
	events, cancel := h.s.Subscribe(32)
	defer cancel()

	h.start(t)
	h.tracker.fireFound(0)

	seen := map[string]bool{}
	timeout := time.After(wait)
	for !seen[EventMarkerRevealed] {
		select {
		case e := <-events:
			seen[e.Type] = true
		case <-timeout:
			t.Fatalf("no reveal event, saw %v", seen)
		}
	}
	assert.True(t, seen[EventStarted])
	assert.True(t, seen[EventMarkerFound])
}

func TestDoRecoversPanics(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	err := h.s.Do(context.Background(), func() { panic("boom") })
	assert.ErrorContains(t, err, "boom")

	before := h.status(t).Renders
	require.Eventually(t, func() bool { return h.status(t).Renders > before }, wait, poll)
}

func TestGestureSettingPersists(t *testing.T) {
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := newHarness(t, func(c *Config) { c.Store = st })
	h.s.SetGesturesEnabled(false)

	again := newHarness(t, func(c *Config) { c.Store = st })
	assert.False(t, again.s.GesturesEnabled())
}
