// Package session runs one AR session: it binds the camera feed, the marker
// tracker and the hand estimator to the stage, and owns the render loop.
//
// All scene state (graph, effects, blender, flags, renderer) belongs to a
// single goroutine. Other goroutines change it by passing closures to Do.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/arstage/internal/animation"
	"github.com/ayusman/arstage/internal/capture"
	"github.com/ayusman/arstage/internal/classifier"
	"github.com/ayusman/arstage/internal/compositor"
	"github.com/ayusman/arstage/internal/detector"
	"github.com/ayusman/arstage/internal/gesture"
	"github.com/ayusman/arstage/internal/metrics"
	"github.com/ayusman/arstage/internal/render"
	"github.com/ayusman/arstage/internal/scene"
	"github.com/ayusman/arstage/internal/store"
	"github.com/ayusman/arstage/internal/tracker"
)

// DefaultRefreshHz is the render rate when none is configured.
const DefaultRefreshHz = 60

// ErrNotRunning is returned by operations that need a started session.
var ErrNotRunning = errors.New("session is not running")

// Config wires a Session. Camera and Detector are required.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	// Tracker reports the marker. Without one the gift never appears.
	Tracker tracker.Tracker
	// Renderer is owned by the session. Nil creates a software renderer.
	Renderer render.Renderer

	// Library is the gesture library. Empty falls back to the stored
	// library, then to the built-in one.
	Library  []*gesture.Description
	MinScore float64
	// Clips are the actor's animations. Empty uses DefaultClips.
	Clips []animation.Clip

	Stage     scene.StageConfig
	RefreshHz int
	// Viewport is the capture surface. Zero uses the renderer size at DPR 1.
	Viewport     compositor.Viewport
	GalleryDepth int
	// CapturesDir receives snapshot PNGs. Empty keeps them in memory only.
	CapturesDir string

	Store   *store.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Now is the render clock source, for tests.
	Now func() time.Time
}

// DefaultClips returns the actor animations: a walk loop and a jump that
// falls back to walking when it ends.
func DefaultClips() []animation.Clip {
	return []animation.Clip{
		{Name: classifier.ClipWalk, Duration: 1.2, Loop: animation.LoopRepeat},
		{Name: classifier.ClipJump, Duration: 1.0, Loop: animation.LoopOnce, Fallback: classifier.ClipWalk, FallbackFade: classifier.FadeDuration},
	}
}

// Status is a snapshot of the session state.
type Status struct {
	ID              string    `json:"id"`
	Running         bool      `json:"running"`
	StartedAt       time.Time `json:"started_at,omitzero"`
	Scanning        bool      `json:"scanning"`
	MarkerRevealed  bool      `json:"marker_revealed"`
	GiftOpened      bool      `json:"gift_opened"`
	OverlayUnlocked bool      `json:"overlay_unlocked"`
	OverlayVisible  bool      `json:"overlay_visible"`
	ActiveClip      string    `json:"active_clip"`
	GesturesEnabled bool      `json:"gestures_enabled"`
	LastGesture     string    `json:"last_gesture,omitempty"`
	Snapshots       int       `json:"snapshots"`
	CaptureInFlight bool      `json:"capture_in_flight"`
	Renders         int       `json:"renders,omitempty"`
}

// run is the state of one Start..Stop cycle.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan func()
	done   chan struct{}
	wg     sync.WaitGroup
}

// Session is one AR session.
type Session struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	feed       *capture.Feed
	stage      *scene.Stage
	blender    *animation.Blender
	renderer   render.Renderer
	clock      *render.Clock
	comp       *compositor.Compositor
	gallery    *compositor.Gallery
	classifier *classifier.Loop
	initial    string

	// lifeMu serializes Start, Stop and Restart.
	lifeMu sync.Mutex
	// idleMu owns the scene while no loop runs.
	idleMu sync.Mutex
	// mu guards the fields below it.
	mu        sync.Mutex
	run       *run
	id        string
	startedAt time.Time

	frameMu sync.Mutex
	frameCh chan struct{}

	capturing   atomic.Bool
	lastGesture atomic.Value // string
	events      bus
}

// New builds the stage, blender, compositor and classifier. Nothing runs until Start.
func New(cfg Config) (*Session, error) {
	if cfg.Camera == nil {
		return nil, errors.New("session: camera is required")
	}
	if cfg.Detector == nil {
		return nil, errors.New("session: detector is required")
	}
	if cfg.RefreshHz <= 0 {
		cfg.RefreshHz = DefaultRefreshHz
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Clips) == 0 {
		cfg.Clips = DefaultClips()
	}
	if cfg.Stage.SnowCount == 0 && cfg.Stage.Seed == 0 {
		cfg.Stage = scene.DefaultStageConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	s := &Session{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		frameCh: make(chan struct{}),
		initial: cfg.Clips[0].Name,
	}
	s.lastGesture.Store("")

	stage, err := scene.NewStage(cfg.Stage, logger.With("component", "stage"))
	if err != nil {
		return nil, err
	}
	s.stage = stage
	stage.Markers.OnReveal(s.onReveal)

	s.blender, err = animation.NewBlender(cfg.Clips, s.initial, logger.With("component", "blender"))
	if err != nil {
		return nil, err
	}
	stage.SetActorLabel(s.blender.Active())

	s.renderer = cfg.Renderer
	if s.renderer == nil {
		s.renderer = render.NewSoftwareRenderer(1280, 720)
	}
	s.clock = render.NewClock(cfg.Now)
	s.comp = compositor.New(s.renderer, s.renderScene, logger.With("component", "compositor"))
	s.gallery = compositor.NewGallery(cfg.GalleryDepth)
	s.feed = capture.NewFeed(cfg.Camera, logger.With("component", "feed"))

	library, err := s.loadLibrary()
	if err != nil {
		return nil, err
	}
	estimator, err := gesture.NewEstimator(library)
	if err != nil {
		return nil, fmt.Errorf("gesture library: %w", err)
	}
	s.classifier, err = classifier.New(classifier.Config{
		Detector:  cfg.Detector,
		Estimator: estimator,
		Frames:    s.feed,
		Scheduler: s,
		Executor:  s,
		Target:    classifier.Target{Actor: s.blender, Overlay: stage, State: stage.State},
		MinScore:  cfg.MinScore,
		Options:   detector.EstimateOptions{FlipHorizontal: true},
		OnMatch:   s.onMatch,
		Metrics:   m,
		Logger:    logger.With("component", "classifier"),
	})
	if err != nil {
		return nil, err
	}
	if cfg.Store != nil {
		s.classifier.SetEnabled(cfg.Store.Settings().Bool(store.SettingGesturesEnabled, true))
	}

	if cfg.Tracker != nil {
		cfg.Tracker.OnFound(s.onMarkerFound)
		cfg.Tracker.OnLost(s.onMarkerLost)
	}

	if cfg.CapturesDir != "" {
		if err := os.MkdirAll(cfg.CapturesDir, 0o755); err != nil {
			return nil, fmt.Errorf("create captures dir: %w", err)
		}
	}
	return s, nil
}

func (s *Session) loadLibrary() ([]*gesture.Description, error) {
	if len(s.cfg.Library) > 0 {
		return s.cfg.Library, nil
	}
	if s.cfg.Store != nil {
		lib, err := s.cfg.Store.Gestures().Library()
		if err != nil {
			return nil, fmt.Errorf("load stored gestures: %w", err)
		}
		if len(lib) > 0 {
			s.logger.Info("using stored gesture library", "gestures", len(lib))
			return lib, nil
		}
	}
	return gesture.DefaultLibrary(), nil
}

// Start opens the camera and starts the feed, tracker, classifier and
// render loop. It returns a *capture.AcquisitionError when the camera
// cannot be opened. The session runs until Stop or until ctx is done.
func (s *Session) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	running := s.run != nil
	s.mu.Unlock()
	if running {
		return nil
	}

	if err := s.cfg.Camera.Open(); err != nil {
		return err
	}

	rctx, cancel := context.WithCancel(ctx)
	r := &run{
		ctx:    rctx,
		cancel: cancel,
		tasks:  make(chan func()),
		done:   make(chan struct{}),
	}

	id := uuid.New().String()
	now := time.Now()
	s.idleMu.Lock()
	s.clock.Reset()
	s.mu.Lock()
	s.run = r
	s.id = id
	s.startedAt = now
	s.mu.Unlock()
	s.idleMu.Unlock()

	r.wg.Add(3)
	go func() {
		defer r.wg.Done()
		s.loop(r)
	}()
	go func() {
		defer r.wg.Done()
		if err := s.feed.Run(rctx); err != nil {
			s.logger.Error("camera feed stopped", "err", err)
		}
	}()
	go func() {
		defer r.wg.Done()
		if err := s.classifier.Run(rctx); err != nil {
			s.logger.Error("classifier stopped", "err", err)
		}
	}()
	if s.cfg.Tracker != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := s.cfg.Tracker.Run(rctx, s.feed); err != nil {
				s.logger.Warn("marker tracker stopped", "err", err)
			}
		}()
	}

	s.recordStart(id, now)
	s.logger.Info("session started", "session_id", id)
	s.publish(EventStarted, map[string]string{"id": id})
	return nil
}

// Stop halts every goroutine of the session and closes the camera.
func (s *Session) Stop() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	r, id := s.run, s.id
	s.mu.Unlock()
	if r == nil {
		return nil
	}

	r.cancel()
	r.wg.Wait()

	s.mu.Lock()
	s.run = nil
	s.mu.Unlock()

	err := s.cfg.Camera.Close()
	s.recordEnd(id)
	s.logger.Info("session stopped", "session_id", id)
	s.publish(EventStopped, map[string]string{"id": id})
	return err
}

// Restart returns the scene to a fresh session: the marker latch and all
// progress flags reset, the gift is back and the snapshot stack is empty.
func (s *Session) Restart(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	err := s.exec(ctx, func() {
		s.stage.Reset()
		if err := s.blender.Play(s.initial); err != nil {
			s.logger.Warn("reset actor clip", "err", err)
		}
		s.stage.SetActorLabel(s.blender.Active())
		s.clock.Reset()
	})
	if err != nil {
		return err
	}
	s.gallery.Clear()
	s.lastGesture.Store("")
	if rt, ok := s.cfg.Tracker.(interface{ Reset() }); ok {
		rt.Reset()
	}

	s.mu.Lock()
	prev, running := s.id, s.run != nil
	id := prev
	if running {
		id = uuid.New().String()
		s.id = id
		s.startedAt = time.Now()
	}
	at := s.startedAt
	s.mu.Unlock()

	if running {
		s.recordEnd(prev)
		s.recordStart(id, at)
	}
	s.logger.Info("session restarted", "session_id", id)
	s.publish(EventRestarted, map[string]string{"id": id, "previous": prev})
	return nil
}

// Close stops the session and releases the feed and renderer.
func (s *Session) Close() error {
	err := s.Stop()
	s.feed.Close()
	if cerr := s.renderer.Close(); cerr != nil && !errors.Is(cerr, render.ErrClosed) && err == nil {
		err = cerr
	}
	return err
}

// Running reports whether the session is started.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil && s.run.ctx.Err() == nil
}

// Status returns the current session state.
func (s *Session) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.exec(ctx, func() {
		st.Scanning = s.stage.State.Scanning
		st.GiftOpened = s.stage.State.GiftOpened
		st.OverlayUnlocked = s.stage.State.OverlayUnlocked
		if m, ok := s.stage.Markers.Marker(s.stage.MarkerID()); ok {
			st.MarkerRevealed = m.State() == scene.Revealed
		}
		if o, ok := s.stage.Object(scene.ObjectOverlay); ok {
			st.OverlayVisible = o.Visible
		}
		st.ActiveClip = s.blender.Active()
		if sr, ok := s.renderer.(interface{ Renders() int }); ok {
			st.Renders = sr.Renders()
		}
	})
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	st.ID = s.id
	st.Running = s.run != nil && s.run.ctx.Err() == nil
	st.StartedAt = s.startedAt
	s.mu.Unlock()

	st.GesturesEnabled = s.classifier.Enabled()
	st.LastGesture = s.LastGesture()
	st.Snapshots = s.gallery.Len()
	st.CaptureInFlight = s.CaptureInFlight()
	return st, nil
}

// SetGesturesEnabled turns gesture processing on or off and remembers the choice.
func (s *Session) SetGesturesEnabled(enabled bool) {
	s.classifier.SetEnabled(enabled)
	if s.cfg.Store != nil {
		if err := s.cfg.Store.Settings().SetBool(store.SettingGesturesEnabled, enabled); err != nil {
			s.logger.Warn("save gesture setting", "err", err)
		}
	}
	s.publish(EventGesturesToggled, map[string]bool{"enabled": enabled})
}

// GesturesEnabled reports whether gesture processing is on.
func (s *Session) GesturesEnabled() bool { return s.classifier.Enabled() }

// LastGesture returns the most recent matched gesture name.
func (s *Session) LastGesture() string {
	v, _ := s.lastGesture.Load().(string)
	return v
}

// TapResult describes what a tap hit.
type TapResult struct {
	Hit        bool   `json:"hit"`
	Object     string `json:"object,omitempty"`
	GiftOpened bool   `json:"gift_opened"`
}

// Tap hit-tests a normalized viewport point (0..1, origin top-left).
func (s *Session) Tap(ctx context.Context, x, y float64) (TapResult, error) {
	if x < 0 || x > 1 || y < 0 || y > 1 {
		return TapResult{}, fmt.Errorf("tap (%g, %g) is outside the viewport", x, y)
	}
	var res TapResult
	err := s.exec(ctx, func() {
		w, h := s.renderer.Size()
		before := s.stage.State.GiftOpened
		res.Object, res.Hit = s.stage.Tap(x, y, w, h)
		res.GiftOpened = !before && s.stage.State.GiftOpened
	})
	if err != nil {
		return TapResult{}, err
	}
	if res.Hit {
		s.publish(EventTap, res)
	}
	return res, nil
}

// Subscribe returns a channel of session events and a function that ends
// the subscription. Events are dropped when the channel is full.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	return s.events.subscribe(buffer)
}

// Gallery returns the snapshot stack.
func (s *Session) Gallery() *compositor.Gallery { return s.gallery }

// Feed returns the camera feed.
func (s *Session) Feed() *capture.Feed { return s.feed }

// Renderer returns the render target. Only Frame and Size are safe off the scene goroutine.
func (s *Session) Renderer() render.Renderer { return s.renderer }

// Metrics returns the session collectors.
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

func (s *Session) publish(typ string, data any) {
	s.events.publish(Event{Type: typ, Time: time.Now(), Data: data})
}

func (s *Session) onMarkerFound(id int) {
	err := s.exec(context.Background(), func() { s.stage.Markers.OnFound(id) })
	if err != nil {
		s.logger.Debug("marker found after stop", "marker_id", id)
		return
	}
	s.publish(EventMarkerFound, map[string]int{"marker_id": id})
}

func (s *Session) onMarkerLost(id int) {
	err := s.exec(context.Background(), func() { s.stage.Markers.OnLost(id) })
	if err != nil {
		return
	}
	s.publish(EventMarkerLost, map[string]int{"marker_id": id})
}

// onReveal runs on the scene goroutine.
func (s *Session) onReveal(m *scene.Marker) {
	s.metrics.MarkerReveals.WithLabelValues(strconv.Itoa(m.ID)).Inc()
	s.publish(EventMarkerRevealed, map[string]int{"marker_id": m.ID})

	s.mu.Lock()
	id := s.id
	s.mu.Unlock()
	if s.cfg.Store != nil && id != "" {
		if err := s.cfg.Store.Sessions().MarkRevealed(id, time.Now()); err != nil {
			s.logger.Warn("record reveal", "err", err)
		}
	}
}

func (s *Session) onMatch(m classifier.Match) {
	s.lastGesture.Store(m.Gesture)
	s.publish(EventGesture, m)
}

func (s *Session) recordStart(id string, at time.Time) {
	if s.cfg.Store == nil {
		return
	}
	if err := s.cfg.Store.Sessions().Start(id, at); err != nil {
		s.logger.Warn("record session start", "err", err)
	}
}

func (s *Session) recordEnd(id string) {
	if s.cfg.Store == nil || id == "" {
		return
	}
	if err := s.cfg.Store.Sessions().End(id, time.Now()); err != nil {
		s.logger.Warn("record session end", "err", err)
	}
}
