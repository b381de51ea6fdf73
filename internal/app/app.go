// Package app wires the arstage components into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ayusman/arstage/internal/capture"
	"github.com/ayusman/arstage/internal/compositor"
	"github.com/ayusman/arstage/internal/config"
	"github.com/ayusman/arstage/internal/detector"
	"github.com/ayusman/arstage/internal/gesture"
	"github.com/ayusman/arstage/internal/render"
	"github.com/ayusman/arstage/internal/scene"
	"github.com/ayusman/arstage/internal/server"
	"github.com/ayusman/arstage/internal/session"
	"github.com/ayusman/arstage/internal/store"
	"github.com/ayusman/arstage/internal/tracker"
)

// Options overrides parts of the application, mainly for tests.
type Options struct {
	Logger   *slog.Logger
	Camera   capture.Camera
	Detector detector.Detector
	Tracker  tracker.Tracker
	// StaticDir is served at /. Empty looks for a web directory.
	StaticDir string
}

// App is the main application: one session behind an HTTP server.
type App struct {
	config  config.Config
	logger  *slog.Logger
	store   *store.Store
	session *session.Session
	server  *server.Server

	// owned are released after the session on Close.
	owned     []func() error
	closeOnce sync.Once
}

// New builds the application from cfg. Assets named in cfg are loaded with
// cfg.AssetTimeout; any failure is returned as an assets.LoadError.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{config: cfg, logger: logger, store: st}
	if err := a.build(ctx, opts); err != nil {
		a.release()
		st.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.config

	var library []*gesture.Description
	if cfg.GesturesPath != "" {
		lib, err := loadLibrary(ctx, cfg.GesturesPath, cfg.AssetTimeout)
		if err != nil {
			return err
		}
		library = lib
	}

	trk := opts.Tracker
	if trk == nil && cfg.MarkerPath != "" {
		tt, err := loadMarker(ctx, cfg, a.logger)
		if err != nil {
			return err
		}
		a.owned = append(a.owned, func() error { tt.Close(); return nil })
		trk = tt
	}
	if trk == nil {
		a.logger.Warn("no marker image configured; the gift will not appear")
	}

	det := opts.Detector
	if det == nil {
		det = newDetector(cfg, a.logger)
		a.owned = append(a.owned, det.Close)
	}

	cam := opts.Camera
	if cam == nil {
		cam = capture.NewCameraWithConfig(capture.Config{
			DeviceID: cfg.CameraID,
			Width:    cfg.CameraWidth,
			Height:   cfg.CameraHeight,
			FPS:      cfg.CameraFPS,
		})
	}

	stage := scene.DefaultStageConfig()
	stage.MarkerID = cfg.MarkerID

	sess, err := session.New(session.Config{
		Camera:       cam,
		Detector:     det,
		Tracker:      trk,
		Renderer:     render.NewSoftwareRenderer(cfg.RenderWidth, cfg.RenderHeight),
		Library:      library,
		MinScore:     cfg.MinScore,
		Stage:        stage,
		RefreshHz:    cfg.RefreshHz,
		Viewport:     compositor.Viewport{Width: cfg.RenderWidth, Height: cfg.RenderHeight, DPR: cfg.DPR},
		GalleryDepth: cfg.GalleryDepth,
		CapturesDir:  cfg.CapturesDir(),
		Store:        a.store,
		Logger:       a.logger,
	})
	if err != nil {
		a.release()
		return fmt.Errorf("create session: %w", err)
	}
	a.session = sess

	staticDir := opts.StaticDir
	if staticDir == "" {
		staticDir = findWebDir(cfg.DataDir)
	}
	if staticDir != "" {
		a.logger.Info("serving static files", "dir", staticDir)
	}
	a.server = server.New(server.Config{
		StaticDir: staticDir,
		Store:     a.store,
		Session:   sess,
		Logger:    a.logger,
	})
	return nil
}

// newDetector tries MediaPipe first and falls back to the mock detector.
func newDetector(cfg config.Config, logger *slog.Logger) detector.Detector {
	dcfg := detector.DefaultConfig()
	dcfg.ScriptPath = cfg.DetectorPath
	mp, err := detector.NewMediaPipeDetector(dcfg, logger)
	if err != nil {
		logger.Warn("MediaPipe not available, using mock detector", "err", err)
		return detector.NewMockDetector()
	}
	logger.Info("using MediaPipe hand detection")
	return mp
}

// Run starts the session and serves HTTP until ctx is cancelled. A camera
// that cannot be opened is returned as a capture.AcquisitionError.
func (a *App) Run(ctx context.Context) error {
	if err := a.session.Start(ctx); err != nil {
		return err
	}
	defer a.session.Stop()

	err := a.server.ListenAndServe(ctx, a.config.Addr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close releases the session, its devices and the store.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = errors.Join(a.session.Close(), a.release(), a.store.Close())
	})
	return err
}

func (a *App) release() error {
	var errs []error
	for _, fn := range a.owned {
		errs = append(errs, fn())
	}
	a.owned = nil
	return errors.Join(errs...)
}

// Session returns the AR session.
func (a *App) Session() *session.Session { return a.session }

// Store returns the database.
func (a *App) Store() *store.Store { return a.store }

// Server returns the HTTP handler.
func (a *App) Server() *server.Server { return a.server }

// URL is the address the server listens on, as a browser URL.
func (a *App) URL() string { return "http://" + a.config.Addr }

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
