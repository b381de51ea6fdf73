package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/ayusman/arstage/internal/compositor"
	"github.com/ayusman/arstage/internal/metrics"
	"github.com/ayusman/arstage/internal/store"
)

// CaptureInFlight reports whether a snapshot is being taken.
func (s *Session) CaptureInFlight() bool { return s.capturing.Load() }

// Capture flattens the newest camera frame and a fresh render into one
// image, pushes it onto the gallery and, when configured, writes it to
// disk. A second call while one runs fails with compositor.ErrCaptureInFlight.
func (s *Session) Capture(ctx context.Context) (*compositor.Snapshot, error) {
	if !s.capturing.CompareAndSwap(false, true) {
		s.metrics.Captures.WithLabelValues(metrics.CaptureRejected).Inc()
		return nil, compositor.ErrCaptureInFlight
	}
	defer s.capturing.Store(false)

	snap, err := s.capture(ctx)
	if err != nil {
		result := metrics.CaptureFailed
		if errors.Is(err, compositor.ErrCaptureInFlight) {
			result = metrics.CaptureRejected
		}
		s.metrics.Captures.WithLabelValues(result).Inc()
		s.logger.Warn("capture failed", "err", err)
		return nil, err
	}

	s.metrics.Captures.WithLabelValues(metrics.CaptureOK).Inc()
	s.publish(EventCapture, snap)
	return snap, nil
}

func (s *Session) capture(ctx context.Context) (*compositor.Snapshot, error) {
	if !s.Running() {
		return nil, ErrNotRunning
	}

	video, _, ok := s.feed.Latest()
	defer video.Close()
	if !ok {
		return nil, fmt.Errorf("%w: no camera frame yet", compositor.ErrCaptureFailed)
	}

	var (
		img     gocv.Mat
		ran     bool
		compErr error
	)
	err := s.exec(ctx, func() {
		img, compErr = s.comp.Capture(video, s.viewport())
		ran = true
	})
	if ran {
		defer img.Close()
	}
	if err != nil {
		return nil, err
	}
	if compErr != nil {
		return nil, compErr
	}

	snap, err := compositor.EncodeSnapshot(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", compositor.ErrCaptureFailed, err)
	}
	if evicted := s.gallery.Push(snap); evicted != nil {
		s.logger.Debug("snapshot dropped off the stack", "capture_id", evicted.ID)
	}
	s.persist(snap)
	return snap, nil
}

// viewport runs on the scene goroutine.
func (s *Session) viewport() compositor.Viewport {
	if s.cfg.Viewport.Width > 0 && s.cfg.Viewport.Height > 0 {
		return s.cfg.Viewport
	}
	w, h := s.renderer.Size()
	return compositor.Viewport{Width: w, Height: h, DPR: 1}
}

// persist writes the snapshot to the captures directory and records it.
// Failures are logged; the snapshot is still shown.
func (s *Session) persist(snap *compositor.Snapshot) {
	if s.cfg.CapturesDir == "" {
		return
	}
	path := filepath.Join(s.cfg.CapturesDir, snap.ID+".png")
	if err := os.WriteFile(path, snap.PNG, 0o644); err != nil {
		s.logger.Warn("write snapshot", "path", path, "err", err)
		return
	}
	if s.cfg.Store == nil {
		return
	}

	s.mu.Lock()
	sessionID := s.id
	s.mu.Unlock()
	rec := &store.Capture{
		ID:        snap.ID,
		SessionID: sessionID,
		Path:      path,
		Width:     snap.Width,
		Height:    snap.Height,
		CreatedAt: snap.CreatedAt,
	}
	if err := s.cfg.Store.Captures().Create(rec); err != nil {
		s.logger.Warn("record snapshot", "capture_id", snap.ID, "err", err)
	}
}

// DismissSnapshot removes a snapshot from the on-screen stack. The file on
// disk, if any, is kept.
func (s *Session) DismissSnapshot(id string) bool {
	return s.gallery.Dismiss(id)
}
