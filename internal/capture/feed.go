package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// FrameSource hands out the most recent camera frame.
type FrameSource interface {
	// Latest returns a copy of the newest frame and its sequence number.
	// ok is false until the first frame arrives. The caller owns the Mat.
	Latest() (frame gocv.Mat, seq uint64, ok bool)
}

// Feed reads a camera at its frame rate and keeps only the newest frame.
// Readers never block the camera and always see the latest image.
type Feed struct {
	cam    Camera
	logger *slog.Logger

	mu     sync.RWMutex
	latest gocv.Mat
	seq    uint64
	width  int
	height int
}

// NewFeed creates a feed over cam. The camera must be opened by the caller.
func NewFeed(cam Camera, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Feed{cam: cam, logger: logger, latest: gocv.NewMat()}
}

// Run reads frames until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	fps := f.cam.FPS()
	if fps <= 0 {
		fps = DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			frame, err := f.cam.ReadFrame()
			if err != nil {
				failures++
				// Log the first failure and then every few seconds' worth.
				if failures == 1 || failures%(fps*5) == 0 {
					f.logger.Warn("camera read failed", "err", err, "failures", failures)
				}
				continue
			}
			failures = 0
			f.Publish(frame)
		}
	}
}

// Publish replaces the latest frame. The feed takes ownership of frame.
func (f *Feed) Publish(frame *gocv.Mat) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.latest.Close()
	f.latest = *frame
	f.seq++
	f.width, f.height = frame.Cols(), frame.Rows()
}

// Latest returns a copy of the newest frame.
func (f *Feed) Latest() (gocv.Mat, uint64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.seq == 0 || f.latest.Empty() {
		return gocv.NewMat(), f.seq, false
	}
	return f.latest.Clone(), f.seq, true
}

// Seq returns the sequence number of the newest frame; 0 means none yet.
func (f *Feed) Seq() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.seq
}

// Size returns the dimensions of the newest frame.
func (f *Feed) Size() (width, height int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.width, f.height
}

// Close releases the stored frame.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest.Close()
	f.latest = gocv.NewMat()
}
