// Package tracker detects image markers in the camera feed and reports
// when each one comes into or goes out of view.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/arstage/internal/capture"
)

// ErrNoAnchors is returned by Run when no anchor was added.
var ErrNoAnchors = errors.New("no anchors to track")

// EventFunc receives a marker id.
type EventFunc func(id int)

// Tracker is a marker tracker with a start/stop lifecycle.
type Tracker interface {
	// AddAnchor registers a target image under id.
	AddAnchor(id int, target gocv.Mat) error
	OnFound(fn EventFunc)
	OnLost(fn EventFunc)
	// Run tracks frames from src until ctx is cancelled.
	Run(ctx context.Context, src capture.FrameSource) error
}

// Config tunes a TemplateTracker.
type Config struct {
	// Threshold is the normalized correlation needed to count a match.
	Threshold float64
	// MissTolerance is how many consecutive misses declare a marker lost.
	MissTolerance int
	// Interval is the time between tracking passes.
	Interval time.Duration
	// ProcessWidth caps the width frames are matched at.
	ProcessWidth int
	// MotionThreshold is the changed-pixel percentage that triggers a new
	// match; below it the previous result is reused. Zero disables the gate.
	MotionThreshold float64
}

// DefaultConfig returns settings that run comfortably at 10 Hz.
func DefaultConfig() Config {
	return Config{
		Threshold:       0.7,
		MissTolerance:   5,
		Interval:        100 * time.Millisecond,
		ProcessWidth:    640,
		MotionThreshold: 0.5,
	}
}

type anchor struct {
	id     int
	target gocv.Mat // grayscale
	found  bool
	misses int
	// lastSeen is the last match result, reused while the picture is still.
	lastSeen bool
	matched  bool
}

// observe folds one match result into the anchor state and returns the
// event to fire, if any.
func (a *anchor) observe(seen bool, tolerance int) (found, lost bool) {
	if seen {
		a.misses = 0
		if !a.found {
			a.found = true
			return true, false
		}
		return false, false
	}
	a.misses++
	if a.found && a.misses >= tolerance {
		a.found = false
		return false, true
	}
	return false, false
}

// TemplateTracker finds anchors with normalized cross-correlation template matching.
type TemplateTracker struct {
	cfg    Config
	logger *slog.Logger
	motion *capture.MotionDetector

	mu      sync.Mutex
	anchors []*anchor
	onFound []EventFunc
	onLost  []EventFunc
}

// NewTemplateTracker creates a tracker. Zero config fields take their defaults.
func NewTemplateTracker(cfg Config, logger *slog.Logger) *TemplateTracker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MissTolerance <= 0 {
		cfg.MissTolerance = def.MissTolerance
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.ProcessWidth <= 0 {
		cfg.ProcessWidth = def.ProcessWidth
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	t := &TemplateTracker{cfg: cfg, logger: logger}
	if cfg.MotionThreshold > 0 {
		t.motion = capture.NewMotionDetector(cfg.MotionThreshold)
	}
	return t
}

// AddAnchor registers a target. The tracker keeps its own grayscale copy.
func (t *TemplateTracker) AddAnchor(id int, target gocv.Mat) error {
	if target.Empty() {
		return fmt.Errorf("anchor %d: empty target image", id)
	}

	gray := gocv.NewMat()
	if target.Channels() > 1 {
		gocv.CvtColor(target, &gray, gocv.ColorBGRToGray)
	} else {
		target.CopyTo(&gray)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.anchors {
		if a.id == id {
			gray.Close()
			return fmt.Errorf("anchor %d already added", id)
		}
	}
	t.anchors = append(t.anchors, &anchor{id: id, target: gray})
	return nil
}

// LoadAnchor reads a target image from path and registers it under id.
func (t *TemplateTracker) LoadAnchor(id int, path string) error {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return fmt.Errorf("anchor %d: cannot read %s", id, path)
	}
	return t.AddAnchor(id, img)
}

// OnFound registers a callback run on the tracker goroutine.
func (t *TemplateTracker) OnFound(fn EventFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFound = append(t.onFound, fn)
}

// OnLost registers a callback run on the tracker goroutine.
func (t *TemplateTracker) OnLost(fn EventFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = append(t.onLost, fn)
}

// Found reports whether anchor id is currently in view.
func (t *TemplateTracker) Found(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.anchors {
		if a.id == id {
			return a.found
		}
	}
	return false
}

// Reset forgets which anchors are in view, so the next match fires OnFound again.
func (t *TemplateTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.anchors {
		a.found, a.misses = false, 0
		a.matched, a.lastSeen = false, false
	}
	if t.motion != nil {
		t.motion.Reset()
	}
}

// Run tracks until ctx is cancelled.
func (t *TemplateTracker) Run(ctx context.Context, src capture.FrameSource) error {
	t.mu.Lock()
	n := len(t.anchors)
	t.mu.Unlock()
	if n == 0 {
		return ErrNoAnchors
	}

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			frame, seq, ok := src.Latest()
			if !ok || seq == lastSeq {
				frame.Close()
				continue
			}
			lastSeq = seq
			t.Process(frame)
			frame.Close()
		}
	}
}

// Process runs one tracking pass over frame and fires callbacks.
func (t *TemplateTracker) Process(frame gocv.Mat) {
	if frame.Empty() {
		return
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	scale := 1.0
	work := gray
	if gray.Cols() > t.cfg.ProcessWidth {
		scale = float64(t.cfg.ProcessWidth) / float64(gray.Cols())
		small := gocv.NewMat()
		defer small.Close()
		gocv.Resize(gray, &small, image.Point{}, scale, scale, gocv.InterpolationArea)
		work = small
	}

	still := false
	if t.motion != nil {
		moved, _ := t.motion.Detect(&work)
		still = !moved
	}

	t.mu.Lock()
	var found, lost []int
	for _, a := range t.anchors {
		seen := a.lastSeen
		if !still || !a.matched {
			seen = t.match(work, a, scale)
			a.lastSeen = seen
			a.matched = true
		}
		f, l := a.observe(seen, t.cfg.MissTolerance)
		if f {
			found = append(found, a.id)
		}
		if l {
			lost = append(lost, a.id)
		}
	}
	onFound := append([]EventFunc(nil), t.onFound...)
	onLost := append([]EventFunc(nil), t.onLost...)
	t.mu.Unlock()

	for _, id := range found {
		t.logger.Debug("anchor found", "marker_id", id)
		for _, fn := range onFound {
			fn(id)
		}
	}
	for _, id := range lost {
		t.logger.Debug("anchor lost", "marker_id", id)
		for _, fn := range onLost {
			fn(id)
		}
	}
}

func (t *TemplateTracker) match(gray gocv.Mat, a *anchor, scale float64) bool {
	target := a.target
	if scale != 1 {
		scaled := gocv.NewMat()
		defer scaled.Close()
		gocv.Resize(a.target, &scaled, image.Point{}, scale, scale, gocv.InterpolationArea)
		target = scaled
	}
	if target.Empty() || target.Cols() > gray.Cols() || target.Rows() > gray.Rows() {
		return false
	}

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(gray, target, &result, gocv.TmCcoeffNormed, mask)

	_, maxVal, _, _ := gocv.MinMaxLoc(result)
	return float64(maxVal) >= t.cfg.Threshold
}

// Close releases the anchor images.
func (t *TemplateTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.anchors {
		a.target.Close()
	}
	t.anchors = nil
	if t.motion != nil {
		t.motion.Close()
	}
}
