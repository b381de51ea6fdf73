package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Motion detection defaults.
const (
	// DefaultBlurSize is the Gaussian kernel applied before differencing.
	DefaultBlurSize = 21
	// DefaultDiffThreshold is the per-pixel intensity change that counts.
	DefaultDiffThreshold = 25
)

// MotionConfig tunes a MotionDetector.
type MotionConfig struct {
	// Threshold is the percentage of changed pixels that counts as motion.
	Threshold     float64
	BlurSize      int
	DiffThreshold float32
}

// MotionDetector compares each frame with the previous one. The tracker
// uses it to skip template matching while the picture is still.
type MotionDetector struct {
	cfg         MotionConfig
	prevGray    gocv.Mat
	initialized bool
	lastChange  float64
	mu          sync.Mutex
}

// NewMotionDetector creates a detector that reports motion when more than
// threshold percent of the pixels change.
func NewMotionDetector(threshold float64) *MotionDetector {
	return NewMotionDetectorWithConfig(MotionConfig{Threshold: threshold})
}

// NewMotionDetectorWithConfig creates a detector. Zero fields take their defaults.
func NewMotionDetectorWithConfig(cfg MotionConfig) *MotionDetector {
	if cfg.BlurSize <= 0 || cfg.BlurSize%2 == 0 {
		cfg.BlurSize = DefaultBlurSize
	}
	if cfg.DiffThreshold <= 0 {
		cfg.DiffThreshold = DefaultDiffThreshold
	}
	return &MotionDetector{cfg: cfg, prevGray: gocv.NewMat()}
}

// Detect reports whether frame differs from the previous frame and the
// percentage of pixels that changed. The first frame only sets the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := m.cfg.BlurSize
	gocv.GaussianBlur(gray, &blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)

	// A new resolution starts a new baseline.
	if !m.initialized || m.prevGray.Rows() != blurred.Rows() || m.prevGray.Cols() != blurred.Cols() {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		m.lastChange = 0
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, m.cfg.DiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0
	blurred.CopyTo(&m.prevGray)
	m.lastChange = changed

	return changed > m.cfg.Threshold, changed
}

// LastChange returns the change percentage measured by the last Detect.
func (m *MotionDetector) LastChange() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastChange
}

// Reset drops the baseline; the next frame starts a new one.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases the baseline frame.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
	m.lastChange = 0
}

// SetThreshold changes the motion threshold. Values <= 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Threshold = threshold
}

// Threshold returns the motion threshold.
func (m *MotionDetector) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Threshold
}
