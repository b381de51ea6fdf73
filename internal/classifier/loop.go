// Package classifier runs hand estimation against the camera feed and turns
// recognized gestures into scene transitions.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/arstage/internal/capture"
	"github.com/ayusman/arstage/internal/detector"
	"github.com/ayusman/arstage/internal/gesture"
	"github.com/ayusman/arstage/internal/metrics"
)

// Scheduler paces the loop. NextFrame blocks until the next rendered frame.
type Scheduler interface {
	NextFrame(ctx context.Context) error
}

// Executor runs fn on the goroutine that owns the scene and waits for it to finish.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Match is the winning gesture of one hand in one tick.
type Match struct {
	Hand    string  `json:"hand"`
	Gesture string  `json:"gesture"`
	Score   float64 `json:"score"`
	// Applied reports whether the transition changed the scene.
	Applied bool `json:"applied"`
}

// Config wires a Loop.
type Config struct {
	Detector  detector.Detector
	Estimator *gesture.Estimator
	Frames    capture.FrameSource
	Scheduler Scheduler
	Executor  Executor
	Target    Target

	// MinScore is the candidate threshold. Zero means gesture.DefaultMinScore.
	MinScore float64
	Options  detector.EstimateOptions

	// OnMatch observes every match after it has been applied.
	OnMatch func(Match)

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Loop is the estimate, apply, wait-for-frame cycle. Exactly one
// estimation is in flight at any time.
type Loop struct {
	cfg     Config
	enabled atomic.Bool
	logger  *slog.Logger
}

// New validates cfg and returns an enabled loop.
func New(cfg Config) (*Loop, error) {
	switch {
	case cfg.Detector == nil:
		return nil, errors.New("classifier: detector is required")
	case cfg.Estimator == nil:
		return nil, errors.New("classifier: estimator is required")
	case cfg.Frames == nil:
		return nil, errors.New("classifier: frame source is required")
	case cfg.Scheduler == nil:
		return nil, errors.New("classifier: scheduler is required")
	case cfg.Executor == nil:
		return nil, errors.New("classifier: executor is required")
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = gesture.DefaultMinScore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &Loop{cfg: cfg, logger: logger}
	l.enabled.Store(true)
	return l, nil
}

// SetEnabled turns estimation on or off. While off the loop keeps pace
// with the frames but skips estimation.
func (l *Loop) SetEnabled(enabled bool) {
	if l.enabled.Swap(enabled) != enabled {
		l.logger.Info("gesture processing toggled", "enabled", enabled)
	}
}

// Enabled reports whether estimation is on.
func (l *Loop) Enabled() bool { return l.enabled.Load() }

// Run cycles until ctx is cancelled or the scheduler stops.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := l.cfg.Scheduler.NextFrame(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for frame: %w", err)
		}
		l.Tick(ctx)
	}
}

// Tick runs one estimation and applies its matches. Errors are logged and
// counted; they never stop the loop.
func (l *Loop) Tick(ctx context.Context) {
	if !l.Enabled() {
		return
	}

	frame, _, ok := l.cfg.Frames.Latest()
	defer frame.Close()
	if !ok || frame.Empty() {
		return
	}

	hands, err := l.estimate(ctx, &frame)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("hand estimation failed", "err", err)
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.EstimationFailures.Inc()
		}
		return
	}

	matches := l.Classify(hands)
	if len(matches) == 0 {
		return
	}

	err = l.cfg.Executor.Do(ctx, func() {
		for i := range matches {
			matches[i].Applied = Apply(l.cfg.Target, matches[i].Gesture)
		}
	})
	if err != nil {
		return
	}

	for _, m := range matches {
		l.logger.Debug("gesture matched", "gesture", m.Gesture, "hand", m.Hand, "score", m.Score, "applied", m.Applied)
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.GestureMatches.WithLabelValues(m.Gesture, m.Hand).Inc()
		}
		if l.cfg.OnMatch != nil {
			l.cfg.OnMatch(m)
		}
	}
}

// Classify picks the best candidate of every hand. Hands without a
// candidate above the threshold produce no match.
func (l *Loop) Classify(hands []detector.HandLandmarks) []Match {
	var matches []Match
	for i := range hands {
		est := l.cfg.Estimator.Estimate(&hands[i].Points, l.cfg.MinScore)
		best, ok := gesture.Best(est.Candidates)
		if !ok {
			continue
		}
		matches = append(matches, Match{
			Hand:    hands[i].Handedness,
			Gesture: best.Name,
			Score:   best.Score,
		})
	}
	return matches
}

func (l *Loop) estimate(ctx context.Context, frame *gocv.Mat) (hands []detector.HandLandmarks, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			hands, err = nil, fmt.Errorf("estimator panic: %v", r)
		}
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.EstimationLatency.Observe(time.Since(start).Seconds())
		}
	}()
	return l.cfg.Detector.Estimate(ctx, frame, l.cfg.Options)
}
