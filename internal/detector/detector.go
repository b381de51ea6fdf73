package detector

import (
	"context"
	"errors"

	"gocv.io/x/gocv"
)

// ErrClosed is returned by Estimate after the detector has been closed.
var ErrClosed = errors.New("detector is closed")

// Detector defines the interface for hand pose estimator implementations.
type Detector interface {
	// Estimate analyzes a video frame and returns the detected hands.
	// Returns an empty slice if no hands are detected. The call may block
	// for the duration of one inference.
	Estimate(ctx context.Context, frame *gocv.Mat, opts EstimateOptions) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// EstimateOptions are per-call estimation options.
type EstimateOptions struct {
	// FlipHorizontal mirrors the frame before inference so that
	// handedness matches a selfie-style preview.
	FlipHorizontal bool `json:"flipHorizontal"`
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// ModelType selects the estimator model variant ("lite" or "full").
	ModelType string

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// ScriptPath overrides the location of the estimator service script.
	ScriptPath string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		ModelType:       "full",
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}
