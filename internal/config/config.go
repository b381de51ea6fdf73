// Package config reads arstage settings from ARSTAGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name.
const Prefix = "ARSTAGE_"

// Config is the full runtime configuration of `arstage serve`.
type Config struct {
	Addr    string `env:"ADDR" envDefault:"127.0.0.1:8080"`
	DataDir string `env:"DATA_DIR"`
	LogJSON bool   `env:"LOG_JSON"`
	NoTray  bool   `env:"NO_TRAY"`

	CameraID     int `env:"CAMERA" envDefault:"0"`
	CameraWidth  int `env:"CAMERA_WIDTH" envDefault:"2160"`
	CameraHeight int `env:"CAMERA_HEIGHT" envDefault:"1440"`
	CameraFPS    int `env:"CAMERA_FPS" envDefault:"30"`

	// MarkerPath is the image of the marker the gift is anchored to.
	MarkerPath string  `env:"MARKER"`
	MarkerID   int     `env:"MARKER_ID" envDefault:"0"`
	MatchScore float64 `env:"MARKER_MATCH_SCORE" envDefault:"0.7"`

	// GesturesPath is a YAML gesture library. Empty uses the stored or built-in library.
	GesturesPath string  `env:"GESTURES"`
	MinScore     float64 `env:"GESTURE_MIN_SCORE" envDefault:"8.5"`
	DetectorPath string  `env:"DETECTOR_SCRIPT"`

	RefreshHz    int           `env:"REFRESH_HZ" envDefault:"60"`
	RenderWidth  int           `env:"RENDER_WIDTH" envDefault:"1280"`
	RenderHeight int           `env:"RENDER_HEIGHT" envDefault:"720"`
	DPR          float64       `env:"DPR" envDefault:"1"`
	GalleryDepth int           `env:"GALLERY_DEPTH" envDefault:"8"`
	AssetTimeout time.Duration `env:"ASSET_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the session cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.RefreshHz <= 0 {
		errs = append(errs, fmt.Errorf("refresh rate must be positive, got %d", c.RefreshHz))
	}
	if c.RenderWidth <= 0 || c.RenderHeight <= 0 {
		errs = append(errs, fmt.Errorf("render size must be positive, got %dx%d", c.RenderWidth, c.RenderHeight))
	}
	if c.DPR <= 0 {
		errs = append(errs, fmt.Errorf("device pixel ratio must be positive, got %g", c.DPR))
	}
	if c.MinScore < 0 || c.MinScore > 10 {
		errs = append(errs, fmt.Errorf("gesture min score must be within 0..10, got %g", c.MinScore))
	}
	if c.MatchScore <= 0 || c.MatchScore > 1 {
		errs = append(errs, fmt.Errorf("marker match score must be within (0, 1], got %g", c.MatchScore))
	}
	return errors.Join(errs...)
}

// DefaultDataDir returns ~/.arstage, or ./.arstage when there is no home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".arstage"
	}
	return filepath.Join(home, ".arstage")
}

// DBPath is the SQLite database inside the data directory.
func (c Config) DBPath() string { return filepath.Join(c.DataDir, "arstage.db") }

// CapturesDir is where snapshot PNGs are written.
func (c Config) CapturesDir() string { return filepath.Join(c.DataDir, "captures") }
