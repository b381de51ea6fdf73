package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/ayusman/arstage/internal/assets"
	"github.com/ayusman/arstage/internal/config"
	"github.com/ayusman/arstage/internal/gesture"
	"github.com/ayusman/arstage/internal/tracker"
)

// loadLibrary reads a YAML gesture library.
func loadLibrary(ctx context.Context, path string, timeout time.Duration) ([]*gesture.Description, error) {
	return assets.Load(ctx, path, timeout, func(context.Context) ([]*gesture.Description, error) {
		return gesture.LoadLibraryFile(path)
	})
}

// loadMarker builds a template tracker anchored on the configured marker image.
func loadMarker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*tracker.TemplateTracker, error) {
	tcfg := tracker.DefaultConfig()
	tcfg.Threshold = cfg.MatchScore
	tt := tracker.NewTemplateTracker(tcfg, logger)

	_, err := assets.Load(ctx, cfg.MarkerPath, cfg.AssetTimeout, func(context.Context) (struct{}, error) {
		return struct{}{}, tt.LoadAnchor(cfg.MarkerID, cfg.MarkerPath)
	})
	if err != nil {
		tt.Close()
		return nil, err
	}
	return tt, nil
}
