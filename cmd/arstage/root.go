package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayusman/arstage/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "arstage",
	Short: "arstage runs a marker-anchored AR scene driven by hand gestures",
	Long: `arstage watches the camera for a marker image, reveals a scene on it and
lets hand gestures drive the animated actor. Snapshots of the camera and the
scene can be taken from the tray or over HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for the database and captures (default ~/.arstage)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON instead of text")
}

// loadConfig reads the environment and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("log-json") {
		cfg.LogJSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("addr") {
		cfg.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("camera") {
		cfg.CameraID, _ = flags.GetInt("camera")
	}
	if flags.Changed("marker") {
		cfg.MarkerPath, _ = flags.GetString("marker")
	}
	if flags.Changed("gestures") {
		cfg.GesturesPath, _ = flags.GetString("gestures")
	}
	if flags.Changed("no-tray") {
		cfg.NoTray, _ = flags.GetBool("no-tray")
	}
	return cfg, cfg.Validate()
}

func newLogger(jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
