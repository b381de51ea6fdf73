package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/arstage/internal/app"
	"github.com/ayusman/arstage/internal/tray"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the camera session and the HTTP server",
	Long: `Opens the camera, starts the AR session and serves the HTTP API. Unless
--no-tray is given a system tray menu is shown as well.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Address to listen on")
	serveCmd.Flags().Int("camera", 0, "Camera device index")
	serveCmd.Flags().String("marker", "", "Marker image the scene is anchored to")
	serveCmd.Flags().String("gestures", "", "YAML gesture library (default: stored or built-in)")
	serveCmd.Flags().Bool("no-tray", false, "Do not show the system tray menu")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogJSON)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
		stop()
	}()

	if !cfg.NoTray {
		t := tray.New(a.Session(), logger)
		t.OnOpen(func() {
			if err := openBrowser(a.URL()); err != nil {
				logger.Warn("open browser", "url", a.URL(), "err", err)
			}
		})
		t.OnQuit(stop)
		go func() {
			<-ctx.Done()
			tray.Quit()
		}()
		// The tray owns the main goroutine until it quits.
		t.Run(ctx)
		stop()
	}

	<-ctx.Done()
	if err := <-errCh; err != nil {
		return err
	}
	logger.Info("arstage stopped")
	return nil
}
