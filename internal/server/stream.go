package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/arstage/internal/capture"
)

// streamInterval paces the MJPEG stream at about 15 FPS.
const streamInterval = 66 * time.Millisecond

// StreamHandler serves the newest camera frames as MJPEG.
type StreamHandler struct {
	frames capture.FrameSource
	logger *slog.Logger
}

// NewStreamHandler creates a new StreamHandler reading from frames.
func NewStreamHandler(frames capture.FrameSource, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StreamHandler{frames: frames, logger: logger}
}

// ServeHTTP streams MJPEG frames until the client goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var last uint64
	for {
		frame, seq, ok := h.frames.Latest()
		if ok && seq != last {
			last = seq
			if err := writePart(w, frame); err != nil {
				frame.Close()
				h.logger.Debug("mjpeg client gone", "err", err)
				return
			}
		}
		frame.Close()

		if err := wait(r.Context(), ticker); err != nil {
			return
		}
	}
}

func wait(ctx context.Context, ticker *time.Ticker) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ticker.C:
		return nil
	}
}

// writePart encodes frame as JPEG and writes one multipart section.
func writePart(w http.ResponseWriter, frame gocv.Mat) error {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		// A frame that fails to encode is skipped.
		return nil
	}
	defer buf.Close()

	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", buf.Len()); err != nil {
		return err
	}
	if _, err := w.Write(buf.GetBytes()); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
