package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// idleShutdown is how long the Python process may sit unused before it is stopped.
const idleShutdown = 30 * time.Second

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
//
// Wire protocol: each request is a 4-byte big-endian length followed by a
// JPEG frame; each response is one line of JSON {"hands":[...]}.
type MediaPipeDetector struct {
	config    Config
	logger    *slog.Logger
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	closed    bool
	idleTimer *time.Timer
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started lazily on first estimation.
func NewMediaPipeDetector(config Config, logger *slog.Logger) (*MediaPipeDetector, error) {
	if config.ScriptPath == "" {
		config.ScriptPath = findMediaPipeScript()
	}
	if config.ScriptPath == "" {
		return nil, fmt.Errorf("mediapipe_service.py not found")
	}
	if config.MaxHands <= 0 {
		config.MaxHands = DefaultConfig().MaxHands
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &MediaPipeDetector{
		config: config,
		logger: logger,
	}, nil
}

// Estimate encodes the frame, sends it to the service and waits for the hands.
// Cancelling ctx kills the in-flight inference; the process restarts on the next call.
func (d *MediaPipeDetector) Estimate(ctx context.Context, frame *gocv.Mat, opts EstimateOptions) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("estimate: empty frame")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	src := *frame
	if opts.FlipHorizontal {
		flipped := gocv.NewMat()
		defer flipped.Close()
		gocv.Flip(*frame, &flipped, 1)
		src = flipped
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, src)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	type result struct {
		hands []HandLandmarks
		err   error
	}
	done := make(chan result, 1)
	data := buf.GetBytes()
	go func() {
		hands, err := d.roundTrip(data)
		done <- result{hands: hands, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			d.shutdown()
			return nil, r.err
		}
		d.resetIdleTimer()
		return r.hands, nil
	case <-ctx.Done():
		if d.cmd != nil && d.cmd.Process != nil {
			d.cmd.Process.Kill()
		}
		<-done
		d.shutdown()
		return nil, ctx.Err()
	}
}

// roundTrip writes one framed request and reads one JSON response line.
func (d *MediaPipeDetector) roundTrip(data []byte) ([]HandLandmarks, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Hands []jsonHand `json:"hands"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	now := time.Now().UnixMilli()
	result := make([]HandLandmarks, len(response.Hands))
	for i, h := range response.Hands {
		result[i] = h.toHandLandmarks()
		result[i].Timestamp = now
	}
	return result, nil
}

// Close shuts down the Python process. Further calls to Estimate fail with ErrClosed.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.shutdown()
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	// Use virtual environment Python if available
	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, d.config.ScriptPath,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--model", d.config.ModelType,
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', 2, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', 2, 64),
	)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.logger.Info("mediapipe service started", "script", d.config.ScriptPath, "pid", d.cmd.Process.Pid)

	return nil
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.logger.Info("mediapipe service stopped")

	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(idleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

// findMediaPipeScript searches for the estimator service script in common locations.
func findMediaPipeScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/mediapipe_service.py",
		"../scripts/mediapipe_service.py",
		filepath.Join(execDir, "scripts/mediapipe_service.py"),
		filepath.Join(os.Getenv("HOME"), ".arstage/scripts/mediapipe_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".arstage/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	for i := 0; i < NumLandmarks && i < len(h.Points); i++ {
		lm.Points[i] = h.Points[i]
	}
	return lm
}
