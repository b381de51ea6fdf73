// Package capture opens the camera and fans out its frames to the session.
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings. The resolution is a request; the device may
// deliver something smaller.
const (
	DefaultFPS    = 30
	DefaultWidth  = 2160
	DefaultHeight = 1440
)

// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// AcquisitionError reports that the camera stream could not be obtained.
type AcquisitionError struct {
	Device int
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire camera %d: %v", e.Device, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Camera is a source of BGR frames.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Config describes the stream requested from the device.
type Config struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
}

// DefaultConfig requests the ideal resolution from device 0.
func DefaultConfig() Config {
	return Config{Width: DefaultWidth, Height: DefaultHeight, FPS: DefaultFPS}
}

// cameraImpl captures from a local device through OpenCV.
type cameraImpl struct {
	config  Config
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
}

// NewCamera creates a camera for the given device with the default resolution.
func NewCamera(deviceID int) Camera {
	cfg := DefaultConfig()
	cfg.DeviceID = deviceID
	return NewCameraWithConfig(cfg)
}

// NewCameraWithConfig creates a camera. Zero fields take their defaults.
func NewCameraWithConfig(cfg Config) Camera {
	def := DefaultConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	return &cameraImpl{config: cfg}
}

// Open starts the device. Failures are returned as *AcquisitionError.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.config.DeviceID)
	if err != nil {
		return &AcquisitionError{Device: c.config.DeviceID, Err: err}
	}
	if !capture.IsOpened() {
		capture.Close()
		return &AcquisitionError{Device: c.config.DeviceID, Err: errors.New("device did not open")}
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.config.FPS))

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	return &mat, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.config.FPS = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.config.FPS
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
